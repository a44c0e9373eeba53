package scenario

import (
	"fmt"
	"time"

	"github.com/elliotcourant/mvstore/options"
)

// Actor names one of the two sessions of a scenario.
type Actor uint8

const (
	A Actor = iota
	B
)

func (a Actor) String() string {
	switch a {
	case A:
		return "A"
	case B:
		return "B"
	default:
		return fmt.Sprintf("Actor(%d)", a)
	}
}

// StepKind is the operation a step performs.
type StepKind uint8

const (
	StepBegin StepKind = iota
	StepRead
	StepWrite
	StepDelete
	StepCommit
	StepRollback

	// StepCheck is performed by the harness itself in a fresh READ COMMITTED transaction on a third session. It is
	// how a scenario asserts what is committed once both actors are done.
	StepCheck
)

type (
	// Step is a single operation of a scenario. Build steps with the constructors below rather than by hand.
	Step struct {
		Actor Actor
		Kind  StepKind
		Level options.IsolationLevel
		Key   string
		Value string

		// Expect is the value a read or check must observe. It is only enforced when hasExpectation is set, so
		// that an empty value can be expected too.
		Expect         string
		hasExpectation bool

		// ExpectErr is the error (compared by cause) the step must fail with. Nil means the step must succeed.
		ExpectErr error
	}

	// KeyValue is a single committed record a scenario starts from.
	KeyValue struct {
		Key   string
		Value string
	}

	// Scenario is a fixed, ordered script of steps across two sessions. Running a scenario twice against fresh
	// stores always produces the same observations.
	Scenario struct {
		Name        string
		Description string
		Seed        []KeyValue
		Steps       []Step
	}

	// Observation is what a step returned when it was performed.
	Observation struct {
		Index int
		Step  Step
		Value string
		Err   error
		At    time.Time
	}

	// Result is the full record of a scenario run.
	Result struct {
		Scenario     string
		Observations []Observation
		Elapsed      time.Duration
	}
)

func Begin(actor Actor, level options.IsolationLevel) Step {
	return Step{Actor: actor, Kind: StepBegin, Level: level}
}

// Read reads key without asserting anything about the value.
func Read(actor Actor, key string) Step {
	return Step{Actor: actor, Kind: StepRead, Key: key}
}

// ReadExpect reads key and fails the scenario unless the value equals want.
func ReadExpect(actor Actor, key, want string) Step {
	return Step{Actor: actor, Kind: StepRead, Key: key, Expect: want, hasExpectation: true}
}

func Write(actor Actor, key, value string) Step {
	return Step{Actor: actor, Kind: StepWrite, Key: key, Value: value}
}

func Delete(actor Actor, key string) Step {
	return Step{Actor: actor, Kind: StepDelete, Key: key}
}

func Commit(actor Actor) Step {
	return Step{Actor: actor, Kind: StepCommit}
}

// CommitFails commits and fails the scenario unless the commit returns an error whose cause is err.
func CommitFails(actor Actor, err error) Step {
	return Step{Actor: actor, Kind: StepCommit, ExpectErr: err}
}

func Rollback(actor Actor) Step {
	return Step{Actor: actor, Kind: StepRollback}
}

// Check reads the latest committed value of key outside of both actors' transactions.
func Check(key, want string) Step {
	return Step{Kind: StepCheck, Key: key, Expect: want, hasExpectation: true}
}

// HasExpectation returns true if the step asserts the value it observes.
func (s Step) HasExpectation() bool {
	return s.hasExpectation
}

func (s Step) String() string {
	switch s.Kind {
	case StepBegin:
		return fmt.Sprintf("%s: BEGIN %s", s.Actor, s.Level)
	case StepRead:
		return fmt.Sprintf("%s: READ %s", s.Actor, s.Key)
	case StepWrite:
		return fmt.Sprintf("%s: WRITE %s=%s", s.Actor, s.Key, s.Value)
	case StepDelete:
		return fmt.Sprintf("%s: DELETE %s", s.Actor, s.Key)
	case StepCommit:
		return fmt.Sprintf("%s: COMMIT", s.Actor)
	case StepRollback:
		return fmt.Sprintf("%s: ROLLBACK", s.Actor)
	case StepCheck:
		return fmt.Sprintf("CHECK %s", s.Key)
	default:
		return fmt.Sprintf("%s: UNKNOWN(%d)", s.Actor, s.Kind)
	}
}
