package scenario

import (
	"fmt"
	"time"

	"github.com/elliotcourant/mvstore"
	"github.com/elliotcourant/mvstore/options"
	"github.com/elliotcourant/mvstore/z"
	"github.com/elliotcourant/timber"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownActor is returned when a scenario has a step for an actor other than A or B.
	ErrUnknownActor = errors.New("scenario step references an unknown actor")

	// ErrUnknownStep is returned when a scenario has a step of an unknown kind.
	ErrUnknownStep = errors.New("scenario step has an unknown kind")
)

type (
	// StepError is returned by Run when a step observes something other than what it expected.
	StepError struct {
		Scenario string
		Index    int
		Step     Step
		Got      string
		GotErr   error
	}

	// worker owns one session and performs the steps it is handed one at a time on its own goroutine.
	worker struct {
		session      *mvstore.Session
		steps        chan Step
		observations chan Observation
	}
)

func (e *StepError) Error() string {
	switch {
	case e.GotErr != nil && e.Step.ExpectErr == nil:
		return fmt.Sprintf("%s step %d (%s): unexpected error: %v", e.Scenario, e.Index, e.Step, e.GotErr)
	case e.Step.ExpectErr != nil && errors.Cause(e.GotErr) != e.Step.ExpectErr:
		return fmt.Sprintf(
			"%s step %d (%s): expected error %q, got %v",
			e.Scenario, e.Index, e.Step, e.Step.ExpectErr, e.GotErr,
		)
	default:
		return fmt.Sprintf("%s step %d (%s): expected %q, got %q", e.Scenario, e.Index, e.Step, e.Step.Expect, e.Got)
	}
}

func newWorker(session *mvstore.Session) *worker {
	return &worker{
		session:      session,
		steps:        make(chan Step),
		observations: make(chan Observation),
	}
}

// run performs steps until the harness closes the step channel. Whatever transaction is still open at that point
// is rolled back so an aborted scenario never leaves an active transaction behind.
func (w *worker) run() error {
	defer func() {
		if w.session.InTransaction() {
			if err := w.session.Rollback(); err != nil {
				timber.Warningf("session %s: failed to roll back after scenario: %v", w.session.ID(), err)
			}
		}
	}()

	for step := range w.steps {
		w.observations <- perform(w.session, step)
	}

	return nil
}

func perform(session *mvstore.Session, step Step) Observation {
	observation := Observation{
		Step: step,
		At:   time.Now(),
	}

	switch step.Kind {
	case StepBegin:
		observation.Err = session.Begin(step.Level)
	case StepRead:
		value, err := session.Read([]byte(step.Key))
		observation.Value, observation.Err = string(value), err
	case StepWrite:
		observation.Err = session.Write([]byte(step.Key), []byte(step.Value))
	case StepDelete:
		observation.Err = session.Delete([]byte(step.Key))
	case StepCommit:
		_, observation.Err = session.Commit()
	case StepRollback:
		observation.Err = session.Rollback()
	default:
		observation.Err = errors.Wrapf(ErrUnknownStep, "kind %d", step.Kind)
	}

	timber.Debugf("session %s %s -> value=%q err=%v", session.ID(), step, observation.Value, observation.Err)

	return observation
}

// check reads the committed value of the key in a fresh READ COMMITTED transaction on its own session.
func check(store *mvstore.Store, step Step) Observation {
	session := store.NewSession()
	observation := Observation{
		Step: step,
		At:   time.Now(),
	}

	if observation.Err = session.Begin(options.ReadCommitted); observation.Err != nil {
		return observation
	}

	value, err := session.Read([]byte(step.Key))
	observation.Value, observation.Err = string(value), err
	if _, err := session.Commit(); err != nil && observation.Err == nil {
		observation.Err = err
	}

	return observation
}

func verify(scenario string, observation Observation) error {
	step := observation.Step
	failed := false
	switch {
	case step.ExpectErr != nil:
		failed = errors.Cause(observation.Err) != step.ExpectErr
	case observation.Err != nil:
		failed = true
	case step.hasExpectation:
		failed = observation.Value != step.Expect
	}

	if !failed {
		return nil
	}

	return &StepError{
		Scenario: scenario,
		Index:    observation.Index,
		Step:     step,
		Got:      observation.Value,
		GotErr:   observation.Err,
	}
}

// Seed commits the records in a single serializable transaction.
func Seed(store *mvstore.Store, records []KeyValue) error {
	if len(records) == 0 {
		return nil
	}

	session := store.NewSession()
	if err := session.Begin(options.Serializable); err != nil {
		return err
	}

	for _, record := range records {
		if err := session.Write([]byte(record.Key), []byte(record.Value)); err != nil {
			_ = session.Rollback()
			return errors.Wrapf(err, "failed to seed %s", record.Key)
		}
	}

	_, err := session.Commit()
	return err
}

// Validate makes sure every step of the scenario can be performed.
func (s Scenario) Validate() error {
	for i, step := range s.Steps {
		if step.Kind > StepCheck {
			return errors.Wrapf(ErrUnknownStep, "%s step %d", s.Name, i)
		}

		if step.Kind != StepCheck && step.Actor != A && step.Actor != B {
			return errors.Wrapf(ErrUnknownActor, "%s step %d: %s", s.Name, i, step.Actor)
		}
	}

	return nil
}

// Run seeds the store and performs every step of the scenario in order. Each actor's steps are performed by that
// actor's own goroutine, but a step is only handed out once the previous step, on whichever actor, has returned.
// The interleaving is therefore exactly the order of the script. Run stops at the first step whose observation
// does not match its expectation and returns a *StepError describing it, along with everything observed so far.
func Run(store *mvstore.Store, s Scenario) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if err := Seed(store, s.Seed); err != nil {
		return nil, errors.Wrapf(err, "failed to seed scenario %s", s.Name)
	}

	start := time.Now()
	workers := [...]*worker{
		A: newWorker(store.NewSession()),
		B: newWorker(store.NewSession()),
	}

	throttle := z.NewThrottle(len(workers))
	for _, w := range workers {
		z.Check(throttle.Go(w.run))
	}

	result := &Result{
		Scenario:     s.Name,
		Observations: make([]Observation, 0, len(s.Steps)),
	}

	var failure error
	for i, step := range s.Steps {
		var observation Observation
		if step.Kind == StepCheck {
			observation = check(store, step)
		} else {
			w := workers[step.Actor]
			w.steps <- step
			observation = <-w.observations
		}

		observation.Index = i
		result.Observations = append(result.Observations, observation)

		if failure = verify(s.Name, observation); failure != nil {
			break
		}
	}

	for _, w := range workers {
		close(w.steps)
	}

	if err := throttle.Finish(); err != nil && failure == nil {
		failure = err
	}

	result.Elapsed = time.Since(start)

	if failure != nil {
		timber.Warningf("scenario %s failed: %v", s.Name, failure)
	} else {
		timber.Infof("scenario %s passed %d steps in %s", s.Name, len(s.Steps), result.Elapsed)
	}

	return result, failure
}

// RunAll runs every scenario against its own fresh store created by open.
func RunAll(open func() (*mvstore.Store, error), scenarios []Scenario) ([]*Result, error) {
	results := make([]*Result, 0, len(scenarios))
	for _, s := range scenarios {
		store, err := open()
		if err != nil {
			return results, err
		}

		result, err := Run(store, s)
		_ = store.Close()
		if result != nil {
			results = append(results, result)
		}

		if err != nil {
			return results, err
		}
	}

	return results, nil
}
