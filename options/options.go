package options

import "strings"

// IsolationLevel specifies which versions of a key a transaction is allowed to observe, and whether
// the transaction has to be certified against concurrent writers when it commits.
type IsolationLevel uint8

const (
	// ReadUncommitted lets a transaction observe any write that has not been rolled back, including
	// writes made by transactions that are still active.
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted indicates that every read observes the latest committed version at the moment of
	// that specific read.
	ReadCommitted
	// RepeatableRead fixes a snapshot when the transaction begins, committed writes made after that
	// point are never observed.
	RepeatableRead
	// Serializable reads from a snapshot like RepeatableRead, but also tracks every key read and
	// written so that the commit can be rejected if another transaction committed any of them after
	// the snapshot was taken.
	Serializable
)

var isolationLevelNames = [...]string{
	ReadUncommitted: "READ UNCOMMITTED",
	ReadCommitted:   "READ COMMITTED",
	RepeatableRead:  "REPEATABLE READ",
	Serializable:    "SERIALIZABLE",
}

// Valid returns true if the level is one of the four known isolation levels.
func (l IsolationLevel) Valid() bool {
	return int(l) < len(isolationLevelNames)
}

func (l IsolationLevel) String() string {
	if !l.Valid() {
		return "UNKNOWN"
	}

	return isolationLevelNames[l]
}

// ParseIsolationLevel accepts the SQL spelling of an isolation level ("READ COMMITTED") as well as
// the underscore and lower case variants ("read_committed").
func ParseIsolationLevel(input string) (IsolationLevel, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(input))
	normalized = strings.NewReplacer("_", " ", "-", " ").Replace(normalized)
	for i, name := range isolationLevelNames {
		if name == normalized {
			return IsolationLevel(i), true
		}
	}

	return 0, false
}
