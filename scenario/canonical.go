package scenario

import (
	"github.com/elliotcourant/mvstore"
	"github.com/elliotcourant/mvstore/options"
)

// accounts is the committed state every scenario starts from.
var accounts = []KeyValue{
	{Key: "Alice", Value: "100"},
	{Key: "Bob", Value: "100"},
}

// DirtyRead shows that a READ UNCOMMITTED reader observes a write that is later rolled back, and that once it is
// rolled back nobody observes it again.
func DirtyRead() Scenario {
	return Scenario{
		Name:        "dirty read",
		Description: "READ UNCOMMITTED observes another transaction's uncommitted write",
		Seed:        accounts,
		Steps: []Step{
			Begin(A, options.ReadUncommitted),
			Write(A, "Alice", "9999"),
			Begin(B, options.ReadUncommitted),
			ReadExpect(B, "Alice", "9999"),
			Rollback(A),
			ReadExpect(B, "Alice", "100"),
			Commit(B),
			Check("Alice", "100"),
		},
	}
}

// ReadCommitted shows that a READ COMMITTED reader only observes the last committed value, even when another
// transaction has written the key twice without committing.
func ReadCommitted() Scenario {
	return Scenario{
		Name:        "read committed",
		Description: "READ COMMITTED never observes uncommitted writes",
		Seed:        accounts,
		Steps: []Step{
			Begin(A, options.ReadCommitted),
			Write(A, "Alice", "9999"),
			Write(A, "Alice", "666"),
			Begin(B, options.ReadCommitted),
			ReadExpect(B, "Alice", "100"),
			Rollback(A),
			Commit(B),
			Check("Alice", "100"),
		},
	}
}

// RepeatableRead shows that two reads of the same key by a REPEATABLE READ transaction return the same value even
// though another transaction committed a new value of that key in between.
func RepeatableRead() Scenario {
	return repeatedRead(
		"repeatable read",
		"REPEATABLE READ returns the same value for both reads of a key",
		options.RepeatableRead,
		"100",
	)
}

// NonRepeatableRead is RepeatableRead run at READ COMMITTED, where the second read observes the commit made in
// between.
func NonRepeatableRead() Scenario {
	return repeatedRead(
		"non-repeatable read",
		"READ COMMITTED observes a value committed between two reads of a key",
		options.ReadCommitted,
		"9999",
	)
}

func repeatedRead(name, description string, level options.IsolationLevel, secondRead string) Scenario {
	return Scenario{
		Name:        name,
		Description: description,
		Seed:        accounts,
		Steps: []Step{
			Begin(A, level),
			Write(A, "Bob", "666"),
			Begin(B, level),
			ReadExpect(B, "Alice", "100"),
			Write(A, "Alice", "9999"),
			Commit(A),
			ReadExpect(B, "Alice", secondRead),
			Commit(B),
			Check("Alice", "9999"),
			Check("Bob", "666"),
		},
	}
}

// SerializableConflict shows that a SERIALIZABLE transaction whose read was invalidated by a concurrent commit
// cannot commit, and that none of its writes become visible.
func SerializableConflict() Scenario {
	return Scenario{
		Name:        "serializable conflict",
		Description: "SERIALIZABLE rejects a commit whose reads were overwritten by a concurrent commit",
		Seed:        accounts,
		Steps: []Step{
			Begin(A, options.Serializable),
			ReadExpect(A, "Alice", "100"),
			Begin(B, options.Serializable),
			Write(B, "Alice", "500"),
			Write(B, "Bob", "300"),
			Commit(B),
			Write(A, "Alice", "9999"),
			CommitFails(A, mvstore.ErrSerializationFailure),
			Check("Alice", "500"),
			Check("Bob", "300"),
		},
	}
}

// LostUpdate shows two READ COMMITTED transactions that both read a balance and write back an increment of what
// they read. Both commit and the first increment is lost.
func LostUpdate() Scenario {
	return concurrentIncrement(
		"lost update",
		"READ COMMITTED lets a concurrent writer overwrite an increment",
		options.ReadCommitted,
		nil,
		"120",
	)
}

// LostUpdatePrevented is LostUpdate at SERIALIZABLE, the second writer is rejected and the first increment stays.
func LostUpdatePrevented() Scenario {
	return concurrentIncrement(
		"lost update prevented",
		"SERIALIZABLE rejects the second of two concurrent increments",
		options.Serializable,
		mvstore.ErrSerializationFailure,
		"150",
	)
}

func concurrentIncrement(name, description string, level options.IsolationLevel, secondCommit error, final string) Scenario {
	commitB := Commit(B)
	if secondCommit != nil {
		commitB = CommitFails(B, secondCommit)
	}

	return Scenario{
		Name:        name,
		Description: description,
		Seed:        accounts,
		Steps: []Step{
			Begin(A, level),
			Begin(B, level),
			ReadExpect(A, "Alice", "100"),
			ReadExpect(B, "Alice", "100"),
			Write(A, "Alice", "150"),
			Commit(A),
			Write(B, "Alice", "120"),
			commitB,
			Check("Alice", final),
		},
	}
}

// Canonical returns the four scenarios every build of the store must reproduce.
func Canonical() []Scenario {
	return []Scenario{
		DirtyRead(),
		ReadCommitted(),
		RepeatableRead(),
		SerializableConflict(),
	}
}

// All returns the canonical scenarios followed by their contrasting variants.
func All() []Scenario {
	return append(Canonical(),
		NonRepeatableRead(),
		LostUpdate(),
		LostUpdatePrevented(),
	)
}
