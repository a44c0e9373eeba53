package mvstore

import (
	"github.com/pkg/errors"
)

var (
	// ErrNoActiveTransaction is returned when a session is asked to read, write or finish a transaction
	// but it has not begun one.
	ErrNoActiveTransaction = errors.New("session does not have an active transaction")

	// ErrSessionBusy is returned when Begin is called on a session that already has an open transaction.
	// The open transaction must be committed or rolled back first.
	ErrSessionBusy = errors.New("session already has an active transaction")

	// ErrTransactionClosed is returned when an operation is attempted on a transaction that has already
	// been committed or rolled back.
	ErrTransactionClosed = errors.New("transaction has already been committed or rolled back")

	// ErrSerializationFailure is returned by Commit on a serializable transaction when another
	// transaction committed a write to one of the keys it read or wrote after its snapshot was taken.
	// The transaction has been rolled back by the time this error is returned, nothing is retried.
	ErrSerializationFailure = errors.New("could not serialize access due to concurrent update")

	// ErrNotFound is returned when no version of a key is visible to the reading transaction.
	ErrNotFound = errors.New("key not found")

	// ErrKeyDeleted is returned when the version of a key visible to the reading transaction is a
	// deletion. It is distinct from ErrNotFound so callers can tell a removed record from one that was
	// never written.
	ErrKeyDeleted = errors.New("key has been deleted")

	// ErrEmptyKey is returned if an empty key is passed on an update function.
	ErrEmptyKey = errors.New("key cannot be empty")

	// ErrInvalidIsolationLevel is returned when a transaction is started with a level outside of the
	// four supported isolation levels.
	ErrInvalidIsolationLevel = errors.New("invalid isolation level")

	// ErrInvalidShardCount is returned by Open when the number of version log shards is not positive.
	ErrInvalidShardCount = errors.New("number of shards must be greater than zero")
)
