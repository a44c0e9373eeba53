package mvstore

import (
	"github.com/elliotcourant/mvstore/options"
	"github.com/elliotcourant/mvstore/z"
)

// TransactionState is the lifecycle position of a transaction. A transaction starts active and moves to committed
// or aborted exactly once.
type TransactionState uint8

const (
	TransactionActive TransactionState = iota
	TransactionCommitted
	TransactionAborted
)

func (s TransactionState) String() string {
	switch s {
	case TransactionActive:
		return "ACTIVE"
	case TransactionCommitted:
		return "COMMITTED"
	case TransactionAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

type (
	// Transaction is a unit of work bound to a single isolation level. A Transaction is not safe for concurrent use,
	// wrap it in a Session to share it between goroutines.
	Transaction struct {
		id          uint64
		snapshotAt  uint64
		commitOrder uint64

		policy policy
		state  TransactionState

		reads  []uint64 // contains fingerprints of keys read, only for levels that certify.
		writes []uint64 // contains fingerprints of keys written.

		// pendingWrites stores every version appended by this transaction in the order they were written. They are
		// stamped on commit and made invisible on rollback.
		pendingWrites []*version

		store *Store
	}
)

// ID returns the unique, monotonically increasing id of the transaction.
func (txn *Transaction) ID() uint64 {
	return txn.id
}

// Level returns the isolation level the transaction was started with.
func (txn *Transaction) Level() options.IsolationLevel {
	return txn.policy.level()
}

// State returns the lifecycle state of the transaction.
func (txn *Transaction) State() TransactionState {
	return txn.state
}

// SnapshotAt returns the commit order the transaction reads from. It is only meaningful for REPEATABLE READ and
// SERIALIZABLE transactions.
func (txn *Transaction) SnapshotAt() uint64 {
	return txn.snapshotAt
}

// CommitOrder returns the commit order assigned when the transaction committed, or zero.
func (txn *Transaction) CommitOrder() uint64 {
	return txn.commitOrder
}

// Get looks up the value of a key as seen by this transaction. ErrNotFound is returned if no version of the key is
// visible, ErrKeyDeleted if the visible version is a deletion. The returned slice must not be modified.
func (txn *Transaction) Get(key []byte) ([]byte, error) {
	v, err := txn.get(key)
	if err != nil {
		return nil, err
	}

	return v.value, nil
}

func (txn *Transaction) get(key []byte) (*version, error) {
	if txn.state != TransactionActive {
		return nil, ErrTransactionClosed
	}

	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	if txn.policy.tracksReads() {
		txn.reads = append(txn.reads, z.Fingerprint(key))
	}

	versions, watermark := txn.store.log.snapshotOf(key, func() uint64 {
		return txn.policy.watermark(txn)
	})

	v := txn.policy.resolve(txn, versions, watermark)
	switch {
	case v == nil:
		return nil, ErrNotFound
	case v.tombstone:
		return nil, ErrKeyDeleted
	default:
		return v, nil
	}
}

// Set appends a new version of the key holding value. The version is only visible to this transaction (and to
// READ UNCOMMITTED readers) until the transaction commits.
func (txn *Transaction) Set(key, value []byte) error {
	return txn.modify(key, value, false)
}

// Delete appends a deletion of the key. Readers that can see it get ErrKeyDeleted.
func (txn *Transaction) Delete(key []byte) error {
	return txn.modify(key, nil, true)
}

func (txn *Transaction) modify(key, value []byte, tombstone bool) error {
	if txn.state != TransactionActive {
		return ErrTransactionClosed
	}

	if len(key) == 0 {
		return ErrEmptyKey
	}

	// The version log keeps the slices for as long as the version lives, so take copies and let the caller reuse
	// theirs.
	keyCopy := append([]byte{}, key...)
	var valueCopy []byte
	if !tombstone {
		valueCopy = append([]byte{}, value...)
	}

	v := txn.store.log.append(keyCopy, valueCopy, tombstone, txn.id)
	txn.pendingWrites = append(txn.pendingWrites, v)
	txn.writes = append(txn.writes, z.Fingerprint(keyCopy))

	return nil
}

// Commit makes every write of the transaction visible at once. A serializable transaction is certified first, if
// another transaction committed a key it read or wrote after its snapshot then the transaction is rolled back and
// ErrSerializationFailure is returned.
func (txn *Transaction) Commit() (CommitResult, error) {
	return txn.store.oracle.commit(txn)
}

// Rollback discards every write of the transaction. It always succeeds on an active transaction.
func (txn *Transaction) Rollback() error {
	return txn.store.oracle.rollback(txn)
}
