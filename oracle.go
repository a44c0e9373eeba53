package mvstore

import (
	"sync"
	"sync/atomic"

	"github.com/elliotcourant/mvstore/options"
	"github.com/elliotcourant/mvstore/z"
	"github.com/elliotcourant/timber"
	"golang.org/x/net/trace"
)

type (
	oracle struct {
		// Used for nextTransactionId, the active set, commits and every state transition of a transaction.
		sync.Mutex

		// nextTransactionId is the id handed to the next transaction that begins. Ids start at 1 so that a zero
		// createdBy or deletedBy always means "none".
		nextTransactionId uint64

		// commitCounter is the commit order of the most recent commit. It is only written while the lock is held,
		// after every version of that commit has been stamped, but it is read without the lock by READ COMMITTED
		// readers. A reader can therefore never see part of a commit.
		commitCounter atomic.Uint64

		// active stores every transaction that has begun but not been committed or rolled back yet.
		active map[uint64]*Transaction

		// commits stores a key fingerprint and the commit order of the latest commit that wrote it. It is used to
		// certify serializable transactions and is pruned by cleanupCommits to avoid a memory blowup.
		commits map[uint64]uint64

		log      *versionLog
		eventLog trace.EventLog
		verbose  bool
	}

	// CommitResult describes a successful commit.
	CommitResult struct {
		// CommitOrder is the position of this commit in the global commit order. It is zero for a transaction that
		// did not write anything, since such a commit changes nothing any reader could observe.
		CommitOrder uint64

		// Versions is the number of versions that became visible with this commit.
		Versions int
	}
)

func newOracle(log *versionLog, eventLog trace.EventLog, verbose bool) *oracle {
	return &oracle{
		nextTransactionId: 1,
		active:            map[uint64]*Transaction{},
		commits:           map[uint64]uint64{},
		log:               log,
		eventLog:          eventLog,
		verbose:           verbose,
	}
}

// readCounter returns the commit order of the most recently published commit.
func (o *oracle) readCounter() uint64 {
	return o.commitCounter.Load()
}

func (o *oracle) begin(store *Store, level options.IsolationLevel) (*Transaction, error) {
	p, err := policyFor(level, o)
	if err != nil {
		return nil, err
	}

	o.Lock()
	defer o.Unlock()

	txn := &Transaction{
		id:     o.nextTransactionId,
		policy: p,
		state:  TransactionActive,
		store:  store,
	}
	o.nextTransactionId++

	// The snapshot is captured under the lock, so it can never fall between a commit stamping its versions and
	// publishing its commit order.
	if p.takesSnapshot() {
		txn.snapshotAt = o.commitCounter.Load()
	}

	o.active[txn.id] = txn

	if o.verbose {
		timber.Debugf("begin transaction %d at %s snapshot %d", txn.id, level, txn.snapshotAt)
	}
	o.eventLog.Printf("begin txn=%d level=%s snapshot=%d", txn.id, level, txn.snapshotAt)

	return txn, nil
}

// hasConflict returns the first fingerprint the transaction read or wrote that was committed by someone else after
// the transaction's snapshot. The caller must hold the lock.
func (o *oracle) hasConflict(txn *Transaction) (uint64, bool) {
	for _, keys := range [][]uint64{txn.reads, txn.writes} {
		for _, fingerprint := range keys {
			if order, has := o.commits[fingerprint]; has && order > txn.snapshotAt {
				return fingerprint, true
			}
		}
	}

	return 0, false
}

// commit certifies the transaction (if its level requires it) and then makes every version it wrote visible at
// once under a single new commit order. If certification fails the transaction is rolled back before the error is
// returned.
func (o *oracle) commit(txn *Transaction) (CommitResult, error) {
	o.Lock()
	defer o.Unlock()

	if txn.state != TransactionActive {
		return CommitResult{}, ErrTransactionClosed
	}

	if err := txn.policy.certify(txn); err != nil {
		o.abortLocked(txn)
		timber.Warningf("transaction %d at %s failed certification: %v", txn.id, txn.policy.level(), err)
		o.eventLog.Errorf("abort txn=%d: %v", txn.id, err)
		return CommitResult{}, err
	}

	result := CommitResult{
		Versions: len(txn.pendingWrites),
	}

	if len(txn.pendingWrites) > 0 {
		commitOrder := o.commitCounter.Load() + 1
		for _, v := range txn.pendingWrites {
			o.log.markCommitted(v, commitOrder)
		}

		for _, fingerprint := range txn.writes {
			o.commits[fingerprint] = commitOrder
		}

		// Publish only after every version has been stamped.
		o.commitCounter.Store(commitOrder)
		result.CommitOrder = commitOrder
	}

	txn.commitOrder = result.CommitOrder
	txn.state = TransactionCommitted
	delete(o.active, txn.id)

	if o.verbose {
		timber.Debugf("commit transaction %d order %d versions %d", txn.id, result.CommitOrder, result.Versions)
	}
	o.eventLog.Printf("commit txn=%d order=%d versions=%d", txn.id, result.CommitOrder, result.Versions)

	return result, nil
}

// rollback marks every version the transaction wrote as permanently invisible.
func (o *oracle) rollback(txn *Transaction) error {
	o.Lock()
	defer o.Unlock()

	if txn.state != TransactionActive {
		return ErrTransactionClosed
	}

	o.abortLocked(txn)

	if o.verbose {
		timber.Debugf("rollback transaction %d versions %d", txn.id, len(txn.pendingWrites))
	}
	o.eventLog.Printf("rollback txn=%d versions=%d", txn.id, len(txn.pendingWrites))

	return nil
}

func (o *oracle) abortLocked(txn *Transaction) {
	z.AssertTrue(txn.state == TransactionActive)
	for _, v := range txn.pendingWrites {
		o.log.markInvisible(v)
	}

	txn.state = TransactionAborted
	delete(o.active, txn.id)
}

// horizon returns the oldest commit order any active or future transaction may still resolve a read against, along
// with the oldest snapshot held by an active serializable transaction. Both are the current commit counter when
// nothing older is held.
func (o *oracle) horizon() (versions uint64, certification uint64) {
	o.Lock()
	defer o.Unlock()

	versions = o.commitCounter.Load()
	certification = versions
	for _, txn := range o.active {
		if !txn.policy.takesSnapshot() {
			continue
		}

		if txn.snapshotAt < versions {
			versions = txn.snapshotAt
		}

		if txn.policy.tracksReads() && txn.snapshotAt < certification {
			certification = txn.snapshotAt
		}
	}

	return versions, certification
}

// cleanupCommits drops every entry that no serializable transaction could ever conflict with. An entry committed
// at or before the oldest serializable snapshot can never be greater than any snapshot that will be certified.
func (o *oracle) cleanupCommits(horizon uint64) int {
	o.Lock()
	defer o.Unlock()

	removed := 0
	for fingerprint, order := range o.commits {
		if order <= horizon {
			delete(o.commits, fingerprint)
			removed++
		}
	}

	return removed
}

// activeCount returns the number of transactions that have not finished yet.
func (o *oracle) activeCount() int {
	o.Lock()
	defer o.Unlock()

	return len(o.active)
}
