package mvstore

import (
	"github.com/elliotcourant/mvstore/options"
	"github.com/pkg/errors"
)

type (
	// policy is the visibility and certification contract of a single isolation level. Transactions only ever talk
	// to their policy, so auditing what a level allows means reading exactly one implementation below.
	policy interface {
		// level returns the isolation level this policy implements.
		level() options.IsolationLevel

		// takesSnapshot is true when the commit counter has to be captured at begin.
		takesSnapshot() bool

		// watermark returns the highest commit order a read made right now may observe.
		watermark(txn *Transaction) uint64

		// visible decides whether a single version may be observed by the transaction given the watermark that was
		// sampled for this read.
		visible(txn *Transaction, v *version, watermark uint64) bool

		// resolve picks the version a read returns out of the key's history (newest first). Nil means there is no
		// version visible to the transaction.
		resolve(txn *Transaction, versions []*version, watermark uint64) *version

		// tracksReads is true when every key read has to be remembered for certification.
		tracksReads() bool

		// certify is called by the oracle with its lock held before a commit is applied. A non-nil error aborts
		// the commit.
		certify(txn *Transaction) error
	}

	readUncommitted struct{}

	readCommitted struct {
		oracle *oracle
	}

	repeatableRead struct{}

	serializable struct {
		repeatableRead
		oracle *oracle
	}
)

var (
	_ policy = readUncommitted{}
	_ policy = readCommitted{}
	_ policy = repeatableRead{}
	_ policy = serializable{}
)

// policyFor returns the policy for the provided isolation level.
func policyFor(level options.IsolationLevel, o *oracle) (policy, error) {
	switch level {
	case options.ReadUncommitted:
		return readUncommitted{}, nil
	case options.ReadCommitted:
		return readCommitted{oracle: o}, nil
	case options.RepeatableRead:
		return repeatableRead{}, nil
	case options.Serializable:
		return serializable{oracle: o}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidIsolationLevel, "level %d", level)
	}
}

// resolveCommitted is shared by every level that never shows another transaction's uncommitted writes. The reader's
// own newest write wins, otherwise the visible committed version with the greatest commit order does.
func resolveCommitted(p policy, txn *Transaction, versions []*version, watermark uint64) *version {
	var best *version
	for _, v := range versions {
		if !p.visible(txn, v, watermark) {
			continue
		}

		if v.createdBy == txn.id {
			return v
		}

		// Versions are newest first, so on a tie (several versions stamped by one commit) the first one seen was
		// written last and wins.
		if best == nil || v.commitOrder.Load() > best.commitOrder.Load() {
			best = v
		}
	}

	return best
}

func (readUncommitted) level() options.IsolationLevel { return options.ReadUncommitted }

func (readUncommitted) takesSnapshot() bool { return false }

func (readUncommitted) watermark(*Transaction) uint64 { return 0 }

func (readUncommitted) visible(_ *Transaction, v *version, _ uint64) bool {
	return !v.invisible.Load()
}

// resolve returns the reader's own newest write if it has one. Otherwise it returns the most recent write that has
// not been rolled back or replaced by a later commit, regardless of who wrote it or whether it has committed.
func (p readUncommitted) resolve(txn *Transaction, versions []*version, watermark uint64) *version {
	var latest *version
	for _, v := range versions {
		if !p.visible(txn, v, watermark) {
			continue
		}

		if v.createdBy == txn.id {
			return v
		}

		if latest == nil && v.deletedBy.Load() == 0 {
			latest = v
		}
	}

	return latest
}

func (readUncommitted) tracksReads() bool { return false }

func (readUncommitted) certify(*Transaction) error { return nil }

func (readCommitted) level() options.IsolationLevel { return options.ReadCommitted }

func (readCommitted) takesSnapshot() bool { return false }

// watermark is re-sampled on every read.
func (p readCommitted) watermark(*Transaction) uint64 {
	return p.oracle.readCounter()
}

func (readCommitted) visible(txn *Transaction, v *version, watermark uint64) bool {
	if v.invisible.Load() {
		return false
	}

	if v.createdBy == txn.id {
		return true
	}

	order := v.commitOrder.Load()
	return order != 0 && order <= watermark
}

func (p readCommitted) resolve(txn *Transaction, versions []*version, watermark uint64) *version {
	return resolveCommitted(p, txn, versions, watermark)
}

func (readCommitted) tracksReads() bool { return false }

func (readCommitted) certify(*Transaction) error { return nil }

func (repeatableRead) level() options.IsolationLevel { return options.RepeatableRead }

func (repeatableRead) takesSnapshot() bool { return true }

// watermark never moves after begin, commits made later are never observed.
func (repeatableRead) watermark(txn *Transaction) uint64 {
	return txn.snapshotAt
}

func (repeatableRead) visible(txn *Transaction, v *version, watermark uint64) bool {
	if v.invisible.Load() {
		return false
	}

	if v.createdBy == txn.id {
		return true
	}

	order := v.commitOrder.Load()
	return order != 0 && order <= watermark
}

func (p repeatableRead) resolve(txn *Transaction, versions []*version, watermark uint64) *version {
	return resolveCommitted(p, txn, versions, watermark)
}

func (repeatableRead) tracksReads() bool { return false }

func (repeatableRead) certify(*Transaction) error { return nil }

func (serializable) level() options.IsolationLevel { return options.Serializable }

// resolve has to be redeclared so that resolveCommitted dispatches visible through serializable rather than the
// embedded repeatableRead.
func (p serializable) resolve(txn *Transaction, versions []*version, watermark uint64) *version {
	return resolveCommitted(p, txn, versions, watermark)
}

func (serializable) tracksReads() bool { return true }

// certify performs backward validation. The transaction conflicts if any key it read or wrote was committed by
// another transaction after this transaction's snapshot was taken.
func (p serializable) certify(txn *Transaction) error {
	if key, ok := p.oracle.hasConflict(txn); ok {
		return errors.Wrapf(
			ErrSerializationFailure,
			"transaction %d: key fingerprint %x committed after snapshot %d",
			txn.id,
			key,
			txn.snapshotAt,
		)
	}

	return nil
}
