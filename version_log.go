package mvstore

import (
	"sync"
	"sync/atomic"

	"github.com/elliotcourant/mvstore/z"
	"github.com/tidwall/btree"
)

type (
	// version is a single immutable revision of a key. The key, value, tombstone and createdBy fields never change
	// once the version has been appended. The remaining fields are stamped by the oracle while it holds its lock
	// and are read by concurrent readers without any lock, so they are all atomics.
	version struct {
		key       []byte
		value     []byte
		tombstone bool

		// createdBy is the id of the transaction that appended this version.
		createdBy uint64

		// commitOrder is zero while the creating transaction is active. It is set exactly once when that
		// transaction commits.
		commitOrder atomic.Uint64

		// deletedBy is the id of the transaction whose committed version replaced this one as the current value
		// of the key. supersededAt is the commit order of that replacement, vacuum uses it to decide whether any
		// reader could still need this version.
		deletedBy    atomic.Uint64
		supersededAt atomic.Uint64

		// invisible is set when the creating transaction rolls back. Once set it is never cleared.
		invisible atomic.Bool
	}

	// logShard owns the version chains for every key whose fingerprint maps to it.
	logShard struct {
		sync.RWMutex

		// chains stores every version of a key, oldest first.
		chains map[string][]*version
	}

	// versionLog is the raw multi-version history of every key. It knows nothing about isolation levels, it only
	// answers which versions of a key exist. Deciding which of those a reader may observe is left to the policy
	// of the reading transaction.
	versionLog struct {
		shards []*logShard

		// indexLock guards index. It may be acquired while holding a shard lock, but a shard lock must never be
		// acquired while holding indexLock.
		indexLock sync.RWMutex

		// index keeps every key that has a chain in sorted order so range queries don't need to visit every
		// shard.
		index btree.Set[string]
	}

	// VacuumStats reports what a vacuum pass removed from the version log.
	VacuumStats struct {
		Aborted    int
		Superseded int
		Keys       int
	}
)

func newVersionLog(numShards int) *versionLog {
	z.AssertTruef(numShards > 0, "version log needs at least one shard, got %d", numShards)
	log := &versionLog{
		shards: make([]*logShard, numShards),
	}

	for i := range log.shards {
		log.shards[i] = &logShard{
			chains: map[string][]*version{},
		}
	}

	return log
}

func (v *version) committed() bool {
	return v.commitOrder.Load() != 0
}

func (l *versionLog) shardFor(key []byte) *logShard {
	return l.shards[z.Fingerprint(key)%uint64(len(l.shards))]
}

// append creates a new uncommitted version at the head of the key's chain. Appends to the same key by different
// active transactions are all retained, deciding whether they conflict is not the log's job.
func (l *versionLog) append(key, value []byte, tombstone bool, transactionId uint64) *version {
	v := &version{
		key:       key,
		value:     value,
		tombstone: tombstone,
		createdBy: transactionId,
	}

	shard := l.shardFor(key)
	shard.Lock()
	defer shard.Unlock()

	chain, ok := shard.chains[string(key)]
	if !ok {
		l.indexLock.Lock()
		l.index.Insert(string(key))
		l.indexLock.Unlock()
	}

	shard.chains[string(key)] = append(chain, v)

	return v
}

// markCommitted stamps the version with its commit order. The committed version that was the current value of the
// key up until now is marked as superseded by the committing transaction. The caller must hold the oracle lock so
// that two commits never stamp the same key at the same time.
func (l *versionLog) markCommitted(v *version, commitOrder uint64) {
	shard := l.shardFor(v.key)
	shard.RLock()
	defer shard.RUnlock()

	for _, other := range shard.chains[string(v.key)] {
		if other == v || !other.committed() || other.invisible.Load() {
			continue
		}

		if other.deletedBy.Load() == 0 {
			other.supersededAt.Store(commitOrder)
			other.deletedBy.Store(v.createdBy)
		}
	}

	v.commitOrder.Store(commitOrder)
}

// markInvisible permanently excludes the version from every visibility decision.
func (l *versionLog) markInvisible(v *version) {
	v.invisible.Store(true)
}

// versionsOf returns the full history of the key, newest first.
func (l *versionLog) versionsOf(key []byte) []*version {
	versions, _ := l.snapshotOf(key, nil)
	return versions
}

// snapshotOf returns the full history of the key newest first, along with the watermark returned by sample. The
// watermark is sampled while the shard is locked so that vacuum cannot remove a version the reader still needs
// between the moment the watermark is taken and the moment the chain is copied.
func (l *versionLog) snapshotOf(key []byte, sample func() uint64) ([]*version, uint64) {
	shard := l.shardFor(key)
	shard.RLock()
	defer shard.RUnlock()

	var watermark uint64
	if sample != nil {
		watermark = sample()
	}

	chain := shard.chains[string(key)]
	versions := make([]*version, len(chain))
	for i, v := range chain {
		versions[len(chain)-1-i] = v
	}

	return versions, watermark
}

// keys returns every key in the range in ascending order, whether or not any version of it is visible to anyone.
func (l *versionLog) keys(bounds keyRange) [][]byte {
	l.indexLock.RLock()
	defer l.indexLock.RUnlock()

	keys := make([][]byte, 0)
	l.index.Ascend(string(bounds.left), func(key string) bool {
		if !bounds.includes([]byte(key)) {
			return false
		}

		keys = append(keys, []byte(key))
		return true
	})

	return keys
}

// vacuum removes rolled back versions, and committed versions that were superseded at or before horizon. No active
// or future transaction can resolve to a version superseded at or before the horizon since the superseding version
// is visible to all of them.
func (l *versionLog) vacuum(horizon uint64) VacuumStats {
	var stats VacuumStats
	for _, shard := range l.shards {
		shard.Lock()
		for key, chain := range shard.chains {
			kept := chain[:0]
			for _, v := range chain {
				switch {
				case v.invisible.Load():
					stats.Aborted++
				case v.deletedBy.Load() != 0 && v.supersededAt.Load() <= horizon:
					stats.Superseded++
				default:
					kept = append(kept, v)
				}
			}

			// Clear the tail so the removed versions can be collected.
			for i := len(kept); i < len(chain); i++ {
				chain[i] = nil
			}

			if len(kept) > 0 {
				shard.chains[key] = kept
				continue
			}

			delete(shard.chains, key)
			l.indexLock.Lock()
			l.index.Delete(key)
			l.indexLock.Unlock()
			stats.Keys++
		}
		shard.Unlock()
	}

	return stats
}
