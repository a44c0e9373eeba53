package mvstore

import (
	"sync"

	"github.com/elliotcourant/mvstore/options"
	"github.com/elliotcourant/mvstore/z"
	"github.com/elliotcourant/timber"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/net/trace"
)

type (
	// Store is an in memory multi-version record store. Every store starts with an empty version log and a commit
	// counter of zero, nothing outlives the process. Construct one per test run.
	Store struct {
		options Options

		log    *versionLog
		oracle *oracle

		eventLog trace.EventLog

		// closeOnce is used to make sure that the store can only be closed once.
		closeOnce sync.Once
	}
)

// Open creates a new empty store.
func Open(opts Options) (*Store, error) {
	if opts.NumShards <= 0 {
		return nil, errors.Wrapf(ErrInvalidShardCount, "got %d", opts.NumShards)
	}

	if !opts.DefaultIsolation.Valid() {
		return nil, errors.Wrapf(ErrInvalidIsolationLevel, "default isolation %d", opts.DefaultIsolation)
	}

	store := &Store{
		options:  opts,
		log:      newVersionLog(opts.NumShards),
		eventLog: z.NewEventLog("mvstore", "Store", opts.EventLogging),
	}
	store.oracle = newOracle(store.log, store.eventLog, opts.VerboseLogging)

	return store, nil
}

// Options returns the options the store was opened with.
func (s *Store) Options() Options {
	return s.options
}

// Begin starts a new transaction at the provided isolation level.
func (s *Store) Begin(level options.IsolationLevel) (*Transaction, error) {
	return s.oracle.begin(s, level)
}

// NewSession creates a new idle session on the store.
func (s *Store) NewSession() *Session {
	return &Session{
		id:    uuid.New(),
		store: s,
	}
}

// Update runs fn in a new transaction at the provided level, committing it if fn returns nil and rolling it back
// otherwise.
func (s *Store) Update(level options.IsolationLevel, fn func(txn *Transaction) error) error {
	txn, err := s.Begin(level)
	if err != nil {
		return err
	}

	if err := fn(txn); err != nil {
		_ = txn.Rollback()
		return err
	}

	_, err = txn.Commit()
	return err
}

// View runs fn in a read only REPEATABLE READ transaction which is always rolled back afterwards.
func (s *Store) View(fn func(txn *Transaction) error) error {
	txn, err := s.Begin(options.RepeatableRead)
	if err != nil {
		return err
	}
	defer func() {
		_ = txn.Rollback()
	}()

	return fn(txn)
}

// CommitCounter returns the commit order of the most recent commit.
func (s *Store) CommitCounter() uint64 {
	return s.oracle.readCounter()
}

// ActiveTransactions returns the number of transactions that have begun but not finished.
func (s *Store) ActiveTransactions() int {
	return s.oracle.activeCount()
}

// Vacuum removes versions no transaction can observe anymore: versions of rolled back transactions, and versions
// replaced by a commit older than the oldest active snapshot. It also prunes the commit table used to certify
// serializable transactions. Vacuum can run at any time alongside other operations.
func (s *Store) Vacuum() VacuumStats {
	versionHorizon, certificationHorizon := s.oracle.horizon()
	stats := s.log.vacuum(versionHorizon)
	commits := s.oracle.cleanupCommits(certificationHorizon)

	if s.options.VerboseLogging {
		timber.Debugf(
			"vacuum removed %d aborted and %d superseded versions, %d keys and %d commit entries (horizon %d)",
			stats.Aborted,
			stats.Superseded,
			stats.Keys,
			commits,
			versionHorizon,
		)
	}
	s.eventLog.Printf("vacuum horizon=%d aborted=%d superseded=%d", versionHorizon, stats.Aborted, stats.Superseded)

	return stats
}

// Close releases the store's event log. Transactions still active are left as they are, the store holds no other
// resources.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if active := s.oracle.activeCount(); active > 0 {
			timber.Warningf("closing store with %d active transactions", active)
		}

		s.eventLog.Finish()
	})

	return nil
}
