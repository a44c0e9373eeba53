package mvstore

import (
	"sync"
	"testing"

	"github.com/elliotcourant/mvstore/options"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracle_Begin(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "Alice", "100")

	t.Run("ids increase", func(t *testing.T) {
		first := begin(t, store, options.ReadCommitted)
		second := begin(t, store, options.ReadCommitted)
		assert.Greater(t, second.ID(), first.ID())
		assert.Equal(t, TransactionActive, first.State())
	})

	t.Run("snapshot levels capture the counter", func(t *testing.T) {
		for _, level := range []options.IsolationLevel{options.RepeatableRead, options.Serializable} {
			txn := begin(t, store, level)
			assert.Equal(t, uint64(1), txn.SnapshotAt())
			assert.Equal(t, level, txn.Level())
		}
	})

	t.Run("other levels do not", func(t *testing.T) {
		for _, level := range []options.IsolationLevel{options.ReadUncommitted, options.ReadCommitted} {
			txn := begin(t, store, level)
			assert.Zero(t, txn.SnapshotAt())
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := store.Begin(options.IsolationLevel(200))
		assert.Equal(t, ErrInvalidIsolationLevel, errors.Cause(err))
	})
}

func TestOracle_Finalize(t *testing.T) {
	t.Run("commit then anything", func(t *testing.T) {
		store := newTestStore(t)
		txn := begin(t, store, options.ReadCommitted)
		set(t, txn, "Alice", "100")
		result, err := txn.Commit()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), result.CommitOrder)
		assert.Equal(t, uint64(1), txn.CommitOrder())
		assert.Equal(t, TransactionCommitted, txn.State())

		_, err = txn.Get([]byte("Alice"))
		assert.Equal(t, ErrTransactionClosed, err)
		assert.Equal(t, ErrTransactionClosed, txn.Set([]byte("Alice"), []byte("1")))
		assert.Equal(t, ErrTransactionClosed, txn.Delete([]byte("Alice")))
		_, err = txn.Commit()
		assert.Equal(t, ErrTransactionClosed, err)
		assert.Equal(t, ErrTransactionClosed, txn.Rollback())
	})

	t.Run("rollback then anything", func(t *testing.T) {
		store := newTestStore(t)
		txn := begin(t, store, options.Serializable)
		set(t, txn, "Alice", "100")
		require.NoError(t, txn.Rollback())
		assert.Equal(t, TransactionAborted, txn.State())

		_, err := txn.Commit()
		assert.Equal(t, ErrTransactionClosed, err)
		assert.Equal(t, ErrTransactionClosed, txn.Rollback())
		assert.Zero(t, store.CommitCounter())
	})

	t.Run("read only commit does not advance the counter", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "Alice", "100")
		txn := begin(t, store, options.RepeatableRead)
		get(t, txn, "Alice")
		result, err := txn.Commit()
		require.NoError(t, err)
		assert.Zero(t, result.CommitOrder)
		assert.Equal(t, uint64(1), store.CommitCounter())
	})

	t.Run("failed certification leaves nothing visible", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "Alice", "100")

		loser := begin(t, store, options.Serializable)
		get(t, loser, "Alice")
		set(t, loser, "Carol", "1")

		winner := begin(t, store, options.Serializable)
		set(t, winner, "Alice", "200")
		_, err := winner.Commit()
		require.NoError(t, err)

		_, err = loser.Commit()
		require.Equal(t, ErrSerializationFailure, errors.Cause(err))
		assert.Zero(t, store.ActiveTransactions())

		reader := begin(t, store, options.ReadUncommitted)
		_, err = reader.Get([]byte("Carol"))
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("empty key", func(t *testing.T) {
		store := newTestStore(t)
		txn := begin(t, store, options.ReadCommitted)
		assert.Equal(t, ErrEmptyKey, txn.Set(nil, []byte("x")))
		_, err := txn.Get([]byte{})
		assert.Equal(t, ErrEmptyKey, err)
	})
}

func TestOracle_Horizon(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "Alice", "100")

	repeatable := begin(t, store, options.RepeatableRead)
	seedStore(t, store, "Alice", "200")
	serializable := begin(t, store, options.Serializable)
	seedStore(t, store, "Alice", "300")

	versions, certification := store.oracle.horizon()
	assert.Equal(t, uint64(1), versions)
	assert.Equal(t, uint64(2), certification)

	require.NoError(t, repeatable.Rollback())
	require.NoError(t, serializable.Rollback())

	versions, certification = store.oracle.horizon()
	assert.Equal(t, uint64(3), versions)
	assert.Equal(t, uint64(3), certification)
}

func TestOracle_ConcurrentCommits(t *testing.T) {
	store := newTestStore(t)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				txn, err := store.Begin(options.ReadCommitted)
				if !assert.NoError(t, err) {
					return
				}

				_ = txn.Set([]byte{'k', byte(i)}, []byte{byte(j)})
				_ = txn.Set([]byte{'s', byte(i)}, []byte{byte(j)})
				_, err = txn.Commit()
				assert.NoError(t, err)
			}
		}(i)
	}

	// Readers must always see both keys of a writer at the same value.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 0; n < 200; n++ {
			reader, err := store.Begin(options.RepeatableRead)
			if !assert.NoError(t, err) {
				return
			}

			for i := 0; i < writers; i++ {
				first, errFirst := reader.Get([]byte{'k', byte(i)})
				second, errSecond := reader.Get([]byte{'s', byte(i)})
				assert.Equal(t, errFirst, errSecond)
				assert.Equal(t, first, second)
			}

			_ = reader.Rollback()
		}
	}()

	wg.Wait()
	<-done

	assert.Equal(t, uint64(writers*perWriter), store.CommitCounter())
	assert.Zero(t, store.ActiveTransactions())
}
