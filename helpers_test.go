package mvstore

import (
	"testing"

	"github.com/elliotcourant/mvstore/options"
	"github.com/stretchr/testify/require"
)

var allLevels = []options.IsolationLevel{
	options.ReadUncommitted,
	options.ReadCommitted,
	options.RepeatableRead,
	options.Serializable,
}

func newTestStore(t testing.TB) *Store {
	store, err := Open(DefaultOptions().WithNumShards(4))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

// seedStore commits the provided key value pairs in a single transaction.
func seedStore(t testing.TB, store *Store, pairs ...string) {
	require.True(t, len(pairs)%2 == 0, "pairs must be key value pairs")
	err := store.Update(options.Serializable, func(txn *Transaction) error {
		for i := 0; i < len(pairs); i += 2 {
			if err := txn.Set([]byte(pairs[i]), []byte(pairs[i+1])); err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)
}

// committedValue reads a key in a fresh READ COMMITTED transaction.
func committedValue(t testing.TB, store *Store, key string) string {
	var value []byte
	err := store.Update(options.ReadCommitted, func(txn *Transaction) error {
		var err error
		value, err = txn.Get([]byte(key))
		return err
	})
	require.NoError(t, err)

	return string(value)
}

func begin(t testing.TB, store *Store, level options.IsolationLevel) *Transaction {
	txn, err := store.Begin(level)
	require.NoError(t, err)

	return txn
}

func get(t testing.TB, txn *Transaction, key string) string {
	value, err := txn.Get([]byte(key))
	require.NoError(t, err)

	return string(value)
}

func set(t testing.TB, txn *Transaction, key, value string) {
	require.NoError(t, txn.Set([]byte(key), []byte(value)))
}
