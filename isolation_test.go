package mvstore

import (
	"testing"

	"github.com/elliotcourant/mvstore/options"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyFor(t *testing.T) {
	for _, level := range allLevels {
		p, err := policyFor(level, nil)
		require.NoError(t, err)
		assert.Equal(t, level, p.level())
	}

	_, err := policyFor(options.IsolationLevel(9), nil)
	assert.Equal(t, ErrInvalidIsolationLevel, errors.Cause(err))
}

func TestDirtyRead(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "Alice", "100")

	writer := begin(t, store, options.ReadUncommitted)
	set(t, writer, "Alice", "9999")

	reader := begin(t, store, options.ReadUncommitted)
	assert.Equal(t, "9999", get(t, reader, "Alice"))

	require.NoError(t, writer.Rollback())
	assert.Equal(t, "100", get(t, reader, "Alice"))
	assert.Equal(t, "100", committedValue(t, store, "Alice"))
}

func TestNoDirtyRead(t *testing.T) {
	for _, level := range allLevels[1:] {
		t.Run(level.String(), func(t *testing.T) {
			store := newTestStore(t)
			seedStore(t, store, "Alice", "100")

			writer := begin(t, store, options.ReadUncommitted)
			set(t, writer, "Alice", "9999")
			set(t, writer, "Alice", "666")

			reader := begin(t, store, level)
			assert.Equal(t, "100", get(t, reader, "Alice"))

			require.NoError(t, writer.Rollback())
			_, err := reader.Commit()
			require.NoError(t, err)
		})
	}
}

func TestNonRepeatableRead(t *testing.T) {
	expectations := map[options.IsolationLevel]string{
		options.ReadUncommitted: "9999",
		options.ReadCommitted:   "9999",
		options.RepeatableRead:  "100",
		options.Serializable:    "100",
	}

	for _, level := range allLevels {
		t.Run(level.String(), func(t *testing.T) {
			store := newTestStore(t)
			seedStore(t, store, "Alice", "100")

			reader := begin(t, store, level)
			assert.Equal(t, "100", get(t, reader, "Alice"))

			writer := begin(t, store, options.ReadCommitted)
			set(t, writer, "Alice", "9999")
			_, err := writer.Commit()
			require.NoError(t, err)

			assert.Equal(t, expectations[level], get(t, reader, "Alice"))
			require.NoError(t, reader.Rollback())
		})
	}
}

func TestSerializationConflict(t *testing.T) {
	t.Run("read then write", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "Alice", "100", "Bob", "100")

		first := begin(t, store, options.Serializable)
		assert.Equal(t, "100", get(t, first, "Alice"))

		second := begin(t, store, options.Serializable)
		set(t, second, "Alice", "500")
		set(t, second, "Bob", "300")
		_, err := second.Commit()
		require.NoError(t, err)

		set(t, first, "Alice", "9999")
		_, err = first.Commit()
		assert.Equal(t, ErrSerializationFailure, errors.Cause(err))
		assert.Equal(t, TransactionAborted, first.State())
		assert.Equal(t, "500", committedValue(t, store, "Alice"))
		assert.Equal(t, "300", committedValue(t, store, "Bob"))
	})

	t.Run("read only", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "Alice", "100")

		reader := begin(t, store, options.Serializable)
		assert.Equal(t, "100", get(t, reader, "Alice"))

		writer := begin(t, store, options.ReadCommitted)
		set(t, writer, "Alice", "500")
		_, err := writer.Commit()
		require.NoError(t, err)

		_, err = reader.Commit()
		assert.Equal(t, ErrSerializationFailure, errors.Cause(err))
	})

	t.Run("write write", func(t *testing.T) {
		store := newTestStore(t)

		first := begin(t, store, options.Serializable)
		second := begin(t, store, options.Serializable)
		set(t, first, "Alice", "1")
		set(t, second, "Alice", "2")

		_, err := second.Commit()
		require.NoError(t, err)
		_, err = first.Commit()
		assert.Equal(t, ErrSerializationFailure, errors.Cause(err))
		assert.Equal(t, "2", committedValue(t, store, "Alice"))
	})

	t.Run("disjoint keys", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "Alice", "100", "Bob", "100")

		first := begin(t, store, options.Serializable)
		second := begin(t, store, options.Serializable)
		assert.Equal(t, "100", get(t, first, "Alice"))
		set(t, first, "Alice", "150")
		assert.Equal(t, "100", get(t, second, "Bob"))
		set(t, second, "Bob", "150")

		_, err := second.Commit()
		require.NoError(t, err)
		_, err = first.Commit()
		require.NoError(t, err)
	})

	t.Run("commit before snapshot", func(t *testing.T) {
		store := newTestStore(t)
		seedStore(t, store, "Alice", "100")

		txn := begin(t, store, options.Serializable)
		assert.Equal(t, "100", get(t, txn, "Alice"))
		set(t, txn, "Alice", "200")
		_, err := txn.Commit()
		require.NoError(t, err)
	})

	t.Run("weaker levels never certify", func(t *testing.T) {
		for _, level := range allLevels[:3] {
			store := newTestStore(t)
			seedStore(t, store, "Alice", "100")

			first := begin(t, store, level)
			get(t, first, "Alice")
			second := begin(t, store, level)
			set(t, second, "Alice", "500")
			_, err := second.Commit()
			require.NoError(t, err)

			set(t, first, "Alice", "9999")
			_, err = first.Commit()
			assert.NoError(t, err, level.String())
			assert.Equal(t, "9999", committedValue(t, store, "Alice"))
		}
	})
}

func TestReadYourOwnWrites(t *testing.T) {
	for _, level := range allLevels {
		t.Run(level.String(), func(t *testing.T) {
			store := newTestStore(t)
			seedStore(t, store, "Alice", "100")

			txn := begin(t, store, level)
			set(t, txn, "Alice", "9999")
			set(t, txn, "Alice", "666")
			assert.Equal(t, "666", get(t, txn, "Alice"))

			// A concurrent commit must not hide the transaction's own write.
			other := begin(t, store, options.ReadCommitted)
			set(t, other, "Alice", "1")
			_, err := other.Commit()
			require.NoError(t, err)
			assert.Equal(t, "666", get(t, txn, "Alice"))

			require.NoError(t, txn.Rollback())
			assert.Equal(t, "1", committedValue(t, store, "Alice"))
		})
	}
}

func TestReadUncommitted_LatestWrite(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "Alice", "100")

	// first appends before second but commits after it, so its version is the current one.
	first := begin(t, store, options.ReadCommitted)
	set(t, first, "Alice", "1")
	second := begin(t, store, options.ReadCommitted)
	set(t, second, "Alice", "2")
	_, err := second.Commit()
	require.NoError(t, err)
	_, err = first.Commit()
	require.NoError(t, err)

	reader := begin(t, store, options.ReadUncommitted)
	assert.Equal(t, "1", get(t, reader, "Alice"))
	assert.Equal(t, "1", committedValue(t, store, "Alice"))
}

func TestReadUncommitted_OwnWriteWins(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "Alice", "100")

	writer := begin(t, store, options.ReadUncommitted)
	set(t, writer, "Alice", "666")

	other := begin(t, store, options.ReadCommitted)
	set(t, other, "Alice", "1")
	assert.Equal(t, "666", get(t, writer, "Alice"))
	_, err := other.Commit()
	require.NoError(t, err)

	// The write this transaction is about to commit is the one it observes.
	assert.Equal(t, "666", get(t, writer, "Alice"))
	_, err = writer.Commit()
	require.NoError(t, err)
	assert.Equal(t, "666", committedValue(t, store, "Alice"))

	reader := begin(t, store, options.ReadUncommitted)
	assert.Equal(t, "666", get(t, reader, "Alice"))
}

func TestNotFoundAndDeleted(t *testing.T) {
	for _, level := range allLevels {
		t.Run(level.String(), func(t *testing.T) {
			store := newTestStore(t)
			seedStore(t, store, "Alice", "100")

			txn := begin(t, store, level)
			_, err := txn.Get([]byte("Carol"))
			assert.Equal(t, ErrNotFound, err)

			require.NoError(t, txn.Delete([]byte("Alice")))
			_, err = txn.Get([]byte("Alice"))
			assert.Equal(t, ErrKeyDeleted, err)
			_, err = txn.Commit()
			require.NoError(t, err)

			after := begin(t, store, level)
			_, err = after.Get([]byte("Alice"))
			assert.Equal(t, ErrKeyDeleted, err)
			require.NoError(t, after.Rollback())
		})
	}
}

func TestCommitIsAtomic(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store, "Alice", "100", "Bob", "100")

	reader := begin(t, store, options.RepeatableRead)

	writer := begin(t, store, options.Serializable)
	set(t, writer, "Alice", "50")
	set(t, writer, "Bob", "150")
	result, err := writer.Commit()
	require.NoError(t, err)
	assert.Equal(t, 2, result.Versions)
	assert.Equal(t, uint64(2), result.CommitOrder)

	assert.Equal(t, "100", get(t, reader, "Alice"))
	assert.Equal(t, "100", get(t, reader, "Bob"))

	after := begin(t, store, options.RepeatableRead)
	assert.Equal(t, "50", get(t, after, "Alice"))
	assert.Equal(t, "150", get(t, after, "Bob"))
}
