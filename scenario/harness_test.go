package scenario

import (
	"testing"

	"github.com/elliotcourant/mvstore"
	"github.com/elliotcourant/mvstore/options"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore() (*mvstore.Store, error) {
	return mvstore.Open(mvstore.DefaultOptions().WithNumShards(4))
}

func newTestStore(t *testing.T) *mvstore.Store {
	store, err := openStore()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func TestCanonicalScenarios(t *testing.T) {
	for _, s := range All() {
		s := s
		t.Run(s.Name, func(t *testing.T) {
			store := newTestStore(t)
			result, err := Run(store, s)
			require.NoError(t, err)
			assert.Len(t, result.Observations, len(s.Steps))
			assert.Zero(t, store.ActiveTransactions())
		})
	}
}

func TestScenariosAreDeterministic(t *testing.T) {
	for _, s := range Canonical() {
		var previous []string
		for run := 0; run < 20; run++ {
			result, err := Run(newTestStore(t), s)
			require.NoError(t, err)

			values := make([]string, 0, len(result.Observations))
			for _, observation := range result.Observations {
				values = append(values, observation.Value)
			}

			if previous != nil {
				assert.Equal(t, previous, values, s.Name)
			}
			previous = values
		}
	}
}

func TestRun_ExpectationMismatch(t *testing.T) {
	store := newTestStore(t)
	s := Scenario{
		Name: "wrong prediction",
		Seed: accounts,
		Steps: []Step{
			Begin(A, options.ReadCommitted),
			Write(A, "Alice", "9999"),
			Begin(B, options.ReadCommitted),
			ReadExpect(B, "Alice", "9999"),
			Commit(A),
		},
	}

	result, err := Run(store, s)
	require.Error(t, err)

	stepError, ok := err.(*StepError)
	require.True(t, ok)
	assert.Equal(t, 3, stepError.Index)
	assert.Equal(t, "100", stepError.Got)
	assert.Contains(t, stepError.Error(), `expected "9999", got "100"`)

	// The run stops at the failing step and both open transactions are rolled back.
	assert.Len(t, result.Observations, 4)
	assert.Zero(t, store.ActiveTransactions())
}

func TestRun_UnexpectedCommitOutcome(t *testing.T) {
	t.Run("commit expected to fail succeeds", func(t *testing.T) {
		s := LostUpdatePrevented()
		for i := range s.Steps {
			if s.Steps[i].Kind == StepBegin {
				s.Steps[i].Level = options.RepeatableRead
			}
		}

		_, err := Run(newTestStore(t), s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected error")
	})

	t.Run("session misuse surfaces as a step error", func(t *testing.T) {
		s := Scenario{
			Name:  "double begin",
			Steps: []Step{Begin(A, options.Serializable), Begin(A, options.Serializable)},
		}

		_, err := Run(newTestStore(t), s)
		stepError, ok := err.(*StepError)
		require.True(t, ok)
		assert.Equal(t, mvstore.ErrSessionBusy, stepError.GotErr)
	})
}

func TestScenario_Validate(t *testing.T) {
	s := Scenario{
		Name:  "three actors",
		Steps: []Step{Begin(Actor(2), options.ReadCommitted)},
	}
	assert.Equal(t, ErrUnknownActor, errors.Cause(s.Validate()))

	_, err := Run(newTestStore(t), s)
	assert.Equal(t, ErrUnknownActor, errors.Cause(err))

	s.Steps = []Step{{Kind: StepKind(99)}}
	assert.Equal(t, ErrUnknownStep, errors.Cause(s.Validate()))
}

func TestRunAll(t *testing.T) {
	results, err := RunAll(openStore, All())
	require.NoError(t, err)
	assert.Len(t, results, len(All()))
}

func TestStep_String(t *testing.T) {
	assert.Equal(t, "A: BEGIN SERIALIZABLE", Begin(A, options.Serializable).String())
	assert.Equal(t, "B: WRITE Alice=500", Write(B, "Alice", "500").String())
	assert.Equal(t, "CHECK Bob", Check("Bob", "300").String())
	assert.True(t, ReadExpect(A, "Alice", "").HasExpectation())
	assert.False(t, Read(A, "Alice").HasExpectation())
}
