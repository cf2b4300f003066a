// Package sessionstoretest contains a test suite that every
// scriptsession.Store implementation is run against.
package sessionstoretest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/riverqueue/riverscript/scriptsession"
)

// Exercise fully exercises a store. newStore is invoked once per subtest and
// should return a store that's isolated from other subtests, or one where
// sessions don't collide because they're keyed by random IDs.
func Exercise(ctx context.Context, t *testing.T, newStore func(ctx context.Context, t *testing.T) scriptsession.Store) {
	t.Helper()

	exerciseGetPut(ctx, t, newStore)
	exerciseList(ctx, t, newStore)
	exerciseDelete(ctx, t, newStore)
	exerciseConcurrentPut(ctx, t, newStore)
}

func exerciseGetPut(ctx context.Context, t *testing.T, newStore func(ctx context.Context, t *testing.T) scriptsession.Store) {
	t.Helper()

	t.Run("Get", func(t *testing.T) {
		t.Parallel()

		t.Run("NotFound", func(t *testing.T) {
			t.Parallel()

			store := newStore(ctx, t)

			_, err := store.Get(ctx, uuid.NewString(), scriptsession.SectionInput, "missing")
			require.ErrorIs(t, err, scriptsession.ErrNotFound)
		})

		t.Run("SectionsIsolated", func(t *testing.T) {
			t.Parallel()

			var (
				store     = newStore(ctx, t)
				sessionID = uuid.NewString()
			)

			require.NoError(t, store.Put(ctx, sessionID, scriptsession.SectionInput, "key", []byte(`1`)))

			_, err := store.Get(ctx, sessionID, scriptsession.SectionOutput, "key")
			require.ErrorIs(t, err, scriptsession.ErrNotFound)
		})
	})

	t.Run("Put", func(t *testing.T) {
		t.Parallel()

		t.Run("InsertsAndReplaces", func(t *testing.T) {
			t.Parallel()

			var (
				store     = newStore(ctx, t)
				sessionID = uuid.NewString()
			)

			require.NoError(t, store.Put(ctx, sessionID, scriptsession.SectionOutput, "key", []byte(`{"a":1}`)))

			value, err := store.Get(ctx, sessionID, scriptsession.SectionOutput, "key")
			require.NoError(t, err)
			require.JSONEq(t, `{"a":1}`, string(value))

			require.NoError(t, store.Put(ctx, sessionID, scriptsession.SectionOutput, "key", []byte(`{"a":2}`)))

			value, err = store.Get(ctx, sessionID, scriptsession.SectionOutput, "key")
			require.NoError(t, err)
			require.JSONEq(t, `{"a":2}`, string(value))
		})
	})
}

func exerciseList(ctx context.Context, t *testing.T, newStore func(ctx context.Context, t *testing.T) scriptsession.Store) {
	t.Helper()

	t.Run("List", func(t *testing.T) {
		t.Parallel()

		t.Run("UnknownSessionEmpty", func(t *testing.T) {
			t.Parallel()

			store := newStore(ctx, t)

			values, err := store.List(ctx, uuid.NewString(), scriptsession.SectionInput)
			require.NoError(t, err)
			require.Empty(t, values)
		})

		t.Run("ReturnsSectionValues", func(t *testing.T) {
			t.Parallel()

			var (
				store     = newStore(ctx, t)
				sessionID = uuid.NewString()
			)

			require.NoError(t, store.Put(ctx, sessionID, scriptsession.SectionInput, "a", []byte(`1`)))
			require.NoError(t, store.Put(ctx, sessionID, scriptsession.SectionInput, "b", []byte(`"x"`)))
			require.NoError(t, store.Put(ctx, sessionID, scriptsession.SectionOutput, "c", []byte(`true`)))
			require.NoError(t, store.Put(ctx, uuid.NewString(), scriptsession.SectionInput, "d", []byte(`2`)))

			values, err := store.List(ctx, sessionID, scriptsession.SectionInput)
			require.NoError(t, err)
			require.Len(t, values, 2)
			require.JSONEq(t, `1`, string(values["a"]))
			require.JSONEq(t, `"x"`, string(values["b"]))
		})
	})
}

func exerciseDelete(ctx context.Context, t *testing.T, newStore func(ctx context.Context, t *testing.T) scriptsession.Store) {
	t.Helper()

	t.Run("Delete", func(t *testing.T) {
		t.Parallel()

		t.Run("RemovesOnlySession", func(t *testing.T) {
			t.Parallel()

			var (
				store          = newStore(ctx, t)
				sessionID      = uuid.NewString()
				otherSessionID = uuid.NewString()
			)

			require.NoError(t, store.Put(ctx, sessionID, scriptsession.SectionInput, "a", []byte(`1`)))
			require.NoError(t, store.Put(ctx, sessionID, scriptsession.SectionOutput, "b", []byte(`2`)))
			require.NoError(t, store.Put(ctx, otherSessionID, scriptsession.SectionInput, "a", []byte(`3`)))

			require.NoError(t, store.Delete(ctx, sessionID))

			values, err := store.List(ctx, sessionID, scriptsession.SectionOutput)
			require.NoError(t, err)
			require.Empty(t, values)

			_, err = store.Get(ctx, sessionID, scriptsession.SectionInput, "a")
			require.ErrorIs(t, err, scriptsession.ErrNotFound)

			value, err := store.Get(ctx, otherSessionID, scriptsession.SectionInput, "a")
			require.NoError(t, err)
			require.JSONEq(t, `3`, string(value))
		})

		t.Run("UnknownSessionNoError", func(t *testing.T) {
			t.Parallel()

			store := newStore(ctx, t)

			require.NoError(t, store.Delete(ctx, uuid.NewString()))
		})
	})
}

func exerciseConcurrentPut(ctx context.Context, t *testing.T, newStore func(ctx context.Context, t *testing.T) scriptsession.Store) {
	t.Helper()

	t.Run("ConcurrentPut", func(t *testing.T) {
		t.Parallel()

		var (
			store     = newStore(ctx, t)
			sessionID = uuid.NewString()
			keys      = []string{"a", "b", "c", "d", "e"}
			errs      = make([]error, len(keys))
		)

		var wg sync.WaitGroup
		for i, key := range keys {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = store.Put(ctx, sessionID, scriptsession.SectionInput, key, []byte(`"`+key+`"`))
			}()
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}

		values, err := store.List(ctx, sessionID, scriptsession.SectionInput)
		require.NoError(t, err)
		require.Len(t, values, len(keys))
	})
}
