// Package cachetest holds behavior tests shared by every cache.Store backend.
package cachetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGnft17/clawtographer/internal/cache"
	carterrors "github.com/JGnft17/clawtographer/internal/errors"
)

// ID returns a deterministic 64-char hex identity for n.
func ID(n int) string {
	return fmt.Sprintf("%02x%s", n%256, strings.Repeat(fmt.Sprintf("%x", n%16), 62))
}

// Run exercises the Store contract against a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) cache.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), ID(1))
		assert.True(t, carterrors.Is(err, carterrors.ErrNotFound), "got %v", err)

		ok, err := s.Complete(context.Background(), ID(1))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		e := &cache.Entry{
			Identity:       ID(2),
			Status:         cache.StatusComplete,
			Analysis:       "## Auth\nHandles login.",
			Attempts:       1,
			Model:          "qwen2.5-coder",
			Files:          []string{"auth/login.go", "auth/session.go"},
			TokensEstimate: 812,
		}
		require.NoError(t, s.Put(ctx, e))

		got, err := s.Get(ctx, ID(2))
		require.NoError(t, err)
		assert.Equal(t, e.Analysis, got.Analysis)
		assert.Equal(t, e.Files, got.Files)
		assert.Equal(t, 812, got.TokensEstimate)
		assert.NotZero(t, got.CreatedAt)
		assert.NotZero(t, got.UpdatedAt)

		ok, err := s.Complete(ctx, ID(2))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("PendingAndFailedAreNotComplete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, &cache.Entry{Identity: ID(3), Status: cache.StatusPending, Files: []string{"a"}}))
		require.NoError(t, s.Put(ctx, &cache.Entry{
			Identity: ID(4), Status: cache.StatusFailed, Files: []string{"b"},
			ErrorCode: string(carterrors.ErrProvider), ErrorMessage: "timeout",
		}))

		for _, id := range []string{ID(3), ID(4)} {
			ok, err := s.Complete(ctx, id)
			require.NoError(t, err)
			assert.False(t, ok, id)
			assert.Nil(t, cache.Lookup(ctx, s, id, nil), id)
		}
	})

	t.Run("PutPreservesCreatedAt", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := &cache.Entry{Identity: ID(5), Status: cache.StatusPending, Files: []string{"a"}}
		require.NoError(t, s.Put(ctx, first))
		created := first.CreatedAt

		next := &cache.Entry{Identity: ID(5), Status: cache.StatusComplete, Analysis: "done", Files: []string{"a"}, Attempts: 1}
		require.NoError(t, s.Put(ctx, next))

		got, err := s.Get(ctx, ID(5))
		require.NoError(t, err)
		assert.Equal(t, created, got.CreatedAt)
		assert.Equal(t, cache.StatusComplete, got.Status)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, &cache.Entry{Identity: ID(6), Status: cache.StatusComplete, Analysis: "x", Files: []string{"a"}}))
		require.NoError(t, s.Delete(ctx, ID(6)))

		_, err := s.Get(ctx, ID(6))
		assert.True(t, carterrors.Is(err, carterrors.ErrNotFound))

		err = s.Delete(ctx, ID(6))
		assert.True(t, carterrors.Is(err, carterrors.ErrNotFound))
	})

	t.Run("ListAndPurgeByStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 10; i < 15; i++ {
			status := cache.StatusComplete
			if i%2 == 0 {
				status = cache.StatusFailed
			}
			require.NoError(t, s.Put(ctx, &cache.Entry{Identity: ID(i), Status: status, Analysis: "a", Files: []string{"f"}}))
		}

		items, total, err := s.List(ctx, cache.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, items, 5)

		items, total, err = s.List(ctx, cache.Filter{Status: cache.StatusFailed, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, items, 2)
		for _, it := range items {
			assert.Equal(t, cache.StatusFailed, it.Status)
		}

		n, err := s.Purge(ctx, cache.Filter{Status: cache.StatusFailed})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		_, total, err = s.List(ctx, cache.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("ListOffsetWithoutLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 30; i < 34; i++ {
			require.NoError(t, s.Put(ctx, &cache.Entry{Identity: ID(i), Status: cache.StatusComplete, Analysis: "a", Files: []string{"f"}}))
		}

		all, _, err := s.List(ctx, cache.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 4)

		items, total, err := s.List(ctx, cache.Filter{Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, items, 1)
		assert.Equal(t, all[3].Identity, items[0].Identity)

		items, _, err = s.List(ctx, cache.Filter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("PurgeOlderThan", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, &cache.Entry{Identity: ID(20), Status: cache.StatusComplete, Analysis: "a", Files: []string{"f"}}))

		n, err := s.Purge(ctx, cache.Filter{UpdatedBefore: time.Now().Add(-time.Hour).Unix()})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = s.Purge(ctx, cache.Filter{UpdatedBefore: time.Now().Add(time.Hour).Unix()})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("InvalidIdentity", func(t *testing.T) {
		s := newStore(t)
		err := s.Put(context.Background(), &cache.Entry{Identity: "../../etc/passwd", Status: cache.StatusComplete})
		assert.True(t, carterrors.Is(err, carterrors.ErrInvalidRequest), "got %v", err)
	})

	t.Run("ConcurrentDistinctKeys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 24
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				e := &cache.Entry{Identity: ID(100 + i), Status: cache.StatusPending, Files: []string{"f"}}
				if err := s.Put(ctx, e); err != nil {
					errs <- err
					return
				}
				e.Status = cache.StatusComplete
				e.Analysis = fmt.Sprintf("analysis %d", i)
				errs <- s.Put(ctx, e)
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for i := 0; i < n; i++ {
			got, err := s.Get(ctx, ID(100+i))
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("analysis %d", i), got.Analysis)
		}
	})
}
