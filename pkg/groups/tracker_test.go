package groups

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/pkg/batch"
	"github.com/marmos91/nearstore/pkg/store/memory"
	"github.com/marmos91/nearstore/pkg/store/models"
)

var _ batch.Tracker = (*Tracker)(nil)

func newTestTracker(t *testing.T, opts Options) (*Tracker, *memory.Store) {
	t.Helper()
	s := memory.New()
	tr, err := New(s, opts)
	require.NoError(t, err)
	return tr, s
}

func TestGrantAndDenyCountEveryAttempt(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	require.NoError(t, tr.Grant(ctx, "acme", "g1", "store", 3, nil))
	require.NoError(t, tr.Deny(ctx, "acme", "g1", "store", "too many files"))
	require.NoError(t, tr.Grant(ctx, "acme", "g1", "store", 2, nil))

	g, err := tr.Get(ctx, "acme", "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Granted)
	assert.Equal(t, 1, g.Denied)
	assert.Equal(t, 3, g.Attempts())
	assert.Equal(t, 5, g.GrantedItems)
	assert.Equal(t, "too many files", g.DeniedReason)
	assert.Equal(t, models.StatusPending, g.Status)
}

func TestDenyOnlyGroupIsDenied(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	require.NoError(t, tr.Deny(ctx, "acme", "big", "store", "request group exceeds the limit of 500 files per group (got 501)"))

	g, err := tr.Get(ctx, "acme", "big")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, g.Status)
	assert.Zero(t, g.Granted)
	assert.Contains(t, g.DeniedReason, "500")

	require.NoError(t, tr.Grant(ctx, "acme", "big", "store", 1, nil))
	g, err = tr.Get(ctx, "acme", "big")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, g.Status)
}

func TestConcurrentAttemptsAreCounted(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				assert.NoError(t, tr.Deny(ctx, "acme", "g", "copy", "no"))
				return
			}
			assert.NoError(t, tr.Grant(ctx, "acme", "g", "copy", 1, nil))
		}(i)
	}
	wg.Wait()

	g, err := tr.Get(ctx, "acme", "g")
	require.NoError(t, err)
	assert.Equal(t, 40, g.Granted)
	assert.Equal(t, 10, g.Denied)
}

func TestGrantKeepsLatestExpiration(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	ctx := context.Background()
	early := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	require.NoError(t, tr.Grant(ctx, "acme", "g", "availability", 1, &late))
	require.NoError(t, tr.Grant(ctx, "acme", "g", "availability", 1, &early))
	require.NoError(t, tr.Grant(ctx, "acme", "g", "availability", 0, nil))

	g, err := tr.Get(ctx, "acme", "g")
	require.NoError(t, err)
	require.NotNil(t, g.ExpiresAt)
	assert.True(t, late.Equal(*g.ExpiresAt))
}

func TestCancel(t *testing.T) {
	tr, s := newTestTracker(t, Options{})
	ctx := context.Background()

	cancelled, err := tr.IsCancelled(ctx, "acme", "unknown")
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, tr.Grant(ctx, "acme", "g", "store", 2, nil))
	require.NoError(t, tr.Cancel(ctx, "acme", "g"))

	cancelled, err = tr.IsCancelled(ctx, "acme", "g")
	require.NoError(t, err)
	assert.True(t, cancelled)

	g, err := tr.Get(ctx, "acme", "g")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, g.Status)

	// A fresh tracker over the same store falls back to the store.
	fresh, err := New(s, Options{})
	require.NoError(t, err)
	cancelled, err = fresh.IsCancelled(ctx, "acme", "g")
	require.NoError(t, err)
	assert.True(t, cancelled)

	cancelled, err = fresh.IsCancelled(ctx, "globex", "g")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestRequestDoneSettlesCompleteGroups(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	require.NoError(t, tr.Grant(ctx, "acme", "ok", "store", 2, nil))
	require.NoError(t, tr.RequestDone(ctx, "acme", "ok", true))
	g, _ := tr.Get(ctx, "acme", "ok")
	assert.Equal(t, models.StatusPending, g.Status)
	require.NoError(t, tr.RequestDone(ctx, "acme", "ok", true))
	g, _ = tr.Get(ctx, "acme", "ok")
	assert.Equal(t, models.StatusDone, g.Status)

	require.NoError(t, tr.Grant(ctx, "acme", "bad", "store", 2, nil))
	require.NoError(t, tr.RequestDone(ctx, "acme", "bad", true))
	require.NoError(t, tr.RequestDone(ctx, "acme", "bad", false))
	g, _ = tr.Get(ctx, "acme", "bad")
	assert.Equal(t, models.StatusError, g.Status)
	assert.Equal(t, 1, g.Failed)

	assert.NoError(t, tr.RequestDone(ctx, "acme", "", true))
}

func TestReopen(t *testing.T) {
	tr, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	require.NoError(t, tr.Grant(ctx, "acme", "g", "store", 2, nil))
	require.NoError(t, tr.RequestDone(ctx, "acme", "g", true))
	require.NoError(t, tr.RequestDone(ctx, "acme", "g", false))

	require.NoError(t, tr.Reopen(ctx, "acme", "g", 1))
	g, err := tr.Get(ctx, "acme", "g")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, g.Status)
	assert.Zero(t, g.Failed)

	require.NoError(t, tr.RequestDone(ctx, "acme", "g", true))
	g, _ = tr.Get(ctx, "acme", "g")
	assert.Equal(t, models.StatusDone, g.Status)

	assert.ErrorIs(t, tr.Reopen(ctx, "acme", "missing", 1), models.ErrGroupNotFound)
}

func TestSweep(t *testing.T) {
	now := time.Now()
	tr, s := newTestTracker(t, Options{Expiration: time.Hour, SweepPageSize: 2})
	ctx := context.Background()

	past := now.Add(-time.Minute)
	require.NoError(t, tr.Grant(ctx, "acme", "expired-by-date", "availability", 5, &past))
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Grant(ctx, "acme", fmt.Sprintf("fresh-%d", i), "store", 1, nil))
	}

	// A group completed without the eager settle, e.g. written by an older
	// instance, is settled by the sweep.
	_, err := s.UpdateGroup(ctx, "acme", "complete", func(g *models.RequestGroup, _ bool) error {
		g.Kind = "store"
		g.Granted, g.GrantedItems, g.Succeeded, g.Failed = 1, 2, 1, 1
		return nil
	})
	require.NoError(t, err)

	result, err := tr.Sweep(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Errored: 1, Expired: 1}, result)

	g, _ := tr.Get(ctx, "acme", "expired-by-date")
	assert.Equal(t, models.StatusExpired, g.Status)
	g, _ = tr.Get(ctx, "acme", "complete")
	assert.Equal(t, models.StatusError, g.Status)

	later, err := New(s, Options{Expiration: time.Hour, SweepPageSize: 2, Now: func() time.Time { return now.Add(2 * time.Hour) }})
	require.NoError(t, err)
	result, err = later.Sweep(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Expired)

	pending, err := tr.List(ctx, "acme", models.StatusPending, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}
