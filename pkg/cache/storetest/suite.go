// Package storetest provides a conformance test suite for cache index implementations.
//
// All index backends (memory, badger, postgres) should pass these tests.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//	    storetest.RunConformanceSuite(t, func(t *testing.T) cache.Index {
//	        return memory.New()
//	    })
//	}
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/pkg/cache"
)

// IndexFactory creates a fresh, empty index for each test.
type IndexFactory func(t *testing.T) cache.Index

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// RunConformanceSuite runs the full conformance suite against the factory.
func RunConformanceSuite(t *testing.T, factory IndexFactory) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) { testPutGet(t, factory(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory(t)) })
	t.Run("GetMany", func(t *testing.T) { testGetMany(t, factory(t)) })
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, factory(t)) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, factory(t)) })
	t.Run("UpsertConcurrent", func(t *testing.T) { testUpsertConcurrent(t, factory(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, factory(t)) })
	t.Run("ListPaging", func(t *testing.T) { testListPaging(t, factory(t)) })
	t.Run("Usage", func(t *testing.T) { testUsage(t, factory(t)) })
}

// NewEntry builds an internal entry for tests.
func NewEntry(tenant, checksum string, size int64, expires time.Time) *cache.Entry {
	return &cache.Entry{
		Tenant:         tenant,
		Checksum:       checksum,
		FileSize:       size,
		FileName:       checksum + ".dat",
		MimeType:       "application/octet-stream",
		Location:       "file:///cache/" + tenant + "/" + checksum,
		ExpirationDate: expires,
		InternalCache:  true,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func put(t *testing.T, idx cache.Index, entries ...*cache.Entry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, idx.Put(context.Background(), e))
	}
}

func checksums(entries []*cache.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Checksum
	}
	return out
}

func testPutGet(t *testing.T, idx cache.Index) {
	ctx := context.Background()
	e := NewEntry("t1", "abc123", 42, base.Add(time.Hour))
	e.GroupIDs = []string{"g1", "g2"}
	put(t, idx, e)

	got, err := idx.Get(ctx, "t1", "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.FileSize)
	assert.Equal(t, "abc123.dat", got.FileName)
	assert.Equal(t, []string{"g1", "g2"}, got.GroupIDs)
	assert.True(t, got.InternalCache)
	assert.True(t, got.ExpirationDate.Equal(base.Add(time.Hour)))
}

func testGetMissing(t *testing.T, idx cache.Index) {
	_, err := idx.Get(context.Background(), "t1", "missing")
	assert.True(t, errors.Is(err, cache.ErrEntryNotFound))
}

func testGetMany(t *testing.T, idx cache.Index) {
	put(t, idx,
		NewEntry("t1", "c", 1, base),
		NewEntry("t1", "a", 1, base),
		NewEntry("t1", "b", 1, base),
	)

	got, err := idx.GetMany(context.Background(), "t1", []string{"c", "zz", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, checksums(got))

	got, err = idx.GetMany(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testTenantIsolation(t *testing.T, idx cache.Index) {
	ctx := context.Background()
	put(t, idx, NewEntry("t1", "same", 10, base), NewEntry("t2", "same", 20, base))

	got, err := idx.Get(ctx, "t2", "same")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.FileSize)

	require.NoError(t, idx.Delete(ctx, "t1", "same"))
	_, err = idx.Get(ctx, "t2", "same")
	assert.NoError(t, err)
}

func testUpsert(t *testing.T, idx cache.Index) {
	ctx := context.Background()

	created, err := idx.Upsert(ctx, "t1", "up", func(existing *cache.Entry) (*cache.Entry, error) {
		assert.Nil(t, existing)
		return NewEntry("t1", "up", 5, base), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), created.FileSize)

	updated, err := idx.Upsert(ctx, "t1", "up", func(existing *cache.Entry) (*cache.Entry, error) {
		require.NotNil(t, existing)
		existing.FileSize = 7
		return existing, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), updated.FileSize)

	unchanged, err := idx.Upsert(ctx, "t1", "up", func(existing *cache.Entry) (*cache.Entry, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), unchanged.FileSize)

	boom := errors.New("boom")
	_, err = idx.Upsert(ctx, "t1", "up", func(existing *cache.Entry) (*cache.Entry, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := idx.Get(ctx, "t1", "up")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.FileSize)
}

func testUpsertConcurrent(t *testing.T, idx cache.Index) {
	ctx := context.Background()
	put(t, idx, NewEntry("t1", "shared", 0, base))

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := idx.Upsert(ctx, "t1", "shared", func(existing *cache.Entry) (*cache.Entry, error) {
				existing.AddGroups(fmt.Sprintf("g%d", n))
				return existing, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := idx.Get(ctx, "t1", "shared")
	require.NoError(t, err)
	assert.Len(t, got.GroupIDs, writers)
}

func testDelete(t *testing.T, idx cache.Index) {
	ctx := context.Background()
	put(t, idx, NewEntry("t1", "a", 1, base), NewEntry("t1", "b", 1, base), NewEntry("t1", "c", 1, base))

	require.NoError(t, idx.Delete(ctx, "t1", "a"))
	require.NoError(t, idx.Delete(ctx, "t1", "a"), "deleting twice is not an error")
	require.NoError(t, idx.DeleteMany(ctx, "t1", []string{"b", "missing"}))

	rest, err := idx.List(ctx, "t1", cache.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, checksums(rest))
}

func testListFilters(t *testing.T, idx cache.Index) {
	ctx := context.Background()
	expired := NewEntry("t1", "expired", 1, base.Add(-time.Hour))
	fresh := NewEntry("t1", "fresh", 1, base.Add(time.Hour))
	external := NewEntry("t1", "external", 1, base.Add(-time.Hour))
	external.InternalCache = false
	external.ExternalCache = "plugin"
	put(t, idx, expired, fresh, external)

	all, err := idx.List(ctx, "t1", cache.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"expired", "external", "fresh"}, checksums(all))

	internal, err := idx.List(ctx, "t1", cache.Query{InternalOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"expired", "fresh"}, checksums(internal))

	stale, err := idx.List(ctx, "t1", cache.Query{ExpiredBefore: base})
	require.NoError(t, err)
	assert.Equal(t, []string{"expired", "external"}, checksums(stale))

	staleInternal, err := idx.List(ctx, "t1", cache.Query{InternalOnly: true, ExpiredBefore: base})
	require.NoError(t, err)
	assert.Equal(t, []string{"expired"}, checksums(staleInternal))
}

func testListPaging(t *testing.T, idx cache.Index) {
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		put(t, idx, NewEntry("t1", fmt.Sprintf("sum%02d", i), 1, base))
	}

	var seen []string
	q := cache.Query{Limit: 10}
	for {
		page, err := idx.List(ctx, "t1", q)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 10)
		seen = append(seen, checksums(page)...)
		// Deleting the current page must not shift the next one.
		require.NoError(t, idx.DeleteMany(ctx, "t1", checksums(page)))
		q.After = page[len(page)-1].Checksum
	}
	assert.Len(t, seen, 25)
	assert.Equal(t, "sum00", seen[0])
	assert.Equal(t, "sum24", seen[24])
}

func testUsage(t *testing.T, idx cache.Index) {
	ctx := context.Background()
	external := NewEntry("t1", "ext", 1000, base)
	external.InternalCache = false
	external.ExternalCache = "plugin"
	put(t, idx,
		NewEntry("t1", "a", 400, base),
		NewEntry("t1", "b", 600, base),
		external,
		NewEntry("t2", "c", 5, base),
	)

	u, err := idx.Usage(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.Entries)
	assert.Equal(t, int64(2), u.InternalEntries)
	assert.Equal(t, int64(1000), u.InternalBytes)

	empty, err := idx.Usage(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Entries)
}
