package badger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/cache/store/badger"
	"github.com/marmos91/nearstore/pkg/cache/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) cache.Index {
		idx, err := badger.Open(badger.Config{Path: filepath.Join(t.TempDir(), "index")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		return idx
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "index")

	idx, err := badger.Open(badger.Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, storetest.NewEntry("t1", "abc", 10, time.Now().Add(time.Hour))))
	require.NoError(t, idx.Close())

	idx, err = badger.Open(badger.Config{Path: dir})
	require.NoError(t, err)
	defer idx.Close()

	got, err := idx.Get(ctx, "t1", "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.FileSize)
}

func TestTenantPrefixDoesNotLeak(t *testing.T) {
	ctx := context.Background()
	idx, err := badger.Open(badger.Config{InMemory: true})
	require.NoError(t, err)
	defer idx.Close()

	exp := time.Now().Add(time.Hour)
	require.NoError(t, idx.Put(ctx, storetest.NewEntry("acme", "a1", 1, exp)))
	require.NoError(t, idx.Put(ctx, storetest.NewEntry("acme-eu", "a2", 1, exp)))

	entries, err := idx.List(ctx, "acme", cache.Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a1", entries[0].Checksum)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := badger.Open(badger.Config{})
	assert.Error(t, err)
}
