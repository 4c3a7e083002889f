package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/cache/store/memory"
	"github.com/marmos91/nearstore/pkg/cache/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) cache.Index {
		return memory.New()
	})
}

func TestClosedIndex(t *testing.T) {
	idx := memory.New()
	assert.NoError(t, idx.Close())

	_, err := idx.Get(context.Background(), "t1", "a")
	assert.ErrorIs(t, err, cache.ErrIndexClosed)
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	ctx := context.Background()
	idx := memory.New()
	e := storetest.NewEntry("t1", "a", 1, time.Now().Add(time.Hour))
	assert.NoError(t, idx.Put(ctx, e))
	e.AddGroups("after-put")

	got, err := idx.Get(ctx, "t1", "a")
	assert.NoError(t, err)
	got.AddGroups("mutated")

	again, err := idx.Get(ctx, "t1", "a")
	assert.NoError(t, err)
	assert.Empty(t, again.GroupIDs)
}
