package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(1000,
		Tenant{Name: "zeta"},
		Tenant{Name: "acme", CacheMaxSize: 50},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"acme", "zeta"}, r.Active())
	assert.True(t, r.Has("acme"))
	assert.False(t, r.Has("other"))

	max, ok := r.MaxCacheSize("acme")
	assert.True(t, ok)
	assert.Equal(t, int64(50), max)

	max, ok = r.MaxCacheSize("zeta")
	assert.True(t, ok)
	assert.Equal(t, int64(1000), max)

	_, ok = r.MaxCacheSize("other")
	assert.False(t, ok)
}

func TestRegistryWithoutDefault(t *testing.T) {
	r, err := NewRegistry(0, Tenant{Name: "acme"})
	require.NoError(t, err)

	_, ok := r.MaxCacheSize("acme")
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidTenants(t *testing.T) {
	_, err := NewRegistry(0, Tenant{})
	assert.Error(t, err)

	_, err = NewRegistry(0, Tenant{Name: "x", CacheMaxSize: -1})
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	name, ok := FromContext(WithTenant(context.Background(), "acme"))
	assert.True(t, ok)
	assert.Equal(t, "acme", name)
}
