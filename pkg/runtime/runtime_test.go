package runtime

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/pkg/config"
	"github.com/marmos91/nearstore/pkg/store/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	disabled := false

	cfg := config.GetDefaultConfig()
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "nearstore.db")
	cfg.API.Enabled = &disabled
	cfg.Cache.RootPath = "/cache"
	cfg.Cache.Index.Type = "memory"
	cfg.Storages[0].FS.Path = "/data/disk"
	cfg.Tenants = []config.TenantConfig{{Name: "acme"}}
	return cfg
}

func TestNewWiresHealthyComponents(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	rt, err := New(ctx, testConfig(t), Options{Fs: fs})
	require.NoError(t, err)
	defer rt.Close()

	deps := rt.Dependencies()
	require.Len(t, deps.Checks, 3)
	for name, check := range deps.Checks {
		assert.NoError(t, check.Healthcheck(ctx), name)
	}
	assert.True(t, deps.Tenants.Has("acme"))
	assert.False(t, deps.Tenants.Has("globex"))

	exists, err := afero.DirExists(fs, "/cache/acme")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewRejectsUnknownIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Index.Type = "redis"

	_, err := New(context.Background(), cfg, Options{Fs: afero.NewMemMapFs()})
	assert.Error(t, err)
}

func TestServeProcessesRequestsUntilCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/incoming/abcd1234", []byte("hello"), 0o644))

	rt, err := New(context.Background(), testConfig(t), Options{Fs: fs})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- rt.Serve(ctx) }()

	payload := []byte(`{"group_id":"g1","files":[{"checksum":"abcd1234","origin":"file:///incoming/abcd1234","storage":"disk","owner":"alice","file_size":5}]}`)
	decision, err := rt.Dispatcher().Submit(ctx, "acme", "store", payload)
	require.NoError(t, err)
	require.True(t, decision.Granted, decision.Reason)

	require.Eventually(t, func() bool {
		g, err := rt.Groups().Get(context.Background(), "acme", "g1")
		return err == nil && g.Status == models.StatusDone
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	assert.ErrorIs(t, rt.Serve(context.Background()), ErrAlreadyServed)
}
