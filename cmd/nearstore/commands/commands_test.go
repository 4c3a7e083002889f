package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/pkg/api"
	"github.com/marmos91/nearstore/pkg/api/handlers"
	"github.com/marmos91/nearstore/pkg/batch"
	"github.com/marmos91/nearstore/pkg/groups"
	"github.com/marmos91/nearstore/pkg/store/memory"
	"github.com/marmos91/nearstore/pkg/tenant"
)

type grantAll struct{}

func (grantAll) Submit(ctx context.Context, tenant, kind string, payload []byte) (batch.Decision, error) {
	if !json.Valid(payload) {
		return batch.Decision{}, errors.New("invalid JSON")
	}
	return batch.Decision{Granted: true}, nil
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) Healthcheck(ctx context.Context) error { return f(ctx) }

func newServer(t *testing.T, checks map[string]handlers.Healthchecker) (*httptest.Server, *groups.Tracker) {
	t.Helper()

	tenants, err := tenant.NewRegistry(1000, tenant.Tenant{Name: "acme"})
	require.NoError(t, err)
	tracker, err := groups.New(memory.New(), groups.Options{})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(api.Dependencies{
		Tenants:    tenants,
		Dispatcher: grantAll{},
		Groups:     tracker,
		Checks:     checks,
	}))
	t.Cleanup(srv.Close)
	return srv, tracker
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	*cmdutil.Flags = cmdutil.GlobalFlags{Output: "table", Timeout: 5 * time.Second}

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionShort(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestSubmit(t *testing.T) {
	srv, _ := newServer(t, nil)

	payload := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{"group_id":"g1","files":[]}`), 0o644))

	out, err := execute(t, "submit", "store", "--tenant", "acme", "--file", payload, "--server", srv.URL, "-o", "json")
	require.NoError(t, err)

	var decision batch.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &decision))
	assert.True(t, decision.Granted)
}

func TestSubmitErrors(t *testing.T) {
	srv, _ := newServer(t, nil)

	_, err := execute(t, "submit", "store", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant is required")

	_, err = execute(t, "submit", "teleport", "-t", "acme", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown request kind")

	payload := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(payload, []byte(`{}`), 0o644))
	_, err = execute(t, "submit", "store", "-t", "globex", "-f", payload, "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGroupsListAndShow(t *testing.T) {
	srv, tracker := newServer(t, nil)
	require.NoError(t, tracker.Grant(context.Background(), "acme", "g-42", "store", 3, nil))

	out, err := execute(t, "groups", "list", "-t", "acme", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "GROUP")
	assert.Contains(t, out, "g-42")
	assert.Contains(t, out, "pending")

	out, err = execute(t, "groups", "show", "g-42", "-t", "acme", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "g-42")
	assert.Contains(t, out, "store")

	_, err = execute(t, "groups", "show", "missing", "-t", "acme", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStatus(t *testing.T) {
	healthy, _ := newServer(t, map[string]handlers.Healthchecker{
		"database": checkFunc(func(context.Context) error { return nil }),
	})
	out, err := execute(t, "status", "--server", healthy.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "database")
	assert.Contains(t, out, "healthy")

	failing, _ := newServer(t, map[string]handlers.Healthchecker{
		"storages": checkFunc(func(context.Context) error { return errors.New("tape offline") }),
	})
	out, err = execute(t, "status", "--server", failing.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
	assert.Contains(t, out, "tape offline")
}

func TestInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: OK")
	assert.Contains(t, out, "No nearline storage configured")
}
