package backend_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/pkg/backend"
)

type stubDriver struct {
	name    string
	tier    backend.Tier
	healthy error
}

func (s *stubDriver) Name() string                 { return s.name }
func (s *stubDriver) Tier() backend.Tier           { return s.tier }
func (s *stubDriver) AllowsPhysicalDeletion() bool { return true }
func (s *stubDriver) Store(context.Context, backend.StoreInput) (string, error) {
	return "", nil
}
func (s *stubDriver) Retrieve(context.Context, string) (io.ReadCloser, error) {
	return nil, backend.ErrNotFound
}
func (s *stubDriver) Delete(context.Context, string) error { return nil }
func (s *stubDriver) Healthcheck(context.Context) error     { return s.healthy }

func TestRegistry(t *testing.T) {
	tape := &stubDriver{name: "tape", tier: backend.TierNearline}
	disk := &stubDriver{name: "disk", tier: backend.TierOnline}

	r, err := backend.NewRegistry(tape, disk)
	require.NoError(t, err)
	assert.Equal(t, []string{"disk", "tape"}, r.Names())

	d, err := r.Get("tape")
	require.NoError(t, err)
	assert.Equal(t, backend.TierNearline, d.Tier())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, backend.ErrUnknownStorage)

	assert.Error(t, r.Register(&stubDriver{name: "disk"}))
	assert.Error(t, r.Register(&stubDriver{}))
}

func TestRegistryPreferOnline(t *testing.T) {
	r, err := backend.NewRegistry(
		&stubDriver{name: "tape", tier: backend.TierNearline},
		&stubDriver{name: "disk", tier: backend.TierOnline},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"disk", "tape", "gone"}, r.PreferOnline([]string{"gone", "tape", "disk"}))
}

func TestRegistryHealthcheck(t *testing.T) {
	r, err := backend.NewRegistry(
		&stubDriver{name: "ok", tier: backend.TierOnline},
		&stubDriver{name: "bad", tier: backend.TierOnline, healthy: errors.New("unreachable")},
	)
	require.NoError(t, err)

	err = r.Healthcheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage bad")
}

func TestParseTier(t *testing.T) {
	tier, ok := backend.ParseTier("nearline")
	assert.True(t, ok)
	assert.Equal(t, backend.TierNearline, tier)

	_, ok = backend.ParseTier("offline")
	assert.False(t, ok)
}

type payloadDriver struct {
	stubDriver
	payload string
}

func (p *payloadDriver) Retrieve(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(p.payload)), nil
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   []string
	bytes map[string]int64
}

func (m *recordingMetrics) ObserveOperation(storage, operation string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ops = append(m.ops, storage+"/"+operation+"/"+status)
}

func (m *recordingMetrics) RecordBytes(storage, operation string, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[storage+"/"+operation] += bytes
}

func TestInstrument(t *testing.T) {
	inner := &payloadDriver{stubDriver: stubDriver{name: "disk", tier: backend.TierOnline}, payload: "hello"}
	assert.Same(t, backend.Driver(inner), backend.Instrument(inner, nil))

	m := &recordingMetrics{bytes: make(map[string]int64)}
	d := backend.Instrument(inner, m)
	ctx := context.Background()

	_, err := d.Store(ctx, backend.StoreInput{Size: 42})
	require.NoError(t, err)

	rc, err := d.Retrieve(ctx, "file:///x")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, d.Delete(ctx, "file:///x"))

	assert.Equal(t, []string{"disk/store/ok", "disk/retrieve/ok", "disk/delete/ok"}, m.ops)
	assert.EqualValues(t, 42, m.bytes["disk/store"])
	assert.EqualValues(t, 5, m.bytes["disk/retrieve"])

	inner.healthy = errors.New("down")
	r, err := backend.NewRegistry(d)
	require.NoError(t, err)
	assert.Error(t, r.Healthcheck(ctx))
}
