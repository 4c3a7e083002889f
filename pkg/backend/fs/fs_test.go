package fs

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/pkg/backend"
)

func newTestDriver(t *testing.T) (*Driver, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	d, err := New("disk", backend.TierOnline, true, Config{Path: "/srv/disk"}, mem)
	require.NoError(t, err)
	return d, mem
}

func TestStoreRetrieveDelete(t *testing.T) {
	d, mem := newTestDriver(t)
	ctx := context.Background()

	loc, err := d.Store(ctx, backend.StoreInput{
		Tenant:   "acme",
		Checksum: "abcdef0123",
		Size:     5,
		Body:     strings.NewReader("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/disk/acme/ab/cd/ef/abcdef0123", loc)

	exists, err := afero.Exists(mem, "/srv/disk/acme/ab/cd/ef/abcdef0123")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := d.Retrieve(ctx, loc)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, d.Delete(ctx, loc))
	require.NoError(t, d.Delete(ctx, loc))

	_, err = d.Retrieve(ctx, loc)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestStoreSubDirectory(t *testing.T) {
	d, _ := newTestDriver(t)

	loc, err := d.Store(context.Background(), backend.StoreInput{
		Tenant:       "acme",
		Checksum:     "ab12",
		SubDirectory: "2026/raw",
		Body:         bytes.NewReader([]byte("x")),
	})
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/disk/acme/2026/raw/ab/ab12", loc)
}

func TestStoreRejectsSizeMismatch(t *testing.T) {
	d, mem := newTestDriver(t)

	_, err := d.Store(context.Background(), backend.StoreInput{
		Tenant:   "acme",
		Checksum: "abcd",
		Size:     10,
		Body:     strings.NewReader("short"),
	})
	require.Error(t, err)

	exists, _ := afero.Exists(mem, "/srv/disk/acme/ab/abcd")
	assert.False(t, exists)
}

func TestRejectsEscapingPaths(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	_, err := d.Store(ctx, backend.StoreInput{Tenant: "acme", Checksum: "../x", Body: strings.NewReader("")})
	assert.Error(t, err)

	_, err = d.Store(ctx, backend.StoreInput{Tenant: "acme", Checksum: "ab", SubDirectory: "../../etc", Body: strings.NewReader("")})
	assert.Error(t, err)

	_, err = d.Retrieve(ctx, "file:///etc/passwd")
	assert.Error(t, err)

	_, err = d.Retrieve(ctx, "s3://bucket/key")
	assert.Error(t, err)
}

func TestHealthcheck(t *testing.T) {
	d, mem := newTestDriver(t)
	require.NoError(t, d.Healthcheck(context.Background()))

	require.NoError(t, mem.RemoveAll("/srv/disk"))
	assert.Error(t, d.Healthcheck(context.Background()))
}
