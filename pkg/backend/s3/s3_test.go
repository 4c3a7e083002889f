package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/pkg/backend"
)

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestStoreRetrieveDelete(t *testing.T) {
	fake := newFakeS3()
	d := New("tape", backend.TierNearline, false, fake, Config{Bucket: "archive", KeyPrefix: "nearstore/"})
	ctx := context.Background()

	loc, err := d.Store(ctx, backend.StoreInput{
		Tenant:       "acme",
		Checksum:     "abc",
		SubDirectory: "/raw/",
		Body:         strings.NewReader("payload"),
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://archive/nearstore/acme/raw/abc", loc)
	assert.Contains(t, fake.objects, "archive/nearstore/acme/raw/abc")

	rc, err := d.Retrieve(ctx, loc)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "payload", string(data))

	require.NoError(t, d.Delete(ctx, loc))
	_, err = d.Retrieve(ctx, loc)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	assert.False(t, d.AllowsPhysicalDeletion())
	assert.NoError(t, d.Healthcheck(ctx))
}

func TestRejectsForeignLocations(t *testing.T) {
	d := New("tape", backend.TierNearline, true, newFakeS3(), Config{Bucket: "archive"})

	_, err := d.Retrieve(context.Background(), "s3://other/acme/abc")
	assert.Error(t, err)
	_, err = d.Retrieve(context.Background(), "file:///tmp/abc")
	assert.Error(t, err)
	assert.Error(t, d.Delete(context.Background(), "s3://archive/"))
}

func TestNewFromConfigRequiresBucket(t *testing.T) {
	_, err := NewFromConfig(context.Background(), "tape", backend.TierNearline, false, Config{})
	assert.Error(t, err)
}
