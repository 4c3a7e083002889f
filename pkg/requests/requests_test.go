package requests

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Store ")
	require.NoError(t, err)
	assert.Equal(t, KindStore, k)
	assert.Equal(t, 500, k.MaxItems())

	_, err = ParseKind("archive")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestKindLimits(t *testing.T) {
	assert.Equal(t, 100, KindDelete.MaxItems())
	assert.Equal(t, 100, KindReference.MaxItems())
	assert.Equal(t, 1000, KindAvailability.MaxItems())
	assert.Equal(t, 500, KindCopy.MaxItems())
	assert.True(t, KindCopy.Tracked())
	assert.False(t, KindRetry.Tracked())
	assert.False(t, KindCancel.Tracked())
}

func TestValidateStoreRequest(t *testing.T) {
	valid := StoreRequest{
		GroupID: "g1",
		Files: []StoreFile{{
			Checksum: "abc", Origin: "https://example.org/a.bin", Storage: "tape",
		}},
	}
	assert.NoError(t, Validate(valid))

	missing := valid
	missing.Files = []StoreFile{{Origin: "https://example.org/a.bin"}}
	err := Validate(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "files[0].checksum")
	assert.Contains(t, err.Error(), "files[0].storage")

	empty := StoreRequest{GroupID: "g1"}
	assert.Error(t, Validate(empty))
}

func TestValidateAvailabilityRequest(t *testing.T) {
	assert.NoError(t, Validate(AvailabilityRequest{GroupID: "g", Checksums: []string{"a", "b"}}))

	err := Validate(AvailabilityRequest{GroupID: "g", Checksums: []string{"a", ""}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksums[1]")
}

func TestValidateRetryRequest(t *testing.T) {
	assert.NoError(t, Validate(RetryRequest{GroupID: "g", Kind: KindStore}))
	assert.NoError(t, Validate(RetryRequest{Owners: []string{"alice"}, Kind: KindStore}))
	assert.Error(t, Validate(RetryRequest{Kind: KindStore}))
}

func TestCheckRetry(t *testing.T) {
	tests := []struct {
		name string
		req  RetryRequest
		ok   bool
	}{
		{"store by group", RetryRequest{GroupID: "g", Kind: KindStore}, true},
		{"store by owners", RetryRequest{Owners: []string{"o"}, Kind: KindStore}, true},
		{"availability by group", RetryRequest{GroupID: "g", Kind: KindAvailability}, true},
		{"availability by owners", RetryRequest{Owners: []string{"o"}, Kind: KindAvailability}, false},
		{"delete", RetryRequest{GroupID: "g", Kind: KindDelete}, false},
		{"reference", RetryRequest{GroupID: "g", Kind: KindReference}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.CheckRetry()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrUnsupportedRetry))
		})
	}
}

func TestDecode(t *testing.T) {
	msg, err := Decode[AvailabilityRequest]([]byte(`{"group_id":"g","checksums":["a"],"expiration_date":"2026-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "g", msg.Group())
	assert.Equal(t, 1, msg.Items())
	require.NotNil(t, msg.Expiration())
	assert.Equal(t, 2026, msg.Expiration().Year())

	_, err = Decode[StoreRequest]([]byte(`{"files": 3}`))
	assert.Error(t, err)
}

func TestAvailabilityItemsCountDistinctChecksums(t *testing.T) {
	req := AvailabilityRequest{GroupID: "g", Checksums: []string{"b", "a", "b", "a", "c"}}
	assert.Equal(t, 3, req.Items())
	assert.Zero(t, AvailabilityRequest{}.Items())
}
