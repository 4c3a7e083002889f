package bufpool

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsSize(t *testing.T) {
	assert.Equal(t, DefaultSize, New(0).Size())
	assert.Equal(t, 16, New(16).Size())
}

func TestGetPut(t *testing.T) {
	p := New(32)
	buf := p.Get()
	assert.Len(t, buf, 32)

	p.Put(buf[:4])
	assert.Len(t, p.Get(), 32)

	assert.NotPanics(t, func() { p.Put(make([]byte, 8)) })
}

func TestCopy(t *testing.T) {
	src := strings.Repeat("nearline", 1000)

	var dst bytes.Buffer
	n, err := New(64).Copy(&dst, strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), n)
	assert.Equal(t, src, dst.String())

	dst.Reset()
	n, err = Copy(&dst, strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
