// Package bufpool pools the buffers used to stream file bodies between
// origins, storages and the cache.
package bufpool

import (
	"io"
	"sync"
)

// DefaultSize is the buffer size of the shared pool (256KiB).
const DefaultSize = 256 << 10

// Pool hands out byte slices of a single size.
type Pool struct {
	size int
	pool sync.Pool
}

// New creates a pool of size-byte buffers. A non-positive size means
// DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, p.size)
		return &buf
	}
	return p
}

// Size returns the buffer size.
func (p *Pool) Size() int {
	return p.size
}

// Get returns a buffer of Size bytes. Return it with Put.
func (p *Pool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put returns buf to the pool. Buffers of another size are dropped.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// Copy is io.Copy through a pooled buffer.
func (p *Pool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := p.Get()
	defer p.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

var shared = New(DefaultSize)

// Copy copies src to dst through the shared pool.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	return shared.Copy(dst, src)
}
