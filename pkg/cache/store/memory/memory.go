// Package memory provides an in-memory cache index.
//
// It is intended for tests and single-process deployments where the index
// does not need to survive a restart.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/marmos91/nearstore/pkg/cache"
)

// Index is an in-memory cache.Index.
type Index struct {
	mu      sync.RWMutex
	tenants map[string]map[string]*cache.Entry
	closed  bool
}

// New creates an empty index.
func New() *Index {
	return &Index{tenants: make(map[string]map[string]*cache.Entry)}
}

var _ cache.Index = (*Index)(nil)

func (s *Index) Get(ctx context.Context, tenant, checksum string) (*cache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cache.ErrIndexClosed
	}
	e, ok := s.tenants[tenant][checksum]
	if !ok {
		return nil, cache.ErrEntryNotFound
	}
	return e.Clone(), nil
}

func (s *Index) GetMany(ctx context.Context, tenant string, checksums []string) ([]*cache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cache.ErrIndexClosed
	}

	sorted := slices.Clone(checksums)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]*cache.Entry, 0, len(sorted))
	for _, sum := range sorted {
		if e, ok := s.tenants[tenant][sum]; ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *Index) Put(ctx context.Context, entry *cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cache.ErrIndexClosed
	}
	s.bucket(entry.Tenant)[entry.Checksum] = entry.Clone()
	return nil
}

func (s *Index) Upsert(ctx context.Context, tenant, checksum string, fn cache.UpdateFunc) (*cache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, cache.ErrIndexClosed
	}

	bucket := s.bucket(tenant)
	existing := bucket[checksum].Clone()
	updated, err := fn(existing.Clone())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return existing, nil
	}

	updated.Tenant = tenant
	updated.Checksum = checksum
	bucket[checksum] = updated.Clone()
	return updated, nil
}

func (s *Index) Delete(ctx context.Context, tenant, checksum string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cache.ErrIndexClosed
	}
	delete(s.tenants[tenant], checksum)
	return nil
}

func (s *Index) DeleteMany(ctx context.Context, tenant string, checksums []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cache.ErrIndexClosed
	}
	for _, sum := range checksums {
		delete(s.tenants[tenant], sum)
	}
	return nil
}

func (s *Index) List(ctx context.Context, tenant string, q cache.Query) ([]*cache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cache.ErrIndexClosed
	}

	var out []*cache.Entry
	for _, e := range s.tenants[tenant] {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Checksum < out[j].Checksum })

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for i, e := range out {
		out[i] = e.Clone()
	}
	return out, nil
}

func (s *Index) Usage(ctx context.Context, tenant string) (cache.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return cache.Usage{}, cache.ErrIndexClosed
	}

	var u cache.Usage
	for _, e := range s.tenants[tenant] {
		u.Entries++
		if e.InternalCache {
			u.InternalEntries++
			u.InternalBytes += e.FileSize
		}
	}
	return u, nil
}

func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// bucket returns the tenant map, creating it. Caller must hold the write lock.
func (s *Index) bucket(tenant string) map[string]*cache.Entry {
	b, ok := s.tenants[tenant]
	if !ok {
		b = make(map[string]*cache.Entry)
		s.tenants[tenant] = b
	}
	return b
}

func (s *Index) Healthcheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return cache.ErrIndexClosed
	}
	return ctx.Err()
}
