package cache

import (
	"context"
	"errors"
)

var (
	// ErrEntryNotFound is returned when no entry exists for a checksum.
	ErrEntryNotFound = errors.New("cache entry not found")

	// ErrCachePathUninitialized is returned when the cache root or the
	// tenant's maximum size is not configured.
	ErrCachePathUninitialized = errors.New("cache path not initialized")

	// ErrInvalidChecksum is returned for checksums that cannot be used as a file name.
	ErrInvalidChecksum = errors.New("invalid checksum")

	// ErrIndexClosed is returned by index operations after Close.
	ErrIndexClosed = errors.New("cache index is closed")
)

// UpdateFunc computes the new state of an entry inside Index.Upsert.
//
// existing is nil when no entry is stored. Returning a nil entry leaves the
// index untouched, in which case Upsert returns the existing entry.
type UpdateFunc func(existing *Entry) (*Entry, error)

// Index is the persisted store of cache entries.
//
// All operations are tenant scoped. Single-entry operations must be atomic;
// no operation spans more than one entry except DeleteMany.
type Index interface {
	// Get returns the entry or ErrEntryNotFound.
	Get(ctx context.Context, tenant, checksum string) (*Entry, error)

	// GetMany returns the entries found among checksums, in checksum order.
	// Missing checksums are skipped.
	GetMany(ctx context.Context, tenant string, checksums []string) ([]*Entry, error)

	// Put stores an entry, replacing any previous one.
	Put(ctx context.Context, entry *Entry) error

	// Upsert atomically reads, updates and writes one entry.
	Upsert(ctx context.Context, tenant, checksum string, fn UpdateFunc) (*Entry, error)

	// Delete removes one entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, tenant, checksum string) error

	// DeleteMany removes the given entries.
	DeleteMany(ctx context.Context, tenant string, checksums []string) error

	// List returns one page of entries matching q, ordered by checksum.
	List(ctx context.Context, tenant string, q Query) ([]*Entry, error)

	// Usage returns aggregate counters for the tenant.
	Usage(ctx context.Context, tenant string) (Usage, error)

	// Close releases the underlying resources.
	Close() error
}

// Healthchecker is implemented by indexes that can verify their backing
// store is reachable.
type Healthchecker interface {
	Healthcheck(ctx context.Context) error
}
