// Package badger provides a persistent cache index backed by BadgerDB.
//
// Entries are stored as JSON values under tenant-prefixed keys (see
// encoding.go). Listing uses a prefix iterator seeked past the cursor, so
// keyset paging never rescans pages that were already processed.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/cache"
)

// maxConflictRetries bounds Upsert retries on transaction conflicts.
const maxConflictRetries = 16

// Config configures the badger index.
type Config struct {
	// Path is the database directory.
	Path string `mapstructure:"path" yaml:"path" validate:"required"`

	// InMemory runs badger without touching disk (tests).
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory,omitempty"`
}

// Index is a cache.Index stored in BadgerDB.
type Index struct {
	db *badgerdb.DB
}

var _ cache.Index = (*Index)(nil)

// Open opens (or creates) the index database.
func Open(cfg Config) (*Index, error) {
	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	} else if cfg.Path == "" {
		return nil, fmt.Errorf("badger index path is required")
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index at %s: %w", cfg.Path, err)
	}

	logger.Info("Badger cache index opened", logger.KeyPath, cfg.Path)
	return &Index{db: db}, nil
}

func (s *Index) Get(ctx context.Context, tenant, checksum string) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry *cache.Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		e, err := getEntry(txn, tenant, checksum)
		entry = e
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	if entry == nil {
		return nil, cache.ErrEntryNotFound
	}
	return entry, nil
}

func (s *Index) GetMany(ctx context.Context, tenant string, checksums []string) ([]*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sorted := slices.Clone(checksums)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]*cache.Entry, 0, len(sorted))
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for _, sum := range sorted {
			e, err := getEntry(txn, tenant, sum)
			if err != nil {
				return err
			}
			if e != nil {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *Index) Put(ctx context.Context, entry *cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return wrapErr(s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyEntry(entry.Tenant, entry.Checksum), data)
	}))
}

// Upsert runs fn inside an update transaction. Badger detects concurrent
// writes to the same key at commit time; the whole read-modify-write is
// retried on conflict.
func (s *Index) Upsert(ctx context.Context, tenant, checksum string, fn cache.UpdateFunc) (*cache.Entry, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var result *cache.Entry
		err := s.db.Update(func(txn *badgerdb.Txn) error {
			existing, err := getEntry(txn, tenant, checksum)
			if err != nil {
				return err
			}

			var arg *cache.Entry
			if existing != nil {
				arg = existing.Clone()
			}
			updated, err := fn(arg)
			if err != nil {
				return err
			}
			if updated == nil {
				result = existing
				return nil
			}

			updated.Tenant = tenant
			updated.Checksum = checksum
			data, err := encodeEntry(updated)
			if err != nil {
				return err
			}
			result = updated.Clone()
			return txn.Set(keyEntry(tenant, checksum), data)
		})
		if errors.Is(err, badgerdb.ErrConflict) {
			logger.Debug("Badger upsert conflict, retrying",
				logger.KeyTenant, tenant, logger.KeyChecksum, checksum, logger.KeyAttempt, attempt+1)
			continue
		}
		if err != nil {
			return nil, wrapErr(err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("upsert %s/%s: %w", tenant, checksum, badgerdb.ErrConflict)
}

func (s *Index) Delete(ctx context.Context, tenant, checksum string) error {
	return s.DeleteMany(ctx, tenant, []string{checksum})
}

// DeleteMany removes entries using a write batch, which splits large
// deletions across transactions as needed.
func (s *Index) DeleteMany(ctx context.Context, tenant string, checksums []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(checksums) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, sum := range checksums {
		if err := wb.Delete(keyEntry(tenant, sum)); err != nil {
			return wrapErr(err)
		}
	}
	return wrapErr(wb.Flush())
}

func (s *Index) List(ctx context.Context, tenant string, q cache.Query) ([]*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := keyTenantPrefix(tenant)
	var out []*cache.Entry

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if q.After != "" {
			start = keyEntry(tenant, q.After)
		}

		scanned := 0
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if scanned%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			scanned++

			item := it.Item()
			if q.After != "" && bytes.Equal(item.Key(), start) {
				continue
			}

			var e *cache.Entry
			if err := item.Value(func(val []byte) error {
				decoded, err := decodeEntry(val)
				e = decoded
				return err
			}); err != nil {
				return fmt.Errorf("entry %s: %w", checksumFromKey(prefix, item.Key()), err)
			}

			if !q.Matches(e) {
				continue
			}
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *Index) Usage(ctx context.Context, tenant string) (cache.Usage, error) {
	if err := ctx.Err(); err != nil {
		return cache.Usage{}, err
	}

	var u cache.Usage
	prefix := keyTenantPrefix(tenant)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				e, err := decodeEntry(val)
				if err != nil {
					return err
				}
				u.Entries++
				if e.InternalCache {
					u.InternalEntries++
					u.InternalBytes += e.FileSize
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cache.Usage{}, wrapErr(err)
	}
	return u, nil
}

// Healthcheck verifies the database can serve a read transaction.
func (s *Index) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.View(func(txn *badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", wrapErr(err))
	}
	return nil
}

func (s *Index) Close() error {
	return s.db.Close()
}

// getEntry returns nil without error when the key does not exist.
func getEntry(txn *badgerdb.Txn, tenant, checksum string) (*cache.Entry, error) {
	item, err := txn.Get(keyEntry(tenant, checksum))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var e *cache.Entry
	err = item.Value(func(val []byte) error {
		decoded, decErr := decodeEntry(val)
		e = decoded
		return decErr
	})
	return e, err
}

func wrapErr(err error) error {
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return cache.ErrIndexClosed
	}
	return err
}
