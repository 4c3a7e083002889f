package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/marmos91/nearstore/internal/bufpool"
	"github.com/marmos91/nearstore/internal/logger"
)

const (
	// DefaultPageSize is the number of entries processed per purge or coherence page.
	DefaultPageSize = 500

	// DefaultCoherenceBatchSize is the number of orphan rows accumulated
	// before they are deleted in one call.
	DefaultCoherenceBatchSize = 10000
)

// Limits resolves the configured cache maximum of a tenant.
type Limits interface {
	MaxCacheSize(tenant string) (int64, bool)
}

// Config configures a Manager.
type Config struct {
	// RootPath is the directory holding one sub-directory per tenant.
	RootPath string

	// PageSize bounds the entries loaded at once by Purge and CheckCoherence.
	PageSize int

	// CoherenceBatchSize bounds the orphan rows deleted in one call.
	CoherenceBatchSize int

	// Limits provides per-tenant maximum sizes.
	Limits Limits

	// Fs is the filesystem staged files live on. Defaults to the OS filesystem.
	Fs afero.Fs

	// Metrics is optional.
	Metrics Metrics

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Manager owns cache entries and their staged files.
type Manager struct {
	index     Index
	fs        afero.Fs
	root      string
	pageSize  int
	batchSize int
	limits    Limits
	metrics   Metrics
	now       func() time.Time

	extMu    sync.RWMutex
	external map[string]ExternalCache
}

// NewManager creates a cache manager on top of an index.
func NewManager(index Index, cfg Config) *Manager {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.CoherenceBatchSize <= 0 {
		cfg.CoherenceBatchSize = DefaultCoherenceBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		index:     index,
		fs:        cfg.Fs,
		root:      cfg.RootPath,
		pageSize:  cfg.PageSize,
		batchSize: cfg.CoherenceBatchSize,
		limits:    cfg.Limits,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		external:  make(map[string]ExternalCache),
	}
}

// Index returns the underlying index.
func (m *Manager) Index() Index {
	return m.index
}

// InitTenant creates the tenant cache directory and checks it is writable.
func (m *Manager) InitTenant(ctx context.Context, tenant string) error {
	dir, err := m.TenantPath(tenant)
	if err != nil {
		return err
	}
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	probe, err := afero.TempFile(m.fs, dir, ".probe-")
	if err != nil {
		return fmt.Errorf("cache directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	if err := m.fs.Remove(name); err != nil {
		return fmt.Errorf("cache directory %s: %w", dir, err)
	}

	logger.InfoCtx(ctx, "Cache directory ready", logger.KeyTenant, tenant, logger.KeyPath, dir)
	return nil
}

// AddOrRefresh creates an entry or refreshes an existing one.
//
// On refresh the expiration date only moves forward, the size is replaced
// and the group ids are merged. The location of an existing entry is kept.
func (m *Manager) AddOrRefresh(ctx context.Context, req AddRequest) (*Entry, error) {
	if req.Tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}
	if err := validateChecksum(req.Checksum); err != nil {
		return nil, err
	}

	location := req.Location
	if location == "" && req.ExternalCache == "" {
		path, err := m.ComputePath(req.Tenant, req.Checksum)
		if err != nil {
			return nil, err
		}
		location = FileLocation(path)
	}

	now := m.now()
	return m.index.Upsert(ctx, req.Tenant, req.Checksum, func(existing *Entry) (*Entry, error) {
		if existing == nil {
			e := &Entry{
				Tenant:         req.Tenant,
				Checksum:       req.Checksum,
				FileSize:       req.FileSize,
				FileName:       req.FileName,
				MimeType:       req.MimeType,
				Type:           req.Type,
				Location:       location,
				ExpirationDate: req.ExpirationDate,
				InternalCache:  req.ExternalCache == "",
				ExternalCache:  req.ExternalCache,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			e.AddGroups(req.GroupIDs...)
			return e, nil
		}

		if req.ExpirationDate.After(existing.ExpirationDate) {
			existing.ExpirationDate = req.ExpirationDate
		}
		existing.FileSize = req.FileSize
		if existing.FileName == "" {
			existing.FileName = req.FileName
		}
		if existing.MimeType == "" {
			existing.MimeType = req.MimeType
		}
		if existing.Type == "" {
			existing.Type = req.Type
		}
		existing.AddGroups(req.GroupIDs...)
		existing.UpdatedAt = now
		return existing, nil
	})
}

// Get returns one entry.
func (m *Manager) Get(ctx context.Context, tenant, checksum string) (*Entry, error) {
	return m.index.Get(ctx, tenant, checksum)
}

// List returns one page of entries.
func (m *Manager) List(ctx context.Context, tenant string, q Query) ([]*Entry, error) {
	return m.index.List(ctx, tenant, q)
}

// Lookup returns the entries matching checksums. Each entry that has not
// expired is stamped with groupID; its expiration is left unchanged.
func (m *Manager) Lookup(ctx context.Context, tenant string, checksums []string, groupID string) ([]*Entry, error) {
	entries, err := m.index.GetMany(ctx, tenant, checksums)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	now := m.now()
	for i, e := range entries {
		if groupID == "" || e.Expired(now) || e.HasGroup(groupID) {
			continue
		}
		updated, err := m.index.Upsert(ctx, tenant, e.Checksum, func(existing *Entry) (*Entry, error) {
			if existing == nil {
				return nil, nil
			}
			if !existing.AddGroups(groupID) {
				return nil, nil
			}
			existing.UpdatedAt = now
			return existing, nil
		})
		if err != nil {
			logger.WarnCtx(ctx, "Failed to stamp cache entry with group",
				logger.KeyChecksum, e.Checksum, logger.KeyGroupID, groupID, logger.KeyError, err)
			continue
		}
		if updated != nil {
			entries[i] = updated
		}
	}

	m.recordLookup(tenant, len(entries), len(checksums)-len(entries))
	return entries, nil
}

// Capacity returns used, free and maximum bytes of a tenant cache.
func (m *Manager) Capacity(ctx context.Context, tenant string) (Capacity, error) {
	max, err := m.maxSize(tenant)
	if err != nil {
		return Capacity{}, err
	}
	usage, err := m.index.Usage(ctx, tenant)
	if err != nil {
		return Capacity{}, fmt.Errorf("cache usage: %w", err)
	}
	m.recordUsage(tenant, usage, max)

	return Capacity{
		MaxBytes:  max,
		UsedBytes: usage.InternalBytes,
		FreeBytes: max - usage.InternalBytes,
	}, nil
}

// Location describes the internal cache of a tenant.
func (m *Manager) Location(ctx context.Context, tenant string) (LocationInfo, error) {
	max, err := m.maxSize(tenant)
	if err != nil {
		return LocationInfo{}, err
	}
	usage, err := m.index.Usage(ctx, tenant)
	if err != nil {
		return LocationInfo{}, fmt.Errorf("cache usage: %w", err)
	}

	return LocationInfo{
		Name:                  InternalCacheName,
		AllowPhysicalDeletion: true,
		Files:                 usage.InternalEntries,
		UsedBytes:             usage.InternalBytes,
		MaxBytes:              max,
	}, nil
}

// Write stages content for checksum in the tenant cache and returns its
// location and size. The file is written to a temporary name and renamed so
// readers never observe a partial file.
func (m *Manager) Write(ctx context.Context, tenant, checksum string, r io.Reader) (string, int64, error) {
	path, err := m.ComputePath(tenant, checksum)
	if err != nil {
		return "", 0, err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	dir := filepath.Dir(path)
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(m.fs, dir, "."+checksum+".tmp-")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, copyErr := bufpool.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = m.fs.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to write %s: %w", path, errors.Join(copyErr, closeErr))
	}

	if err := m.fs.Rename(tmpPath, path); err != nil {
		_ = m.fs.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to rename %s: %w", path, err)
	}

	return FileLocation(path), n, nil
}

// Open opens the staged file of an internal entry.
func (m *Manager) Open(e *Entry) (afero.File, error) {
	path, ok := LocalPath(e.Location)
	if !ok || !e.InternalCache {
		return nil, fmt.Errorf("entry %s has no local file", e.Checksum)
	}
	return m.fs.Open(path)
}

func (m *Manager) maxSize(tenant string) (int64, error) {
	if _, err := m.TenantPath(tenant); err != nil {
		return 0, err
	}
	if m.limits == nil {
		return 0, fmt.Errorf("%w: no cache limits configured", ErrCachePathUninitialized)
	}
	max, ok := m.limits.MaxCacheSize(tenant)
	if !ok || max <= 0 {
		return 0, fmt.Errorf("%w: no maximum cache size for tenant %q", ErrCachePathUninitialized, tenant)
	}
	return max, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Healthcheck verifies the index is operational. Indexes that do not
// implement Healthchecker are considered healthy.
func (m *Manager) Healthcheck(ctx context.Context) error {
	if hc, ok := m.index.(Healthchecker); ok {
		return hc.Healthcheck(ctx)
	}
	return ctx.Err()
}
