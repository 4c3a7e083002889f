package config

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/backend"
	"github.com/marmos91/nearstore/pkg/backend/fs"
	"github.com/marmos91/nearstore/pkg/backend/s3"
	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/cache/store/badger"
	"github.com/marmos91/nearstore/pkg/cache/store/memory"
	"github.com/marmos91/nearstore/pkg/cache/store/postgres"
	"github.com/marmos91/nearstore/pkg/files"
	"github.com/marmos91/nearstore/pkg/groups"
	"github.com/marmos91/nearstore/pkg/ingest"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/scheduler"
	"github.com/marmos91/nearstore/pkg/tenant"
)

// OpenCacheIndex opens the configured cache index.
func OpenCacheIndex(ctx context.Context, cfg IndexConfig) (cache.Index, error) {
	logger.Debug("Opening cache index", "type", cfg.Type)

	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "badger":
		idx, err := badger.Open(cfg.Badger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger cache index: %w", err)
		}
		return idx, nil
	case "postgres":
		pgCfg := cfg.Postgres
		pgCfg.ApplyDefaults()
		idx, err := postgres.Open(ctx, &pgCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres cache index: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported cache index type: %s", cfg.Type)
	}
}

// BuildStorages creates one driver per configured storage. fsys backs the fs
// drivers; m wraps every driver when non-nil.
func BuildStorages(ctx context.Context, storages []StorageConfig, fsys afero.Fs, m backend.Metrics) (*backend.Registry, error) {
	reg, err := backend.NewRegistry()
	if err != nil {
		return nil, err
	}

	for _, sc := range storages {
		d, err := createDriver(ctx, sc, fsys)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage %q: %w", sc.Name, err)
		}
		if err := reg.Register(backend.Instrument(d, m)); err != nil {
			return nil, err
		}
		logger.Debug("Storage registered", logger.KeyStorage, sc.Name, "type", sc.Type, "tier", sc.Tier)
	}
	return reg, nil
}

func createDriver(ctx context.Context, sc StorageConfig, fsys afero.Fs) (backend.Driver, error) {
	tier, ok := backend.ParseTier(sc.Tier)
	if !ok {
		return nil, fmt.Errorf("unknown tier %q", sc.Tier)
	}

	switch sc.Type {
	case "fs":
		return fs.New(sc.Name, tier, sc.AllowPhysicalDeletion, sc.FS, fsys)
	case "s3":
		return s3.NewFromConfig(ctx, sc.Name, tier, sc.AllowPhysicalDeletion, sc.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sc.Type)
	}
}

// BuildTenants creates the tenant registry.
func (c *Config) BuildTenants() (*tenant.Registry, error) {
	tenants := make([]tenant.Tenant, 0, len(c.Tenants))
	for _, t := range c.Tenants {
		tenants = append(tenants, tenant.Tenant{Name: t.Name, CacheMaxSize: t.CacheMaxSize.Int64()})
	}
	return tenant.NewRegistry(c.Cache.DefaultMaxSize.Int64(), tenants...)
}

// BatchingKinds resolves the batching section to per-kind worker settings.
func (c *Config) BatchingKinds() (map[requests.Kind]ingest.KindConfig, error) {
	kinds := make(map[requests.Kind]ingest.KindConfig, len(c.Batching))
	for name, kc := range c.Batching {
		kind, err := requests.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("batching.%s: %w", name, err)
		}
		kinds[kind] = kc
	}
	return kinds, nil
}

// ManagerConfig returns the cache manager settings.
func (c *CacheConfig) ManagerConfig(limits cache.Limits, fsys afero.Fs, m cache.Metrics) cache.Config {
	return cache.Config{
		RootPath:           c.RootPath,
		PageSize:           c.PurgePageSize,
		CoherenceBatchSize: c.CoherenceBatchSize,
		Limits:             limits,
		Fs:                 fsys,
		Metrics:            m,
	}
}

// SchedulerConfig returns the maintenance scheduler settings.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		CleanupInitialDelay:  c.Cache.CleanupInitialDelay,
		CleanupPeriod:        c.Cache.CleanupPeriod,
		VerificationSchedule: c.Cache.VerificationSchedule,
		GroupsSweepPeriod:    c.Groups.SweepPeriod,
		Workers:              c.Cache.Workers,
	}
}

// TrackerOptions returns the request group tracker settings.
func (c *GroupsConfig) TrackerOptions() groups.Options {
	return groups.Options{
		Expiration:         c.Expiration,
		CancelledCacheSize: c.CancelledCacheSize,
	}
}

// ServiceOptions returns the file service settings.
func (c *AvailabilityConfig) ServiceOptions(fsys afero.Fs) files.Options {
	return files.Options{
		Parallelism:       c.Parallelism,
		DefaultExpiration: c.DefaultExpiration,
		RetrieveAttempts:  c.RetrieveAttempts,
		RetrieveBaseDelay: c.RetrieveBaseDelay,
		Fs:                fsys,
	}
}
