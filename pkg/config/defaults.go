package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/nearstore/internal/bytesize"
	"github.com/marmos91/nearstore/pkg/backend/fs"
	"github.com/marmos91/nearstore/pkg/files"
	"github.com/marmos91/nearstore/pkg/groups"
	"github.com/marmos91/nearstore/pkg/ingest"
	"github.com/marmos91/nearstore/pkg/scheduler"
	"github.com/marmos91/nearstore/pkg/store"
)

// DefaultCacheMaxSize is the cache maximum of tenants without their own.
const DefaultCacheMaxSize = 100 * bytesize.GiB

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyDatabaseDefaults(&cfg.Database)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.API.ApplyDefaults()
	applyCacheDefaults(&cfg.Cache)
	applyGroupsDefaults(&cfg.Groups)
	applyStorageDefaults(cfg.Storages)
	applyAvailabilityDefaults(&cfg.Availability)
	applyBatchingDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)
	// No need to set, zero value is false

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	// Apply profiling defaults
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling)
	// No need to set, zero value is false

	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Default profile types include CPU, memory allocation, and goroutines
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyDatabaseDefaults sets request database defaults.
func applyDatabaseDefaults(cfg *store.Config) {
	cfg.ApplyDefaults()
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyCacheDefaults sets cache and maintenance defaults.
// RootPath has no default; it must be configured.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.DefaultMaxSize == 0 {
		cfg.DefaultMaxSize = DefaultCacheMaxSize
	}
	if cfg.CleanupInitialDelay == 0 {
		cfg.CleanupInitialDelay = scheduler.DefaultCleanupInitialDelay
	}
	if cfg.CleanupPeriod == 0 {
		cfg.CleanupPeriod = scheduler.DefaultCleanupPeriod
	}
	if cfg.VerificationSchedule == "" {
		cfg.VerificationSchedule = scheduler.DefaultVerificationSchedule
	}
	if cfg.PurgePageSize == 0 {
		cfg.PurgePageSize = 500
	}
	if cfg.CoherenceBatchSize == 0 {
		cfg.CoherenceBatchSize = 10000
	}
	if cfg.Workers == 0 {
		cfg.Workers = scheduler.DefaultWorkers
	}

	if cfg.Index.Type == "" {
		cfg.Index.Type = "badger"
	}
	switch cfg.Index.Type {
	case "badger":
		if cfg.Index.Badger.Path == "" && cfg.RootPath != "" {
			cfg.Index.Badger.Path = filepath.Join(cfg.RootPath, ".index")
		}
	case "postgres":
		cfg.Index.Postgres.ApplyDefaults()
	}
}

// applyGroupsDefaults sets request group defaults.
func applyGroupsDefaults(cfg *GroupsConfig) {
	if cfg.Expiration == 0 {
		cfg.Expiration = groups.DefaultExpiration
	}
	if cfg.SweepPeriod == 0 {
		cfg.SweepPeriod = scheduler.DefaultGroupsSweepPeriod
	}
	if cfg.CancelledCacheSize == 0 {
		cfg.CancelledCacheSize = groups.DefaultCancelledCacheSize
	}
}

// applyStorageDefaults normalizes storage declarations.
func applyStorageDefaults(storages []StorageConfig) {
	for i := range storages {
		storages[i].Type = strings.ToLower(storages[i].Type)
		if storages[i].Tier == "" {
			storages[i].Tier = "online"
		}
		storages[i].Tier = strings.ToLower(storages[i].Tier)
	}
}

// applyAvailabilityDefaults sets staging defaults.
func applyAvailabilityDefaults(cfg *AvailabilityConfig) {
	if cfg.Parallelism == 0 {
		cfg.Parallelism = files.DefaultParallelism
	}
	if cfg.DefaultExpiration == 0 {
		cfg.DefaultExpiration = files.DefaultExpiration
	}
	if cfg.RetrieveAttempts == 0 {
		cfg.RetrieveAttempts = files.DefaultRetrieveAttempts
	}
	if cfg.RetrieveBaseDelay == 0 {
		cfg.RetrieveBaseDelay = files.DefaultRetrieveBaseDelay
	}
}

// applyBatchingDefaults normalizes kind names. Per-kind zero values are
// resolved by the ingest dispatcher.
func applyBatchingDefaults(cfg *Config) {
	if len(cfg.Batching) == 0 {
		return
	}
	normalized := make(map[string]ingest.KindConfig, len(cfg.Batching))
	for name, kc := range cfg.Batching {
		normalized[strings.ToLower(name)] = kc
	}
	cfg.Batching = normalized
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite, // Default to SQLite for single-node
		},
		Cache: CacheConfig{
			RootPath: "/var/lib/nearstore/cache",
		},
		Storages: []StorageConfig{
			{
				Name:                  "disk",
				Type:                  "fs",
				Tier:                  "online",
				AllowPhysicalDeletion: true,
				FS:                    fs.Config{Path: "/var/lib/nearstore/disk"},
			},
		},
		Tenants: []TenantConfig{
			{Name: "default"},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
