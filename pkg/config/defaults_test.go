package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/nearstore/pkg/files"
	"github.com/marmos91/nearstore/pkg/groups"
	"github.com/marmos91/nearstore/pkg/scheduler"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.API.ReadTimeout)
	}
	if !cfg.API.IsEnabled() {
		t.Error("Expected API to be enabled by default")
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port while disabled, got %d", cfg.Metrics.Port)
	}

	cfg = &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_Cache(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{RootPath: "/srv/cache"}}
	ApplyDefaults(cfg)

	if cfg.Cache.DefaultMaxSize != DefaultCacheMaxSize {
		t.Errorf("Expected default max size %v, got %v", DefaultCacheMaxSize, cfg.Cache.DefaultMaxSize)
	}
	if cfg.Cache.CleanupInitialDelay != scheduler.DefaultCleanupInitialDelay {
		t.Errorf("Expected cleanup initial delay %v, got %v", scheduler.DefaultCleanupInitialDelay, cfg.Cache.CleanupInitialDelay)
	}
	if cfg.Cache.VerificationSchedule != "0 0 3 * * * *" {
		t.Errorf("Expected daily verification schedule, got %q", cfg.Cache.VerificationSchedule)
	}
	if cfg.Cache.PurgePageSize != 500 || cfg.Cache.CoherenceBatchSize != 10000 {
		t.Errorf("Unexpected page sizes %d/%d", cfg.Cache.PurgePageSize, cfg.Cache.CoherenceBatchSize)
	}
	if cfg.Cache.Index.Badger.Path != filepath.Join("/srv/cache", ".index") {
		t.Errorf("Expected badger index under the cache root, got %q", cfg.Cache.Index.Badger.Path)
	}
}

func TestApplyDefaults_PostgresIndex(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{Index: IndexConfig{Type: "postgres"}}}
	ApplyDefaults(cfg)

	if cfg.Cache.Index.Postgres.Port != 5432 {
		t.Errorf("Expected postgres port 5432, got %d", cfg.Cache.Index.Postgres.Port)
	}
	if cfg.Cache.Index.Badger.Path != "" {
		t.Errorf("Expected no badger path for postgres index, got %q", cfg.Cache.Index.Badger.Path)
	}
}

func TestApplyDefaults_GroupsAndAvailability(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Groups.Expiration != groups.DefaultExpiration {
		t.Errorf("Expected group expiration %v, got %v", groups.DefaultExpiration, cfg.Groups.Expiration)
	}
	if cfg.Groups.SweepPeriod != scheduler.DefaultGroupsSweepPeriod {
		t.Errorf("Expected sweep period %v, got %v", scheduler.DefaultGroupsSweepPeriod, cfg.Groups.SweepPeriod)
	}
	if cfg.Availability.Parallelism != files.DefaultParallelism {
		t.Errorf("Expected parallelism %d, got %d", files.DefaultParallelism, cfg.Availability.Parallelism)
	}
	if cfg.Availability.DefaultExpiration != 24*time.Hour {
		t.Errorf("Expected availability expiration 24h, got %v", cfg.Availability.DefaultExpiration)
	}
}

func TestApplyDefaults_Storages(t *testing.T) {
	cfg := &Config{Storages: []StorageConfig{{Name: "disk", Type: "FS"}, {Name: "tape", Type: "fs", Tier: "NEARLINE"}}}
	ApplyDefaults(cfg)

	if cfg.Storages[0].Type != "fs" || cfg.Storages[0].Tier != "online" {
		t.Errorf("Unexpected normalized storage %+v", cfg.Storages[0])
	}
	if cfg.Storages[1].Tier != "nearline" {
		t.Errorf("Expected tier to be normalized, got %q", cfg.Storages[1].Tier)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		ShutdownTimeout: 5 * time.Second,
		Cache:           CacheConfig{CleanupPeriod: 15 * time.Minute, Index: IndexConfig{Type: "memory"}},
		Groups:          GroupsConfig{CancelledCacheSize: 10},
	}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Cache.CleanupPeriod != 15*time.Minute {
		t.Errorf("Expected cleanup period to be preserved, got %v", cfg.Cache.CleanupPeriod)
	}
	if cfg.Cache.Index.Type != "memory" {
		t.Errorf("Expected index type to be preserved, got %q", cfg.Cache.Index.Type)
	}
	if cfg.Groups.CancelledCacheSize != 10 {
		t.Errorf("Expected cancelled cache size to be preserved, got %d", cfg.Groups.CancelledCacheSize)
	}
}
