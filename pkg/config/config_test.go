package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/nearstore/internal/bytesize"
	"github.com/marmos91/nearstore/pkg/requests"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

cache:
  root_path: "`+yamlSafePath(tmpDir)+`/cache"
  default_max_size: 100Gi

database:
  type: sqlite
  sqlite:
    path: "`+yamlSafePath(tmpDir)+`/nearstore.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected API port 8080, got %d", cfg.API.Port)
	}
	if cfg.Cache.DefaultMaxSize != 100*bytesize.GiB {
		t.Errorf("Expected default_max_size 100Gi, got %v", cfg.Cache.DefaultMaxSize)
	}
	if cfg.Cache.Index.Type != "badger" {
		t.Errorf("Expected default index type 'badger', got %q", cfg.Cache.Index.Type)
	}
	if cfg.Cache.Index.Badger.Path != filepath.Join(tmpDir, "cache", ".index") {
		t.Errorf("Expected badger index under the cache root, got %q", cfg.Cache.Index.Badger.Path)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
cache:
  root_path: "`+yamlSafePath(tmpDir)+`/cache"
  cleanup_initial_delay: 30s
  cleanup_period: 2h
  verification_schedule: "0 30 4 * * * *"
  index:
    type: memory

database:
  sqlite:
    path: "`+yamlSafePath(tmpDir)+`/nearstore.db"

batching:
  store:
    bulk_size: 50
    drain_interval: 250ms
  Reference:
    max_items_per_group: 10

groups:
  expiration: 72h

storages:
  - name: disk
    type: fs
    tier: online
    allow_physical_deletion: true
    fs:
      path: "`+yamlSafePath(tmpDir)+`/disk"
  - name: tape
    type: fs
    tier: nearline
    fs:
      path: "`+yamlSafePath(tmpDir)+`/tape"

tenants:
  - name: acme
    cache_max_size: 1Gi
  - name: globex

availability:
  parallelism: 2
  default_expiration: 12h
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Cache.CleanupPeriod != 2*time.Hour {
		t.Errorf("Expected cleanup_period 2h, got %v", cfg.Cache.CleanupPeriod)
	}
	if cfg.Groups.Expiration != 72*time.Hour {
		t.Errorf("Expected groups expiration 72h, got %v", cfg.Groups.Expiration)
	}
	if len(cfg.Storages) != 2 || cfg.Storages[1].Tier != "nearline" {
		t.Fatalf("Expected two storages with tape nearline, got %+v", cfg.Storages)
	}
	if cfg.Tenants[0].CacheMaxSize != bytesize.GiB {
		t.Errorf("Expected acme cache_max_size 1Gi, got %v", cfg.Tenants[0].CacheMaxSize)
	}
	if cfg.Availability.Parallelism != 2 || cfg.Availability.DefaultExpiration != 12*time.Hour {
		t.Errorf("Unexpected availability config %+v", cfg.Availability)
	}

	kinds, err := cfg.BatchingKinds()
	if err != nil {
		t.Fatalf("BatchingKinds failed: %v", err)
	}
	if kinds[requests.KindStore].BulkSize != 50 || kinds[requests.KindStore].DrainInterval != 250*time.Millisecond {
		t.Errorf("Unexpected store batching %+v", kinds[requests.KindStore])
	}
	if kinds[requests.KindReference].MaxItemsPerGroup != 10 {
		t.Errorf("Unexpected reference batching %+v", kinds[requests.KindReference])
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
cache:
  root_path: /srv/cache
storages:
  - name: tape
    type: tape-library
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown storage type")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[cache]
root_path = "`+yamlSafePath(tmpDir)+`/cache"

[database.sqlite]
path = "`+yamlSafePath(tmpDir)+`/nearstore.db"

[api]
port = 8081
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.API.Port != 8081 {
		t.Errorf("Expected port 8081, got %d", cfg.API.Port)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("NEARSTORE_LOGGING_LEVEL", "ERROR")
	t.Setenv("NEARSTORE_API_PORT", "9095")
	t.Setenv("NEARSTORE_CACHE_ROOT_PATH", "/srv/override")

	tmpDir := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

cache:
  root_path: "`+yamlSafePath(tmpDir)+`/cache"

database:
  sqlite:
    path: "`+yamlSafePath(tmpDir)+`/nearstore.db"

api:
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 9095 {
		t.Errorf("Expected port 9095 from env var, got %d", cfg.API.Port)
	}
	if cfg.Cache.RootPath != "/srv/override" {
		t.Errorf("Expected cache root from env var, got %q", cfg.Cache.RootPath)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved", "config.yaml")
	cfg := GetDefaultConfig()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "nearstore.db")
	cfg.Tenants = append(cfg.Tenants, TenantConfig{Name: "acme", CacheMaxSize: 5 * bytesize.GiB})

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if len(loaded.Tenants) != 2 || loaded.Tenants[1].CacheMaxSize != 5*bytesize.GiB {
		t.Errorf("Tenants did not round trip: %+v", loaded.Tenants)
	}
	if loaded.Cache.VerificationSchedule != cfg.Cache.VerificationSchedule {
		t.Errorf("Expected schedule %q, got %q", cfg.Cache.VerificationSchedule, loaded.Cache.VerificationSchedule)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "nearstore" {
		t.Errorf("Expected directory name 'nearstore', got %q", filepath.Base(dir))
	}
}
