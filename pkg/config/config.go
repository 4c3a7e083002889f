package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/nearstore/internal/bytesize"
	"github.com/marmos91/nearstore/pkg/api"
	"github.com/marmos91/nearstore/pkg/backend/fs"
	"github.com/marmos91/nearstore/pkg/backend/s3"
	"github.com/marmos91/nearstore/pkg/cache/store/badger"
	"github.com/marmos91/nearstore/pkg/cache/store/postgres"
	"github.com/marmos91/nearstore/pkg/ingest"
	"github.com/marmos91/nearstore/pkg/store"
)

// Config represents the nearstore configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (NEARSTORE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database persists request groups, file references and failed requests.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the HTTP API server configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Cache configures the staging cache and its maintenance
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Batching tunes the batch worker of each request kind, keyed by kind name.
	Batching map[string]ingest.KindConfig `mapstructure:"batching" validate:"dive" yaml:"batching,omitempty"`

	// Groups configures request group tracking
	Groups GroupsConfig `mapstructure:"groups" yaml:"groups"`

	// Storages lists the backends files are stored on
	Storages []StorageConfig `mapstructure:"storages" validate:"dive" yaml:"storages"`

	// Tenants lists the active tenants
	Tenants []TenantConfig `mapstructure:"tenants" validate:"dive" yaml:"tenants"`

	// Availability tunes staging of nearline files into the cache
	Availability AvailabilityConfig `mapstructure:"availability" yaml:"availability"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	// Set to false in production with a TLS-enabled collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
// When enabled, CPU and memory profiles are continuously sent to a Pyroscope server
// for flame graph visualization and performance analysis.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// CacheConfig configures the staging cache.
type CacheConfig struct {
	// RootPath holds one directory per tenant (required)
	// Example: /var/lib/nearstore/cache
	RootPath string `mapstructure:"root_path" validate:"required" yaml:"root_path"`

	// DefaultMaxSize is the cache maximum of tenants without their own.
	// Supports human-readable formats: "1TB", "500Gi"
	// Default: 100GiB
	DefaultMaxSize bytesize.ByteSize `mapstructure:"default_max_size" yaml:"default_max_size"`

	// CleanupInitialDelay is the delay before the first cleanup after start.
	// Default: 1m
	CleanupInitialDelay time.Duration `mapstructure:"cleanup_initial_delay" yaml:"cleanup_initial_delay"`

	// CleanupPeriod is the interval between cleanups.
	// Default: 1h
	CleanupPeriod time.Duration `mapstructure:"cleanup_period" yaml:"cleanup_period"`

	// VerificationSchedule is the cron expression of coherence checks.
	// Default: "0 0 3 * * * *" (every day at 03:00)
	VerificationSchedule string `mapstructure:"verification_schedule" yaml:"verification_schedule"`

	// PurgePageSize bounds the entries loaded at once by maintenance.
	// Default: 500
	PurgePageSize int `mapstructure:"purge_page_size" validate:"omitempty,gte=1" yaml:"purge_page_size"`

	// CoherenceBatchSize bounds the orphan rows deleted in one call.
	// Default: 10000
	CoherenceBatchSize int `mapstructure:"coherence_batch_size" validate:"omitempty,gte=1" yaml:"coherence_batch_size"`

	// Workers is the number of maintenance jobs run concurrently.
	// Default: 4
	Workers int `mapstructure:"workers" validate:"omitempty,gte=1" yaml:"workers"`

	// Index selects where cache entries are indexed
	Index IndexConfig `mapstructure:"index" yaml:"index"`
}

// IndexConfig selects the cache index backend.
type IndexConfig struct {
	// Type is memory, badger or postgres.
	// Default: badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger postgres" yaml:"type"`

	// Badger is used when Type is badger
	Badger badger.Config `mapstructure:"badger" validate:"-" yaml:"badger,omitempty"`

	// Postgres is used when Type is postgres
	Postgres postgres.Config `mapstructure:"postgres" validate:"-" yaml:"postgres,omitempty"`
}

// GroupsConfig configures request group tracking.
type GroupsConfig struct {
	// Expiration is how long a group may stay pending.
	// Default: 48h
	Expiration time.Duration `mapstructure:"expiration" yaml:"expiration"`

	// SweepPeriod is the interval between group sweeps.
	// Default: 10m
	SweepPeriod time.Duration `mapstructure:"sweep_period" yaml:"sweep_period"`

	// CancelledCacheSize is the number of cancelled group ids kept in memory.
	// Default: 4096
	CancelledCacheSize int `mapstructure:"cancelled_cache_size" validate:"omitempty,gte=1" yaml:"cancelled_cache_size"`
}

// StorageConfig declares one storage backend.
type StorageConfig struct {
	// Name is the storage name requests refer to
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// Type is fs or s3
	Type string `mapstructure:"type" validate:"required,oneof=fs s3" yaml:"type"`

	// Tier is online or nearline. Nearline files are staged in the cache
	// before they are made available.
	// Default: online
	Tier string `mapstructure:"tier" validate:"required,oneof=online nearline" yaml:"tier"`

	// AllowPhysicalDeletion lets delete requests remove files from the storage
	AllowPhysicalDeletion bool `mapstructure:"allow_physical_deletion" yaml:"allow_physical_deletion"`

	// FS is used when Type is fs
	FS fs.Config `mapstructure:"fs" validate:"-" yaml:"fs,omitempty"`

	// S3 is used when Type is s3
	S3 s3.Config `mapstructure:"s3" validate:"-" yaml:"s3,omitempty"`
}

// TenantConfig declares one tenant.
type TenantConfig struct {
	// Name identifies the tenant in requests and cache paths
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// CacheMaxSize overrides cache.default_max_size
	CacheMaxSize bytesize.ByteSize `mapstructure:"cache_max_size" yaml:"cache_max_size,omitempty"`
}

// AvailabilityConfig tunes staging of nearline files.
type AvailabilityConfig struct {
	// Parallelism bounds concurrent retrievals per batch.
	// Default: 8
	Parallelism int `mapstructure:"parallelism" validate:"omitempty,gte=1" yaml:"parallelism"`

	// DefaultExpiration applies when a request carries no expiration date.
	// Default: 24h
	DefaultExpiration time.Duration `mapstructure:"default_expiration" yaml:"default_expiration"`

	// RetrieveAttempts is the number of attempts per nearline retrieval.
	// Default: 3
	RetrieveAttempts int `mapstructure:"retrieve_attempts" validate:"omitempty,gte=1" yaml:"retrieve_attempts"`

	// RetrieveBaseDelay is the first backoff delay between attempts.
	// Default: 500ms
	RetrieveBaseDelay time.Duration `mapstructure:"retrieve_base_delay" yaml:"retrieve_base_delay"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (NEARSTORE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: User-friendly error with instructions if config not found
func MustLoad(configPath string) (*Config, error) {
	// Determine config path
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  nearstore init\n\n"+
				"Or specify a custom config file:\n"+
				"  nearstore <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  nearstore init --config %s",
				configPath, configPath)
		}
	}

	// Load configuration
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file with restricted permissions (0600 = owner read/write only).
	// This is important because config files may contain sensitive data like password hashes.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use NEARSTORE_ prefix and underscores
	// Example: NEARSTORE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("NEARSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/nearstore/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Other errors are problems
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use human-readable
// sizes like "1Gi", "500Mi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to ByteSize
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse human-readable string like "1Gi", "500Mi", "100MB"
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to time.Duration
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse duration string like "30s", "5m", "1h"
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nearstore")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "nearstore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
