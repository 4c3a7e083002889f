package config

import (
	"strings"
	"testing"

	"github.com/marmos91/nearstore/pkg/ingest"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_MissingCacheRootPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.RootPath = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing cache root path")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "cache") || !strings.Contains(errStr, "rootpath") {
		t.Errorf("Expected error about cache root path, got: %v", err)
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "telemetry") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_VerificationSchedule(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.VerificationSchedule = "every night"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for malformed cron expression")
	}
	if !strings.Contains(err.Error(), "verification_schedule") {
		t.Errorf("Expected error about verification_schedule, got: %v", err)
	}
}

func TestValidate_Storages(t *testing.T) {
	testCases := []struct {
		name    string
		storage StorageConfig
		want    string
	}{
		{"unknown type", StorageConfig{Name: "x", Type: "ftp", Tier: "online"}, "oneof"},
		{"unknown tier", StorageConfig{Name: "x", Type: "fs", Tier: "cold"}, "oneof"},
		{"fs without path", StorageConfig{Name: "x", Type: "fs", Tier: "online"}, "storages.x.fs"},
		{"s3 without bucket", StorageConfig{Name: "x", Type: "s3", Tier: "nearline"}, "storages.x.s3"},
		{"duplicate name", StorageConfig{Name: "disk", Type: "fs", Tier: "online", AllowPhysicalDeletion: true}, "duplicate"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			if tc.storage.Type == "fs" && tc.storage.Name == "disk" {
				tc.storage.FS = cfg.Storages[0].FS
			}
			cfg.Storages = append(cfg.Storages, tc.storage)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_Tenants(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Tenants = append(cfg.Tenants, TenantConfig{Name: "default"})
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Expected duplicate tenant error, got: %v", err)
	}

	cfg = GetDefaultConfig()
	cfg.Tenants = []TenantConfig{{Name: "../escape"}}
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for tenant name with a path separator")
	}
}

func TestValidate_BatchingKinds(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Batching = map[string]ingest.KindConfig{"teleport": {BulkSize: 10}}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "teleport") {
		t.Errorf("Expected unknown kind error, got: %v", err)
	}
}

func TestValidate_PostgresIndex(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.Index.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for postgres index without connection settings")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	// Validation accepts both uppercase and lowercase log levels
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
