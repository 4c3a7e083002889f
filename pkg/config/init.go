package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `# nearstore configuration file
#
# Every value can be overridden with a NEARSTORE_ environment variable,
# e.g. NEARSTORE_LOGGING_LEVEL=DEBUG or NEARSTORE_CACHE_ROOT_PATH=/srv/cache.
#
# Sizes accept human-readable units (500Gi, 1TB) and durations Go syntax
# (30s, 10m, 48h). batching takes one entry per request kind (store, delete,
# reference, availability, copy, retry, cancel):
#
#   batching:
#     store:
#       bulk_size: 100
#       drain_interval: 1s
#
`

// InitConfig writes a sample configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(sampleHeader), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
