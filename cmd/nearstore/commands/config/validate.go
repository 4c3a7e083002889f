package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/internal/cli/output"
	"github.com/marmos91/nearstore/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the nearstore configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  nearstore config validate

  # Validate specific config file
  nearstore config validate --config /etc/nearstore/config.yaml`,
	RunE: runConfigValidate,
}

// configWarnings lists settings that are valid but likely unintended.
func configWarnings(cfg *config.Config) []string {
	var warnings []string

	nearline := false
	for _, s := range cfg.Storages {
		if s.Tier == "nearline" {
			nearline = true
		}
	}
	if !nearline {
		warnings = append(warnings, "No nearline storage configured - availability requests will only reference online copies")
	}
	if cfg.Cache.Index.Type == "memory" {
		warnings = append(warnings, "Cache index is in memory - the cache is re-indexed as empty on every restart")
	}
	if !cfg.API.IsEnabled() {
		warnings = append(warnings, "API server disabled - requests cannot be submitted remotely")
	}
	return warnings
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if warnings := configWarnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	var summary output.KeyValues
	summary.Add("  Database type", string(cfg.Database.Type))
	summary.Add("  Cache root", cfg.Cache.RootPath)
	summary.Add("  Cache index", cfg.Cache.Index.Type)
	summary.Add("  Storages", fmt.Sprintf("%d", len(cfg.Storages)))
	summary.Add("  Tenants", fmt.Sprintf("%d", len(cfg.Tenants)))
	summary.Add("  API port", fmt.Sprintf("%d", cfg.API.Port))
	summary.Add("  Log level", cfg.Logging.Level)
	return output.PrintKeyValues(out, summary)
}
