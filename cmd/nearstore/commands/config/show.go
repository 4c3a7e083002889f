package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/internal/cli/output"
	"github.com/marmos91/nearstore/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective nearstore configuration, defaults included.

Outputs YAML unless --output json is given.

Examples:
  # Show default config as YAML
  nearstore config show

  # Show as JSON
  nearstore config show --output json

  # Show specific config file
  nearstore config show --config /etc/nearstore/config.yaml`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}

	format, err := cmdutil.GetOutputFormat()
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
