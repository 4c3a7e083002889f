// Package commands implements the nearstore CLI: the server lifecycle
// commands and the API client commands.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	cachecmd "github.com/marmos91/nearstore/cmd/nearstore/commands/cache"
	configcmd "github.com/marmos91/nearstore/cmd/nearstore/commands/config"
	groupscmd "github.com/marmos91/nearstore/cmd/nearstore/commands/groups"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nearstore",
	Short: "nearstore - Nearline storage cache and file request orchestrator",
	Long: `nearstore accepts batched file requests (store, delete, reference,
availability, copy, retry, cancel), executes them against online and nearline
storages and stages nearline files in a per-tenant cache.

Server commands (start, init, migrate, config) read the configuration file.
Client commands (submit, groups, cache, status) talk to a running server
through its HTTP API.

Use "nearstore [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nearstore/config.yaml)")
	flags.StringVar(&cmdutil.Flags.ServerURL, "server", "", "API server URL (default: $NEARSTORE_SERVER or "+cmdutil.DefaultServerURL+")")
	flags.StringVarP(&cmdutil.Flags.Tenant, "tenant", "t", "", "Tenant the client command applies to")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	flags.DurationVar(&cmdutil.Flags.Timeout, "timeout", 30*time.Second, "API request timeout")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(cachecmd.Cmd)
	rootCmd.AddCommand(groupscmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cmdutil.Flags.ConfigFile
}
