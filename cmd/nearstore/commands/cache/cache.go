// Package cache implements the cache inspection and maintenance subcommands.
package cache

import (
	"github.com/spf13/cobra"
)

// Cmd is the cache subcommand.
var Cmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain a tenant cache",
	Long: `Inspect and maintain the staging cache of a tenant on a running server.

Subcommands:
  status  Show cache usage and running maintenance jobs
  purge   Remove expired entries (or every entry with --force)
  verify  Drop index entries whose file is missing`,
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(purgeCmd)
	Cmd.AddCommand(verifyCmd)
}
