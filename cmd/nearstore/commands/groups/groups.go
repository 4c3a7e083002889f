// Package groups implements the request group subcommands.
package groups

import (
	"github.com/spf13/cobra"
)

// Cmd is the groups subcommand.
var Cmd = &cobra.Command{
	Use:     "groups",
	Aliases: []string{"group"},
	Short:   "Inspect request groups",
	Long: `Inspect the request groups of a tenant on a running server.

Subcommands:
  list  List groups, optionally filtered by status
  show  Show one group`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
}
