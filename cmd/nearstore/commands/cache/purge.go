package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/internal/cli/output"
	"github.com/marmos91/nearstore/internal/cli/prompt"
	"github.com/marmos91/nearstore/pkg/apiclient"
)

var (
	purgeForce bool
	purgeYes   bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge the cache of a tenant",
	Long: `Purge the cache of a tenant.

Without --force only expired entries are removed. With --force every entry
is removed, which asks for confirmation unless --yes is given. The purge
runs in the background; follow it with 'nearstore cache status'.

Examples:
  # Remove expired entries
  nearstore cache purge --tenant acme

  # Empty the cache without prompting
  nearstore cache purge -t acme --force --yes`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "Remove every entry, expired or not")
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "Skip confirmation prompt")
}

func runPurge(cmd *cobra.Command, args []string) error {
	tenant, err := cmdutil.RequireTenant()
	if err != nil {
		return err
	}

	if purgeForce {
		ok, err := prompt.Skip(purgeYes, fmt.Sprintf("Remove every cached file of tenant %s? Type the tenant name to confirm", tenant), tenant)
		if err != nil {
			if prompt.IsAborted(err) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	ctx, cancel := cmdutil.Context()
	defer cancel()

	result, err := cmdutil.GetClient().PurgeCache(ctx, tenant, purgeForce)
	if apiclient.IsConflict(err) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "A cleanup of tenant %s is already running.\n", tenant)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}

	var pairs output.KeyValues
	pairs.Add("Tenant", result.Tenant)
	pairs.Add("Operation", result.Operation)
	pairs.Add("Force", fmt.Sprintf("%t", result.Force))
	pairs.Add("Status", "scheduled")
	return cmdutil.PrintDetails(cmd.OutOrStdout(), result, pairs)
}
