package cache

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/internal/cli/output"
	"github.com/marmos91/nearstore/pkg/apiclient"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the cache index against the disk",
	Long: `Queue a check that drops the index entries of a tenant whose file no
longer exists on disk. The check runs in the background; follow it with
'nearstore cache status'.

Examples:
  nearstore cache verify --tenant acme`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	tenant, err := cmdutil.RequireTenant()
	if err != nil {
		return err
	}

	ctx, cancel := cmdutil.Context()
	defer cancel()

	result, err := cmdutil.GetClient().VerifyCache(ctx, tenant)
	if apiclient.IsConflict(err) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "A verification of tenant %s is already running.\n", tenant)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to verify cache: %w", err)
	}

	var pairs output.KeyValues
	pairs.Add("Tenant", result.Tenant)
	pairs.Add("Operation", result.Operation)
	pairs.Add("Status", "scheduled")
	return cmdutil.PrintDetails(cmd.OutOrStdout(), result, pairs)
}
