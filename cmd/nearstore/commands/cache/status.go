package cache

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/internal/cli/output"
	"github.com/marmos91/nearstore/pkg/scheduler"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache usage",
	Long: `Show the cache location, usage and maintenance state of a tenant.

Examples:
  nearstore cache status --tenant acme
  nearstore cache status -t acme -o json`,
	RunE: runStatus,
}

func describePairs(d *scheduler.Descriptor) output.KeyValues {
	var pairs output.KeyValues
	pairs.Add("Name", d.Name)
	pairs.Add("Files", fmt.Sprintf("%d", d.Files))
	pairs.Add("Used", humanize.IBytes(uint64(max(d.UsedBytes, 0))))
	pairs.Add("Max", humanize.IBytes(uint64(max(d.MaxBytes, 0))))
	if d.MaxBytes > 0 {
		pairs.Add("Usage", fmt.Sprintf("%.1f%%", float64(d.UsedBytes)*100/float64(d.MaxBytes)))
	}
	pairs.Add("Physical deletion", fmt.Sprintf("%t", d.AllowPhysicalDeletion))
	pairs.Add("Cleanup running", fmt.Sprintf("%t", d.CleanupRunning))
	pairs.Add("Verification running", fmt.Sprintf("%t", d.VerificationRunning))
	return pairs
}

func runStatus(cmd *cobra.Command, args []string) error {
	tenant, err := cmdutil.RequireTenant()
	if err != nil {
		return err
	}

	ctx, cancel := cmdutil.Context()
	defer cancel()

	d, err := cmdutil.GetClient().DescribeCache(ctx, tenant)
	if err != nil {
		return fmt.Errorf("failed to describe cache: %w", err)
	}
	return cmdutil.PrintDetails(cmd.OutOrStdout(), d, describePairs(d))
}
