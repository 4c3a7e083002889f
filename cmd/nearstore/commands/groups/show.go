package groups

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/internal/cli/output"
	"github.com/marmos91/nearstore/pkg/apiclient"
	"github.com/marmos91/nearstore/pkg/store/models"
)

var showCmd = &cobra.Command{
	Use:   "show <group-id>",
	Short: "Show one request group",
	Long: `Show the admission and progress counters of one request group.

Examples:
  nearstore groups show g-42 --tenant acme`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func groupPairs(g *models.RequestGroup) output.KeyValues {
	var pairs output.KeyValues
	pairs.Add("Group", g.GroupID)
	pairs.Add("Tenant", g.Tenant)
	pairs.Add("Kind", g.Kind)
	pairs.Add("Status", string(g.Status))
	pairs.Add("Granted", strconv.Itoa(g.Granted))
	pairs.Add("Denied", strconv.Itoa(g.Denied))
	if g.DeniedReason != "" {
		pairs.Add("Denied reason", g.DeniedReason)
	}
	pairs.Add("Files", strconv.Itoa(g.GrantedItems))
	pairs.Add("Succeeded", strconv.Itoa(g.Succeeded))
	pairs.Add("Failed", strconv.Itoa(g.Failed))
	pairs.Add("Cancelled", strconv.FormatBool(g.Cancelled))
	if g.ExpiresAt != nil {
		pairs.Add("Expires", g.ExpiresAt.Format(time.RFC3339))
	}
	pairs.Add("Created", g.CreatedAt.Format(time.RFC3339))
	pairs.Add("Updated", g.UpdatedAt.Format(time.RFC3339))
	return pairs
}

func runShow(cmd *cobra.Command, args []string) error {
	tenant, err := cmdutil.RequireTenant()
	if err != nil {
		return err
	}

	ctx, cancel := cmdutil.Context()
	defer cancel()

	g, err := cmdutil.GetClient().GetGroup(ctx, tenant, args[0])
	if err != nil {
		if apiclient.IsNotFound(err) {
			return fmt.Errorf("group %q not found for tenant %s", args[0], tenant)
		}
		return fmt.Errorf("failed to get group: %w", err)
	}
	return cmdutil.PrintDetails(cmd.OutOrStdout(), g, groupPairs(g))
}
