package groups

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/pkg/store/models"
)

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List request groups",
	Long: `List the request groups of a tenant ordered by id.

Examples:
  # List the first 100 groups
  nearstore groups list --tenant acme

  # List failed groups as JSON
  nearstore groups list -t acme --status error -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending|done|error|cancelled|denied|expired)")
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "Maximum number of groups (0 for the server default)")
}

// GroupList is a list of groups for table rendering.
type GroupList []*models.RequestGroup

// Headers implements TableRenderer.
func (gl GroupList) Headers() []string {
	return []string{"GROUP", "KIND", "STATUS", "FILES", "SUCCEEDED", "FAILED", "ATTEMPTS", "CREATED"}
}

// Rows implements TableRenderer.
func (gl GroupList) Rows() [][]string {
	rows := make([][]string, 0, len(gl))
	for _, g := range gl {
		rows = append(rows, []string{
			g.GroupID,
			g.Kind,
			string(g.Status),
			strconv.Itoa(g.GrantedItems),
			strconv.Itoa(g.Succeeded),
			strconv.Itoa(g.Failed),
			strconv.Itoa(g.Attempts()),
			g.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	tenant, err := cmdutil.RequireTenant()
	if err != nil {
		return err
	}

	var status models.GroupStatus
	if listStatus != "" {
		st, ok := models.ParseGroupStatus(listStatus)
		if !ok {
			return fmt.Errorf("unknown group status %q", listStatus)
		}
		status = st
	}

	ctx, cancel := cmdutil.Context()
	defer cancel()

	groups, err := cmdutil.GetClient().ListGroups(ctx, tenant, status, listLimit)
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}

	return cmdutil.PrintOutput(cmd.OutOrStdout(), groups, len(groups) == 0, "No groups found.", GroupList(groups))
}
