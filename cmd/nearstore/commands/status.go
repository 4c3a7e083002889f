package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/pkg/api/handlers"
	"github.com/marmos91/nearstore/pkg/apiclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the readiness of a running nearstore server.

The command calls the readiness endpoint and lists the health of each
component (database, cache, storages). It exits with an error when the
server is unreachable or a component is unhealthy.

Examples:
  # Check the local server
  nearstore status

  # Check a remote server as JSON
  nearstore status --server http://nearstore:8080 -o json`,
	RunE: runStatus,
}

// ComponentList renders readiness reports as a table.
type ComponentList []handlers.ComponentHealth

// Headers implements TableRenderer.
func (cl ComponentList) Headers() []string {
	return []string{"COMPONENT", "STATUS", "LATENCY", "ERROR"}
}

// Rows implements TableRenderer.
func (cl ComponentList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		rows = append(rows, []string{c.Name, c.Status, c.Latency, cmdutil.EmptyOr(c.Error, "-")})
	}
	return rows
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdutil.Context()
	defer cancel()

	components, err := cmdutil.GetClient().Ready(ctx)

	var apiErr *apiclient.APIError
	if err != nil && !errors.As(err, &apiErr) {
		return fmt.Errorf("server at %s is not reachable: %w", cmdutil.ServerURL(), err)
	}

	if perr := cmdutil.PrintOutput(cmd.OutOrStdout(), components, len(components) == 0,
		"No components reported.", ComponentList(components)); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("server is not ready: %w", err)
	}
	return nil
}
