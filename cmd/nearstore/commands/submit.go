package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/nearstore/cmd/nearstore/cmdutil"
	"github.com/marmos91/nearstore/internal/cli/output"
	"github.com/marmos91/nearstore/pkg/requests"
)

var submitFile string

var submitCmd = &cobra.Command{
	Use:   "submit <kind>",
	Short: "Submit a request message",
	Long: `Submit one request message to a running nearstore server.

The kind is one of store, delete, reference, availability, copy, retry or
cancel. The JSON payload is read from --file, or from stdin when --file is
"-" or omitted. A denied request is reported but is not an error: the
decision is recorded on the request group.

Examples:
  # Store the files listed in store.json for tenant acme
  nearstore submit store --tenant acme --file store.json

  # Pipe a cancel message
  echo '{"group_ids":["g1"]}' | nearstore submit cancel -t acme`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: kindNames(),
	RunE:      runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "-", "JSON payload file (- for stdin)")
}

func kindNames() []string {
	names := make([]string, 0, len(requests.Kinds))
	for _, k := range requests.Kinds {
		names = append(names, k.String())
	}
	return names
}

func readPayload(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	kind, err := requests.ParseKind(args[0])
	if err != nil {
		return err
	}
	tenant, err := cmdutil.RequireTenant()
	if err != nil {
		return err
	}

	payload, err := readPayload(cmd, submitFile)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	ctx, cancel := cmdutil.Context()
	defer cancel()

	decision, err := cmdutil.GetClient().Submit(ctx, tenant, kind.String(), payload)
	if err != nil {
		return fmt.Errorf("failed to submit %s request: %w", kind, err)
	}

	var pairs output.KeyValues
	pairs.Add("Kind", kind.String())
	pairs.Add("Tenant", tenant)
	if decision.Granted {
		pairs.Add("Decision", "granted")
	} else {
		pairs.Add("Decision", "denied")
		pairs.Add("Reason", decision.Reason)
	}
	return cmdutil.PrintDetails(cmd.OutOrStdout(), decision, pairs)
}
