// Package cmdutil holds the state and helpers shared by the nearstore
// client subcommands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/nearstore/internal/cli/output"
	"github.com/marmos91/nearstore/pkg/apiclient"
)

// DefaultServerURL is used when neither --server nor NEARSTORE_SERVER is set.
const DefaultServerURL = "http://localhost:8080"

// EnvServerURL overrides the default server URL.
const EnvServerURL = "NEARSTORE_SERVER"

// GlobalFlags are the persistent flags of the root command.
type GlobalFlags struct {
	ConfigFile string
	ServerURL  string
	Tenant     string
	Output     string
	Timeout    time.Duration
}

// Flags is populated by the root command before any subcommand runs.
var Flags = &GlobalFlags{}

// ServerURL resolves the API base URL.
func ServerURL() string {
	if Flags.ServerURL != "" {
		return Flags.ServerURL
	}
	if env := os.Getenv(EnvServerURL); env != "" {
		return env
	}
	return DefaultServerURL
}

// GetClient returns an API client for the resolved server.
func GetClient() *apiclient.Client {
	client := apiclient.New(ServerURL())
	if Flags.Timeout > 0 {
		client = client.WithTimeout(Flags.Timeout)
	}
	return client
}

// RequireTenant returns the --tenant flag or an error when it is unset.
func RequireTenant() (string, error) {
	if Flags.Tenant == "" {
		return "", fmt.Errorf("--tenant is required")
	}
	return Flags.Tenant, nil
}

// Context returns the context client calls run under.
func Context() (context.Context, context.CancelFunc) {
	timeout := Flags.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// GetOutputFormat parses the --output flag.
func GetOutputFormat() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the selected format. In table format an empty
// result prints emptyMsg instead of an empty table.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	format, err := GetOutputFormat()
	if err != nil {
		return err
	}

	printer := output.NewPrinter(w, format)
	if format != output.FormatTable {
		return printer.Print(data)
	}
	if isEmpty {
		printer.Printf("%s\n", emptyMsg)
		return nil
	}
	return printer.Print(table)
}

// PrintDetails prints data as JSON or YAML, or pairs in table format.
func PrintDetails(w io.Writer, data any, pairs output.KeyValues) error {
	format, err := GetOutputFormat()
	if err != nil {
		return err
	}

	if format == output.FormatTable {
		return output.PrintKeyValues(w, pairs)
	}
	return output.NewPrinter(w, format).Print(data)
}

// EmptyOr returns fallback when s is empty.
func EmptyOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
