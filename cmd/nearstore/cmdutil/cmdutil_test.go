package cmdutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nearstore/internal/cli/output"
)

type rows [][]string

func (r rows) Headers() []string { return []string{"NAME", "VALUE"} }
func (r rows) Rows() [][]string  { return r }

func withFlags(t *testing.T, f GlobalFlags) {
	t.Helper()
	saved := *Flags
	*Flags = f
	t.Cleanup(func() { *Flags = saved })
}

func TestServerURL(t *testing.T) {
	withFlags(t, GlobalFlags{})
	t.Setenv(EnvServerURL, "")
	assert.Equal(t, DefaultServerURL, ServerURL())

	t.Setenv(EnvServerURL, "http://env:1")
	assert.Equal(t, "http://env:1", ServerURL())

	Flags.ServerURL = "http://flag:2"
	assert.Equal(t, "http://flag:2", ServerURL())
}

func TestRequireTenant(t *testing.T) {
	withFlags(t, GlobalFlags{})
	_, err := RequireTenant()
	assert.Error(t, err)

	Flags.Tenant = "acme"
	tenant, err := RequireTenant()
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant)
}

func TestPrintOutput(t *testing.T) {
	data := rows{{"a", "1"}}

	withFlags(t, GlobalFlags{Output: "table"})
	var buf bytes.Buffer
	require.NoError(t, PrintOutput(&buf, data, false, "nothing", data))
	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "a")

	buf.Reset()
	require.NoError(t, PrintOutput(&buf, rows{}, true, "nothing", rows{}))
	assert.Equal(t, "nothing\n", buf.String())

	Flags.Output = "json"
	buf.Reset()
	require.NoError(t, PrintOutput(&buf, map[string]int{"n": 1}, false, "nothing", data))
	assert.JSONEq(t, `{"n":1}`, buf.String())

	Flags.Output = "xml"
	assert.Error(t, PrintOutput(&buf, data, false, "", data))
}

func TestPrintDetails(t *testing.T) {
	var pairs output.KeyValues
	pairs.Add("Removed", "3")

	withFlags(t, GlobalFlags{Output: "table"})
	var buf bytes.Buffer
	require.NoError(t, PrintDetails(&buf, map[string]int{"removed": 3}, pairs))
	assert.Contains(t, buf.String(), "Removed")

	Flags.Output = "yaml"
	buf.Reset()
	require.NoError(t, PrintDetails(&buf, map[string]int{"removed": 3}, pairs))
	assert.Equal(t, "removed: 3\n", buf.String())
}

func TestEmptyOr(t *testing.T) {
	assert.Equal(t, "-", EmptyOr("", "-"))
	assert.Equal(t, "x", EmptyOr("x", "-"))
}
