package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type groupsTable [][]string

func (g groupsTable) Headers() []string { return []string{"group", "status"} }
func (g groupsTable) Rows() [][]string  { return g }

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "TABLE": FormatTable, " json ": FormatJSON, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	assert.ErrorContains(t, err, "invalid output format")
}

func TestPrinterFormats(t *testing.T) {
	data := groupsTable{{"g1", "pending"}, {"g2", "done"}}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable).Print(data))
	out := buf.String()
	assert.Contains(t, out, "GROUP")
	assert.Contains(t, out, "g2")
	assert.Contains(t, out, "done")

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatJSON).Print(map[string]int{"removed": 3}))
	assert.JSONEq(t, `{"removed":3}`, buf.String())

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatYAML).Print(map[string]int{"removed": 3}))
	assert.Equal(t, "removed: 3\n", buf.String())

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatTable).Print(map[string]int{"removed": 3}))
	assert.JSONEq(t, `{"removed":3}`, buf.String())
}

func TestPrintKeyValues(t *testing.T) {
	var kv KeyValues
	kv.Add("Name", "cache-acme")
	kv.Add("Files", "12")

	var buf bytes.Buffer
	require.NoError(t, PrintKeyValues(&buf, kv))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Name")
	assert.Contains(t, lines[0], "cache-acme")
	assert.Contains(t, lines[1], "12")
}
