package format

import (
	"strings"
	"testing"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() OutputPayload {
	return OutputPayload{
		Success: true,
		Data: []map[string]interface{}{
			{"X": 1},
		},
		Metadata: Metadata{
			RowCount:     1,
			ToolName:     "system_status",
			SQLStatement: "SELECT 1 AS X FROM SYSIBM.SYSDUMMY1",
			Columns:      []ColumnMeta{{Name: "X", Type: "INTEGER"}},
		},
	}
}

func TestRenderMarkdownBasicSelect(t *testing.T) {
	opts := DefaultOptions("system_status")
	opts.Format = config.FormatMarkdown

	out, err := Render(samplePayload(), opts)
	require.NoError(t, err)

	assert.Contains(t, out, "## system_status")
	assert.Contains(t, out, "1 row")
	assert.Contains(t, out, "X (INTEGER)")
}

func TestRenderJSONRoundTrips(t *testing.T) {
	opts := DefaultOptions("system_status")
	opts.Format = config.FormatJSON

	out, err := Render(samplePayload(), opts)
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)
}

func TestRenderEmptyResult(t *testing.T) {
	payload := samplePayload()
	payload.Data = nil
	opts := DefaultOptions("system_status")
	opts.Format = config.FormatMarkdown

	out, err := Render(payload, opts)
	require.NoError(t, err)
	assert.Contains(t, out, "No rows returned")
}

func TestRenderErrorBlock(t *testing.T) {
	payload := OutputPayload{
		Success:   false,
		Error:     "restricted keyword \"DROP\" is not permitted",
		ErrorCode: "ValidationError",
		Metadata:  Metadata{SQLStatement: "DROP TABLE users"},
	}
	opts := DefaultOptions("free_execute")
	opts.Format = config.FormatMarkdown

	out, err := Render(payload, opts)
	require.NoError(t, err)
	assert.Contains(t, out, "Error")
	assert.Contains(t, out, "restricted keyword")
}

func TestTruncationMonotonicity(t *testing.T) {
	rows := make([]map[string]interface{}, 10)
	for i := range rows {
		rows[i] = map[string]interface{}{"N": i}
	}
	meta := []ColumnMeta{{Name: "N", Type: "INTEGER"}}

	smallOpts := Options{ToolName: "t", Format: config.FormatMarkdown, TableStyle: config.StyleMarkdown, MaxDisplayRows: 3, NullPlaceholder: "-"}
	bigOpts := smallOpts
	bigOpts.MaxDisplayRows = 7

	smallTable, _, _, smallShown, _ := buildTable(rows, meta, smallOpts)
	bigTable, _, _, bigShown, _ := buildTable(rows, meta, bigOpts)

	require.Equal(t, 3, smallShown)
	require.Equal(t, 7, bigShown)

	smallLines := strings.Split(strings.TrimRight(smallTable, "\n"), "\n")
	bigLines := strings.Split(strings.TrimRight(bigTable, "\n"), "\n")
	for i := range smallLines {
		assert.Equal(t, smallLines[i], bigLines[i])
	}
}

func TestNullTracking(t *testing.T) {
	rows := []map[string]interface{}{
		{"A": "x", "B": nil},
		{"A": nil, "B": "y"},
	}
	meta := []ColumnMeta{{Name: "A", Type: "VARCHAR(50)"}, {Name: "B", Type: "VARCHAR(50)"}}
	_, columns, nullCounts, _, _ := buildTable(rows, meta, Options{MaxDisplayRows: 10, NullPlaceholder: "-"})
	assert.ElementsMatch(t, []string{"A", "B"}, columns)
	assert.Equal(t, 1, nullCounts["A"])
	assert.Equal(t, 1, nullCounts["B"])
}

func TestNumericAlignment(t *testing.T) {
	assert.True(t, isNumericFamily("DECIMAL(10,2)"))
	assert.True(t, isNumericFamily("integer"))
	assert.False(t, isNumericFamily("VARCHAR(50)"))
	assert.False(t, isNumericFamily("TIMESTAMP"))
}
