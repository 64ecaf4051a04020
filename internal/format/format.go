package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
)

const sqlEchoMaxChars = 500

// Render converts payload into the MCP text content block for opts.Format.
func Render(payload OutputPayload, opts Options) (string, error) {
	if !payload.Success {
		return RenderError(payload.ErrorCode, payload.Error, payload.Metadata.SQLStatement, opts), nil
	}
	if opts.Format == config.FormatMarkdown {
		return renderMarkdown(payload, opts), nil
	}
	return renderJSON(payload)
}

func renderJSON(payload OutputPayload) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal output payload: %w", err)
	}
	return string(data), nil
}

// RenderError builds the dedicated error markdown block spec.md §4.10
// requires regardless of the tool's normal response format.
func RenderError(code, message, sql string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s — Error\n\n", opts.ToolName)
	if code != "" {
		fmt.Fprintf(&b, "**Error code:** `%s`\n\n", code)
	}
	fmt.Fprintf(&b, "**Message:** %s\n\n", message)
	if sql != "" {
		fmt.Fprintf(&b, "**SQL:** `%s`\n", truncateSQL(sql))
	}
	return b.String()
}

func renderMarkdown(payload OutputPayload, opts Options) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s\n\n", opts.ToolName)
	b.WriteString("**Status:** success\n\n")

	if payload.Metadata.SQLStatement != "" {
		fmt.Fprintf(&b, "**SQL:** `%s`\n\n", truncateSQL(payload.Metadata.SQLStatement))
	}

	if len(payload.Metadata.Parameters) > 0 {
		b.WriteString("**Parameters:**\n\n")
		for k, v := range payload.Metadata.Parameters {
			fmt.Fprintf(&b, "- `%s` = %v\n", k, v)
		}
		b.WriteString("\n")
	}

	if len(payload.Data) == 0 {
		b.WriteString("_No rows returned._\n")
		return b.String()
	}

	maxRows := opts.MaxDisplayRows
	if maxRows <= 0 {
		maxRows = 1000
	}

	table, columns, nullCounts, shown, total := buildTable(payload.Data, payload.Metadata.Columns, opts)
	b.WriteString(table)

	if total > shown {
		fmt.Fprintf(&b, "\n_Showing %d of %d rows. %d omitted._\n", shown, total, total-shown)
	} else if total == 1 {
		b.WriteString("\n_1 row returned._\n")
	} else {
		fmt.Fprintf(&b, "\n_%d rows returned._\n", total)
	}
	if summary := nullSummary(columns, nullCounts); summary != "" {
		b.WriteString("\n" + summary + "\n")
	}

	return b.String()
}

func truncateSQL(sql string) string {
	if len(sql) <= sqlEchoMaxChars {
		return sql
	}
	return sql[:sqlEchoMaxChars] + "…"
}

func nullSummary(columns []string, counts map[string]int) string {
	var parts []string
	for _, col := range columns {
		if n := counts[col]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", col, n))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "_Null values — " + strings.Join(parts, ", ") + "_"
}
