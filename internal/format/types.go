// Package format renders a bound-and-executed query's result into the two
// response shapes MCP content blocks support: pretty JSON, or a typed
// Markdown table. Grounded on the teacher's internal/truncate package (a
// dedicated truncation-helper package exists in the teacher, generalized
// here from text-blob truncation to row-count truncation with the same
// "never silently reorder" guarantee).
package format

import "github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"

// ColumnMeta describes one result column for rendering purposes.
type ColumnMeta struct {
	Name string
	Type string
}

// Metadata is the OutputPayload.metadata shape from spec.md §4.6 step 2.
type Metadata struct {
	ExecutionTimeMS     int64        `json:"executionTime"`
	RowCount            int          `json:"rowCount"`
	AffectedRows        int64        `json:"affectedRows"`
	Columns             []ColumnMeta `json:"columns,omitempty"`
	ParameterMode       string       `json:"parameterMode"`
	ParameterCount      int          `json:"parameterCount"`
	ProcessedParameters []string     `json:"processedParameters"`
	ToolName            string       `json:"toolName"`
	SQLStatement        string       `json:"sqlStatement"`
	Parameters          map[string]interface{} `json:"parameters,omitempty"`
}

// OutputPayload is C6's fixed output schema (spec.md §4.6 step 2).
type OutputPayload struct {
	Success   bool                     `json:"success"`
	Data      []map[string]interface{} `json:"data,omitempty"`
	Metadata  Metadata                 `json:"metadata"`
	Error     string                   `json:"error,omitempty"`
	ErrorCode string                   `json:"errorCode,omitempty"`
}

// Options configures a single render call.
type Options struct {
	ToolName       string
	Format         config.ResponseFormat
	TableStyle     config.TableStyle
	MaxDisplayRows int
	NullPlaceholder string
}

// DefaultOptions fills in spec.md's documented defaults.
func DefaultOptions(toolName string) Options {
	return Options{
		ToolName:        toolName,
		Format:          config.FormatJSON,
		TableStyle:      config.StyleMarkdown,
		MaxDisplayRows:  1000,
		NullPlaceholder: "-",
	}
}
