// Package config holds the declarative data model for sources, tools, and
// toolsets (C5's "Config" entity), the multi-file loader/merger that
// builds it, and the ambient server settings read from flags/env vars.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so it marshals to/from YAML and JSON as a
// human string ("30s", "5m") instead of a raw nanosecond integer.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParameterType is the closed set of logical types a ParameterSpec may
// declare. Keeping this a small string enum (rather than reaching for a
// generic JSON-schema library) gives the tagged variant closed semantics,
// per spec.md §9's redesign note on runtime reflection / dynamic schema
// objects.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeInteger ParameterType = "integer"
	TypeFloat   ParameterType = "float"
	TypeBoolean ParameterType = "boolean"
	TypeArray   ParameterType = "array"
)

// ParameterSpec describes one SQL statement parameter.
type ParameterSpec struct {
	Name        string        `yaml:"name" json:"name"`
	Type        ParameterType `yaml:"type" json:"type"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Default     interface{}   `yaml:"default,omitempty" json:"default,omitempty"`
	Required    bool          `yaml:"required" json:"required"`
	ItemType    ParameterType `yaml:"itemType,omitempty" json:"itemType,omitempty"`
	Min         *float64      `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *float64      `yaml:"max,omitempty" json:"max,omitempty"`
	MinLength   *int          `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength   *int          `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	Pattern     string        `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Enum        []interface{} `yaml:"enum,omitempty" json:"enum,omitempty"`
}

// IsOptional reports whether the parameter may be omitted from a call's
// arguments. A default value satisfies requiredness even when Required is
// left false, per spec.md §3.
func (p ParameterSpec) IsOptional() bool {
	return !p.Required && p.Default == nil
}

// EffectivelyRequired is the negation of IsOptional, kept as a named
// accessor because call sites read better asking "is it required" than
// negating "is it optional".
func (p ParameterSpec) EffectivelyRequired() bool {
	return !p.IsOptional()
}

// SecurityOverride lets a ToolSpec tighten or relax the SQL validator's
// defaults. A nil override means "use the validator's own defaults".
type SecurityOverride struct {
	ReadOnly               *bool    `yaml:"readOnly,omitempty" json:"readOnly,omitempty"`
	MaxQueryLength         *int     `yaml:"maxQueryLength,omitempty" json:"maxQueryLength,omitempty"`
	ExtraForbiddenKeywords []string `yaml:"extraForbiddenKeywords,omitempty" json:"extraForbiddenKeywords,omitempty"`
}

// ToolAnnotationsSpec is the user-authored annotations block. Toolsets is
// parsed but deliberately never consulted: toolset membership is always
// computed from the Toolsets section of Config, per spec.md §4.6 and
// Testable Property 5. It is kept here only so that YAML containing it
// doesn't fail to parse; C6 discards it explicitly.
type ToolAnnotationsSpec struct {
	Title        string                 `yaml:"title,omitempty" json:"title,omitempty"`
	Domain       string                 `yaml:"domain,omitempty" json:"domain,omitempty"`
	Category     string                 `yaml:"category,omitempty" json:"category,omitempty"`
	ReadOnlyHint *bool                  `yaml:"readOnlyHint,omitempty" json:"readOnlyHint,omitempty"`
	Toolsets     []string               `yaml:"toolsets,omitempty" json:"-"`
	Metadata     map[string]interface{} `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ResponseFormat selects how C10 renders a tool's result.
type ResponseFormat string

const (
	FormatJSON     ResponseFormat = "json"
	FormatMarkdown ResponseFormat = "markdown"
)

// TableStyle selects the markdown formatter's border set.
type TableStyle string

const (
	StyleMarkdown TableStyle = "markdown"
	StyleASCII    TableStyle = "ascii"
	StyleGrid     TableStyle = "grid"
	StyleCompact  TableStyle = "compact"
)

// ToolSpec is one named SQL operation.
type ToolSpec struct {
	Name           string                 `yaml:"name" json:"name"`
	Enabled        bool                   `yaml:"enabled" json:"enabled"`
	Source         string                 `yaml:"source" json:"source"`
	Description    string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Domain         string                 `yaml:"domain,omitempty" json:"domain,omitempty"`
	Category       string                 `yaml:"category,omitempty" json:"category,omitempty"`
	Statement      string                 `yaml:"statement" json:"statement"`
	Parameters     []ParameterSpec        `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Security       *SecurityOverride      `yaml:"security,omitempty" json:"security,omitempty"`
	ResponseFormat ResponseFormat         `yaml:"responseFormat,omitempty" json:"responseFormat,omitempty"`
	TableStyle     TableStyle             `yaml:"tableStyle,omitempty" json:"tableStyle,omitempty"`
	MaxDisplayRows int                    `yaml:"maxDisplayRows,omitempty" json:"maxDisplayRows,omitempty"`
	Metadata       map[string]interface{} `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Annotations    ToolAnnotationsSpec    `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// ToolsetSpec groups tools under a name for discovery and registration
// filtering.
type ToolsetSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Title       string   `yaml:"title,omitempty" json:"title,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tools       []string `yaml:"tools" json:"tools"`
}

// SourceSpec is a named database-gateway connection descriptor.
type SourceSpec struct {
	Name                string `yaml:"name" json:"name"`
	Host                string `yaml:"host" json:"host"`
	User                string `yaml:"user" json:"user"`
	Password            string `yaml:"password" json:"-"`
	Port                int    `yaml:"port,omitempty" json:"port,omitempty"`
	IgnoreUnauthorized  bool   `yaml:"ignoreUnauthorized,omitempty" json:"ignoreUnauthorized,omitempty"`
}

// DefaultGatewayPort is the default WebSocket/JSON database gateway port
// (spec.md §6).
const DefaultGatewayPort = 8076

// EffectivePort returns Port if set, otherwise DefaultGatewayPort.
func (s SourceSpec) EffectivePort() int {
	if s.Port > 0 {
		return s.Port
	}
	return DefaultGatewayPort
}

// Config is the merged root of sources, tools, and toolsets (spec.md §3's
// "Config" entity). It is immutable once built: the loader constructs a
// value, the registry (C6) consumes it, and hot reload (C11) builds and
// swaps a whole new one rather than mutating this one in place.
type Config struct {
	Sources  map[string]SourceSpec  `yaml:"-" json:"sources"`
	Tools    map[string]ToolSpec    `yaml:"-" json:"tools"`
	Toolsets map[string]ToolsetSpec `yaml:"-" json:"toolsets"`
}

// NewEmptyConfig returns a Config with initialized, empty maps.
func NewEmptyConfig() *Config {
	return &Config{
		Sources:  make(map[string]SourceSpec),
		Tools:    make(map[string]ToolSpec),
		Toolsets: make(map[string]ToolsetSpec),
	}
}

// rawDocument is the on-disk YAML shape for one config file. Any of the
// three top-level keys may be omitted.
type rawDocument struct {
	Sources  []SourceSpec  `yaml:"sources"`
	Tools    []ToolSpec    `yaml:"tools"`
	Toolsets []ToolsetSpec `yaml:"toolsets"`
}
