package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
)

// ValidationError mirrors the teacher's field+message struct implementing
// error, extended with the file it came from so C5's multi-file errors
// stay attributable.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	if v.File != "" {
		return fmt.Sprintf("%s: %s: %s", v.File, v.Field, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// validateParameterSpec enforces the ParameterSpec invariants from
// spec.md §3: itemType iff array, pattern only on string, enum forbidden
// on boolean.
func validateParameterSpec(toolName string, p ParameterSpec) []ValidationError {
	var errsOut []ValidationError
	prefix := fmt.Sprintf("tools.%s.parameters.%s", toolName, p.Name)

	if p.Name == "" {
		errsOut = append(errsOut, ValidationError{Field: prefix, Message: "parameter name is required"})
	}

	switch p.Type {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeArray:
	default:
		errsOut = append(errsOut, ValidationError{Field: prefix + ".type", Message: fmt.Sprintf("unknown parameter type %q", p.Type)})
	}

	hasItemType := p.ItemType != ""
	if p.Type == TypeArray && !hasItemType {
		errsOut = append(errsOut, ValidationError{Field: prefix + ".itemType", Message: "itemType is required when type=array"})
	}
	if p.Type != TypeArray && hasItemType {
		errsOut = append(errsOut, ValidationError{Field: prefix + ".itemType", Message: "itemType is only valid when type=array"})
	}

	if p.Pattern != "" {
		if p.Type != TypeString {
			errsOut = append(errsOut, ValidationError{Field: prefix + ".pattern", Message: "pattern is only valid on string parameters"})
		} else if _, err := regexp.Compile(p.Pattern); err != nil {
			errsOut = append(errsOut, ValidationError{Field: prefix + ".pattern", Message: fmt.Sprintf("invalid regex: %v", err)})
		}
	}

	if len(p.Enum) > 0 && p.Type == TypeBoolean {
		errsOut = append(errsOut, ValidationError{Field: prefix + ".enum", Message: "enum is forbidden on boolean parameters"})
	}

	return errsOut
}

// placeholderNames extracts every `:name` token from a SQL statement,
// ignoring string literals and comments, mirroring the conservative
// tokenization used by the SQL security validator (C2) so the two stay
// consistent about what counts as "inside a literal".
func placeholderNames(statement string) []string {
	var names []string
	runes := []rune(statement)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\'':
			i++
			for i < len(runes) && runes[i] != '\'' {
				i++
			}
		case '-':
			if i+1 < len(runes) && runes[i+1] == '-' {
				for i < len(runes) && runes[i] != '\n' {
					i++
				}
			}
		case '/':
			if i+1 < len(runes) && runes[i+1] == '*' {
				i += 2
				for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
					i++
				}
				i++
			}
		case ':':
			j := i + 1
			for j < len(runes) && (isIdentRune(runes[j])) {
				j++
			}
			if j > i+1 {
				names = append(names, string(runes[i+1:j]))
				i = j - 1
			}
		}
	}
	return names
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// validateToolSpec checks the ToolSpec-local invariants that don't need
// the merged Config (referential integrity is checked separately, after
// merge, since a tool's source may live in a different file).
func validateToolSpec(name string, t ToolSpec) []ValidationError {
	var out []ValidationError
	prefix := "tools." + name

	if t.Statement == "" {
		out = append(out, ValidationError{Field: prefix + ".statement", Message: "statement is required"})
	}
	if t.Source == "" {
		out = append(out, ValidationError{Field: prefix + ".source", Message: "source is required"})
	}

	if t.MaxDisplayRows != 0 && (t.MaxDisplayRows < 1 || t.MaxDisplayRows > 1000) {
		out = append(out, ValidationError{Field: prefix + ".maxDisplayRows", Message: "must be between 1 and 1000"})
	}

	switch t.ResponseFormat {
	case "", FormatJSON, FormatMarkdown:
	default:
		out = append(out, ValidationError{Field: prefix + ".responseFormat", Message: "must be json or markdown"})
	}

	declared := make(map[string]bool, len(t.Parameters))
	for _, p := range t.Parameters {
		declared[p.Name] = true
		out = append(out, validateParameterSpec(name, p)...)
	}

	for _, placeholder := range placeholderNames(t.Statement) {
		if !declared[placeholder] {
			out = append(out, ValidationError{
				Field:   prefix + ".statement",
				Message: fmt.Sprintf("placeholder :%s has no matching declared parameter", placeholder),
			})
		}
	}

	return out
}

// ValidateDetailed validates a single Config in isolation: ParameterSpec
// and ToolSpec invariants, but not cross-references that only make sense
// after merging (a tool's source may be declared in a sibling file).
func (c *Config) ValidateDetailed() []ValidationError {
	var out []ValidationError
	for name, t := range c.Tools {
		out = append(out, validateToolSpec(name, t)...)
	}
	for name, ts := range c.Toolsets {
		if len(ts.Tools) == 0 {
			out = append(out, ValidationError{Field: "toolsets." + name + ".tools", Message: "toolset must list at least one tool"})
		}
	}
	return out
}

// ValidateReferences checks referential integrity across the fully
// merged Config: every tool's source must exist, every toolset's tools
// must exist. This can only run after merge because sources/tools/
// toolsets may be declared across different files.
func (c *Config) ValidateReferences() []ValidationError {
	var out []ValidationError
	for name, t := range c.Tools {
		if _, ok := c.Sources[t.Source]; !ok {
			out = append(out, ValidationError{
				Field:   "tools." + name + ".source",
				Message: fmt.Sprintf("unknown source %q", t.Source),
			})
		}
	}
	for name, ts := range c.Toolsets {
		for _, toolName := range ts.Tools {
			if _, ok := c.Tools[toolName]; !ok {
				out = append(out, ValidationError{
					Field:   "toolsets." + name + ".tools",
					Message: fmt.Sprintf("unknown tool %q", toolName),
				})
			}
		}
	}
	if len(c.Sources) == 0 && len(c.Tools) == 0 && len(c.Toolsets) == 0 {
		out = append(out, ValidationError{Field: "config", Message: "at least one of sources, tools, or toolsets must be present"})
	}
	return out
}

// Validate runs ValidateDetailed then ValidateReferences and folds every
// failure into a single *errs.Error whose message joins all of them with
// "; ".
func (c *Config) Validate() error {
	all := c.ValidateDetailed()
	all = append(all, c.ValidateReferences()...)
	if len(all) == 0 {
		return nil
	}
	msgs := make([]string, len(all))
	for i, e := range all {
		msgs[i] = e.Error()
	}
	return errs.Configuration("%s", strings.Join(msgs, "; "))
}
