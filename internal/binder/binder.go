// Package binder turns the raw argument map an MCP tools/call request
// carries into a bound SQL statement and a positional value vector that C1
// (the gateway client) accepts, per spec.md §4.3. Validation reuses the same
// ParameterSpec bounds the registry (C6) used to synthesize the JSON schema,
// so a call that the schema would have rejected fails here for the same
// reason rather than reaching the gateway.
package binder

import (
	"strings"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
)

// Mode reports which placeholder style a bound statement used.
type Mode string

const (
	ModeNone      Mode = "none"
	ModeNamed     Mode = "named"
	ModePositional Mode = "positional"
	ModeMixed     Mode = "mixed"
)

// Result is C3's output shape: {boundSQL, positionalValues, parameterMetadata}.
type Result struct {
	BoundSQL            string
	PositionalValues    []interface{}
	Mode                Mode
	Count               int
	ProcessedParameters []string
}

// Bind validates args against params and rewrites statement's :name/?
// placeholders into a positional ? SQL string, per the five binding rules
// in spec.md §4.3.
func Bind(statement string, params []config.ParameterSpec, args map[string]interface{}) (*Result, error) {
	resolved, order, err := resolveArguments(params, args)
	if err != nil {
		return nil, err
	}

	w := &walker{
		resolved:  resolved,
		order:     order,
		positional: make([]interface{}, 0, len(order)),
	}
	sql, err := w.rewrite(statement)
	if err != nil {
		return nil, err
	}

	mode := ModeNone
	switch {
	case w.usedNamed && w.usedPositional:
		mode = ModeMixed
	case w.usedNamed:
		mode = ModeNamed
	case w.usedPositional:
		mode = ModePositional
	}

	return &Result{
		BoundSQL:            sql,
		PositionalValues:    w.positional,
		Mode:                mode,
		Count:                len(w.positional),
		ProcessedParameters: w.processed,
	}, nil
}

// resolveArguments validates every declared parameter against args (rule 1)
// and returns a name->value map plus the parameters in declared order (used
// by positional-? consumption, rule 4).
func resolveArguments(params []config.ParameterSpec, args map[string]interface{}) (map[string]interface{}, []config.ParameterSpec, error) {
	resolved := make(map[string]interface{}, len(params))

	for _, p := range params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Default == nil {
				if p.EffectivelyRequired() {
					return nil, nil, errs.Validation(p.Name, "missing required parameter %q", p.Name)
				}
				continue
			}
			raw = p.Default
		}

		field := "arguments." + p.Name
		if p.Type == config.TypeArray {
			items, ok := raw.([]interface{})
			if !ok {
				return nil, nil, errs.Validation(field, "parameter %q must be an array", p.Name)
			}
			if len(items) == 0 && p.MinLength != nil && *p.MinLength >= 1 {
				return nil, nil, errs.Validation(field, "parameter %q must not be empty", p.Name)
			}
			coerced := make([]interface{}, len(items))
			for i, item := range items {
				v, err := coerceScalar(p.Name, field, p.ItemType, item, p)
				if err != nil {
					return nil, nil, err
				}
				coerced[i] = v
			}
			resolved[p.Name] = coerced
			continue
		}

		v, err := coerceScalar(p.Name, field, p.Type, raw, p)
		if err != nil {
			return nil, nil, err
		}
		resolved[p.Name] = v
	}

	return resolved, params, nil
}

// walker rewrites a statement's placeholders in a single left-to-right pass,
// preserving string literals and comments verbatim (reusing the same
// tokenization discipline as internal/sqlsec and internal/config's
// placeholderNames scanner).
type walker struct {
	resolved   map[string]interface{}
	order      []config.ParameterSpec
	posCursor  int

	positional []interface{}
	processed  []string

	usedNamed      bool
	usedPositional bool
}

func (w *walker) rewrite(statement string) (string, error) {
	var out strings.Builder
	runes := []rune(statement)
	n := len(runes)
	i := 0

	for i < n {
		c := runes[i]

		switch {
		case c == '\'':
			j := i + 1
			for j < n {
				if runes[j] == '\'' {
					if j+1 < n && runes[j+1] == '\'' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			out.WriteString(string(runes[i:j]))
			i = j

		case c == '-' && i+1 < n && runes[i+1] == '-':
			j := i
			for j < n && runes[j] != '\n' {
				j++
			}
			out.WriteString(string(runes[i:j]))
			i = j

		case c == '/' && i+1 < n && runes[i+1] == '*':
			j := i + 2
			for j+1 < n && !(runes[j] == '*' && runes[j+1] == '/') {
				j++
			}
			end := j + 2
			if end > n {
				end = n
			}
			out.WriteString(string(runes[i:end]))
			i = end

		case c == ':' && i+1 < n && isIdentStart(runes[i+1]):
			j := i + 1
			for j < n && isIdentRune(runes[j]) {
				j++
			}
			name := string(runes[i+1 : j])
			if err := w.bindNamed(&out, name); err != nil {
				return "", err
			}
			i = j

		case c == '?':
			if err := w.bindPositional(&out); err != nil {
				return "", err
			}
			i++

		default:
			out.WriteRune(c)
			i++
		}
	}

	return out.String(), nil
}

// bindNamed implements rule 3 (scalar) and rule 2 (array expansion) for a
// :name reference.
func (w *walker) bindNamed(out *strings.Builder, name string) error {
	value, ok := w.resolved[name]
	if !ok {
		return errs.Validation("arguments."+name, "statement references undeclared or unbound parameter %q", name)
	}
	w.usedNamed = true
	w.processed = append(w.processed, name)

	if items, isArray := value.([]interface{}); isArray {
		if len(items) == 0 {
			out.WriteString("NULL")
			return nil
		}
		for idx, item := range items {
			if idx > 0 {
				out.WriteString(", ")
			}
			out.WriteString("?")
			w.positional = append(w.positional, item)
		}
		return nil
	}

	out.WriteString("?")
	w.positional = append(w.positional, value)
	return nil
}

// bindPositional implements rule 4/5: a bare ? consumes the next declared
// parameter in order, regardless of whether named placeholders already
// referenced some of them.
func (w *walker) bindPositional(out *strings.Builder) error {
	if w.posCursor >= len(w.order) {
		return errs.Validation("statement", "statement has more ? placeholders than declared parameters")
	}
	p := w.order[w.posCursor]
	w.posCursor++
	w.usedPositional = true
	w.processed = append(w.processed, p.Name)

	value, ok := w.resolved[p.Name]
	if !ok {
		return errs.Validation("arguments."+p.Name, "positional placeholder has no bound value for parameter %q", p.Name)
	}

	if items, isArray := value.([]interface{}); isArray {
		if len(items) == 0 {
			out.WriteString("NULL")
			return nil
		}
		for idx, item := range items {
			if idx > 0 {
				out.WriteString(", ")
			}
			out.WriteString("?")
			w.positional = append(w.positional, item)
		}
		return nil
	}

	out.WriteString("?")
	w.positional = append(w.positional, value)
	return nil
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentRune(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
