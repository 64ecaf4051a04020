// Package registry builds the stable name->ToolDescriptor map (C6) from a
// validated config.Config: input/output schema material, resolved
// annotations (with toolset membership computed solely from config, per
// spec.md §4.6 and Testable Property 5), the chosen response formatter, and
// the handler closure that runs C3 (binder) -> C2 (sqlsec, inside the pool
// manager) -> C4 (pool) -> projects the result into format.OutputPayload.
//
// Grounded on the teacher's internal/server/mcp.go tool-registration pattern
// (mcp.NewTool(name, mcp.WithDescription(...), mcp.WithString(...), ...)
// then server.AddTool(tool, handler)), generalized from a fixed set of
// built-in tools to one mcp.Tool per configured ToolSpec. The atomic
// hot-swap of the whole descriptor map follows the teacher's SessionStore
// sync.RWMutex-guarded map-replace idiom.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/binder"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/format"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/pool"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/sqlsec"
	"go.uber.org/zap"
)

// Annotations is a tool's resolved annotation set, per spec.md §4.6 step 3.
type Annotations struct {
	Title          string
	Domain         string
	Category       string
	ReadOnlyHint   bool
	Toolsets       []string
	CustomMetadata map[string]interface{}
}

// HandlerResult is what a descriptor's Handler returns before formatting:
// the raw payload plus the dispatcher-facing bits needed to pick a
// formatter (the ToolSpec carries its own Format/TableStyle/MaxDisplayRows,
// already folded into Descriptor.FormatOptions).
type HandlerResult = format.OutputPayload

// Descriptor is one runtime ToolDescriptor: synthesized schema material,
// resolved annotations, and a handler closure bound to this tool's SQL
// statement, parameters, security policy, and source.
type Descriptor struct {
	Name          string
	Description   string
	Parameters    []config.ParameterSpec
	Annotations   Annotations
	FormatOptions format.Options
	Handler       func(ctx context.Context, args map[string]interface{}) (HandlerResult, error)
}

// Registry is the stable, atomically-swappable name->Descriptor map.
type Registry struct {
	descriptors map[string]*Descriptor
	order       []string
}

// Get looks up a tool descriptor by name. The returned pointer remains
// valid even after the Registry that produced it is replaced by a reload,
// per spec.md §3's ToolDescriptor lifecycle ("old descriptors remain valid
// for in-flight requests until those complete") — callers must not look the
// tool up again mid-call through a newer Registry.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Names returns every registered tool name in a stable, sorted order.
func (r *Registry) Names() []string {
	return append([]string{}, r.order...)
}

// Len reports how many tools are registered.
func (r *Registry) Len() int { return len(r.descriptors) }

// Build constructs a Registry from cfg. resolveSource resolves the identity
// pool-key and config.SourceSpec a given tool's source should execute
// against (static mode: the process source; ibmi auth mode: the caller's
// per-token identity, threaded in by the dispatcher via context — Build
// itself is identity-agnostic and the closures re-resolve the source on
// every call through resolveSource).
func Build(cfg *config.Config, pools *pool.Manager, engine *sqlsec.Engine, resolveSource SourceResolver, allowedToolsets []string, logger *zap.Logger) (*Registry, error) {
	membership := toolsetMembership(cfg)
	allow := toolsetAllowSet(allowedToolsets)

	reg := &Registry{descriptors: make(map[string]*Descriptor, len(cfg.Tools))}

	names := make([]string, 0, len(cfg.Tools))
	for name := range cfg.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := cfg.Tools[name]
		if !spec.Enabled {
			continue
		}
		if len(allow) > 0 && !intersects(allow, membership[name]) {
			continue
		}

		if _, ok := cfg.Sources[spec.Source]; !ok {
			return nil, errs.Configuration("tool %q references unknown source %q", name, spec.Source)
		}

		desc, err := buildDescriptor(name, spec, membership[name], pools, engine, resolveSource, logger)
		if err != nil {
			return nil, err
		}
		reg.descriptors[name] = desc
		reg.order = append(reg.order, name)
	}

	sort.Strings(reg.order)
	return reg, nil
}

// SourceResolver resolves the config.SourceSpec and pool key a tool call
// should execute against, given the tool's declared source name and the
// request context's identity. Static mode and ibmi-token mode both
// implement this; it is the seam through which C4's identity keying (spec.md
// §3's "Identity is the pool key") reaches the registry's handler closures
// without the registry needing to know about token sessions.
type SourceResolver func(ctx context.Context, sourceName string) (poolKey string, source config.SourceSpec, err error)

func buildDescriptor(name string, spec config.ToolSpec, toolsets []string, pools *pool.Manager, engine *sqlsec.Engine, resolveSource SourceResolver, logger *zap.Logger) (*Descriptor, error) {
	policy := policyFor(spec)
	formatOpts := formatOptionsFor(name, spec)
	annotations := annotationsFor(spec, toolsets)

	handler := func(ctx context.Context, args map[string]interface{}) (HandlerResult, error) {
		start := time.Now()

		bound, err := binder.Bind(spec.Statement, spec.Parameters, args)
		if err != nil {
			return errorPayload(err), nil
		}

		poolKey, source, err := resolveSource(ctx, spec.Source)
		if err != nil {
			return errorPayload(err), nil
		}

		agg, err := pools.ExecuteQueryWithPagination(ctx, poolKey, source, bound.BoundSQL, bound.PositionalValues, 0, &policy)
		if err != nil {
			return errorPayload(err), nil
		}

		cols := make([]format.ColumnMeta, len(agg.Columns))
		for i, c := range agg.Columns {
			cols[i] = format.ColumnMeta{Name: c.Name, Type: c.Type}
		}

		payload := HandlerResult{
			Success: true,
			Data:    agg.Data,
			Metadata: format.Metadata{
				ExecutionTimeMS:     time.Since(start).Milliseconds(),
				RowCount:            len(agg.Data),
				AffectedRows:        agg.UpdateCount,
				Columns:             cols,
				ParameterMode:       string(bound.Mode),
				ParameterCount:      bound.Count,
				ProcessedParameters: bound.ProcessedParameters,
				ToolName:            name,
				SQLStatement:        bound.BoundSQL,
				Parameters:          args,
			},
		}
		if logger != nil {
			logger.Debug("tool call executed",
				zap.String("tool", name),
				zap.Int("rows", len(agg.Data)),
				zap.Bool("truncated", agg.Truncated))
		}
		return payload, nil
	}

	return &Descriptor{
		Name:          name,
		Description:   spec.Description,
		Parameters:    spec.Parameters,
		Annotations:   annotations,
		FormatOptions: formatOpts,
		Handler:       handler,
	}, nil
}

func errorPayload(err error) HandlerResult {
	kind := errs.KindOf(err)
	return HandlerResult{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: string(kind),
	}
}

// policyFor merges a ToolSpec's SecurityOverride onto sqlsec's defaults, per
// spec.md §4.2: overrides may only add forbidden keywords, never remove the
// default destructive set; a readOnly override or a positive maxQueryLength
// replaces the default outright, whether stricter or looser.
func policyFor(spec config.ToolSpec) sqlsec.Policy {
	p := sqlsec.DefaultPolicy()
	if spec.Security == nil {
		return p
	}
	if spec.Security.ReadOnly != nil {
		p.ReadOnly = *spec.Security.ReadOnly
	}
	if spec.Security.MaxQueryLength != nil && *spec.Security.MaxQueryLength > 0 {
		p.MaxQueryLength = *spec.Security.MaxQueryLength
	}
	p.ExtraForbidden = spec.Security.ExtraForbiddenKeywords
	return p
}

func formatOptionsFor(name string, spec config.ToolSpec) format.Options {
	opts := format.DefaultOptions(name)
	if spec.ResponseFormat != "" {
		opts.Format = spec.ResponseFormat
	}
	if spec.TableStyle != "" {
		opts.TableStyle = spec.TableStyle
	}
	if spec.MaxDisplayRows > 0 {
		opts.MaxDisplayRows = spec.MaxDisplayRows
	}
	return opts
}

// annotationsFor implements spec.md §4.6 step 3: start from user-provided
// annotations, discard any user-supplied toolsets field, then derive title/
// domain/category/readOnlyHint/toolsets/customMetadata.
func annotationsFor(spec config.ToolSpec, toolsets []string) Annotations {
	a := spec.Annotations

	title := a.Title
	if title == "" {
		title = titleCase(spec.Name)
	}

	readOnly := true
	if a.ReadOnlyHint != nil {
		readOnly = *a.ReadOnlyHint
	} else if spec.Security != nil && spec.Security.ReadOnly != nil {
		readOnly = *spec.Security.ReadOnly
	}

	merged := make(map[string]interface{}, len(a.Metadata)+len(spec.Metadata))
	for k, v := range a.Metadata {
		merged[k] = v
	}
	for k, v := range spec.Metadata {
		merged[k] = v
	}

	sortedToolsets := append([]string{}, toolsets...)
	sort.Strings(sortedToolsets)

	return Annotations{
		Title:          title,
		Domain:         spec.Domain,
		Category:       spec.Category,
		ReadOnlyHint:   readOnly,
		Toolsets:       sortedToolsets,
		CustomMetadata: merged,
	}
}

func titleCase(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// toolsetMembership computes, for every tool name, the set of toolset names
// that list it — the sole source of truth for annotation.toolsets, per
// spec.md Testable Property 5.
func toolsetMembership(cfg *config.Config) map[string][]string {
	out := make(map[string][]string)
	for tsName, ts := range cfg.Toolsets {
		for _, toolName := range ts.Tools {
			out[toolName] = append(out[toolName], tsName)
		}
	}
	return out
}

func toolsetAllowSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func intersects(allow map[string]struct{}, toolsets []string) bool {
	for _, ts := range toolsets {
		if _, ok := allow[ts]; ok {
			return true
		}
	}
	return false
}

// EnumDescriptionSuffix renders the "Must be one of: …" clause appended to a
// parameter's schema description when it declares an enum, per spec.md
// §4.6 step 1.
func EnumDescriptionSuffix(enum []interface{}) string {
	if len(enum) == 0 {
		return ""
	}
	parts := make([]string, len(enum))
	for i, v := range enum {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return " Must be one of: " + strings.Join(parts, ", ") + "."
}
