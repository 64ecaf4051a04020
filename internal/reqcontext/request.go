package reqcontext

import "context"

// requestCtxKey is the context key under which a *RequestContext is stored.
const requestCtxKey ContextKey = "request_context"

// RequestContext is the per-request immutable struct that flows through
// every layer of the pipeline for logging and tracing. It carries a
// request id, the operation being performed (e.g. "tool:system_status"),
// and, when the operation is a tool invocation, the tool name.
type RequestContext struct {
	RequestID string
	Operation string
	ToolName  string
	Source    RequestSource
}

// NewRequestContext builds a RequestContext and attaches it to ctx,
// generating a request id if one was not supplied by the transport.
func NewRequestContext(ctx context.Context, providedRequestID, operation, toolName string, source RequestSource) (context.Context, *RequestContext) {
	rc := &RequestContext{
		RequestID: GetOrGenerateRequestID(providedRequestID),
		Operation: operation,
		ToolName:  toolName,
		Source:    source,
	}
	ctx = context.WithValue(ctx, requestCtxKey, rc)
	ctx = WithRequestSource(ctx, source)
	return ctx, rc
}

// FromContext retrieves the RequestContext previously attached with
// NewRequestContext. The second return value is false if none was set.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(requestCtxKey).(*RequestContext)
	return rc, ok
}

// RequestIDFromContext is a convenience accessor used by components that
// only need the id for logging and don't want to deal with the ok-bool.
func RequestIDFromContext(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok {
		return rc.RequestID
	}
	return ""
}
