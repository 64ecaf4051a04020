package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
)

// sessionTokenKey is the context key the HTTP auth middleware stashes a
// validated bearer token under, read back by the ibmi-mode source
// resolver. A plain unexported string type avoids collisions with
// reqcontext's own keys.
type ctxKey string

const sessionTokenKey ctxKey = "db2i_session_token"

func withSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey, token)
}

func sessionTokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(sessionTokenKey).(string)
	return tok, ok && tok != ""
}

// bearerPrefix is the scheme prefix spec.md §4.9 step 1 / S7 require: an
// ibmi-mode caller presents its handshake-issued opaque token the same way
// AuthMode=jwt presents its own bearer token, because MCP_AUTH_MODE selects
// exactly one mode at a time — the two never share a transport, so there is
// no collision to avoid by using a distinct header.
const bearerPrefix = "Bearer "

// bearerTokenFromHeader extracts the token from an "Authorization: Bearer
// <token>" header, or "" if the header is absent or doesn't use that scheme.
func bearerTokenFromHeader(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix))
}

// withSessionTokenHeader lifts the Authorization bearer token into the
// request context so the ibmi-mode SourceResolver can resolve it without
// this package's HTTP layer depending on the MCP request shape.
func withSessionTokenHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := bearerTokenFromHeader(r); tok != "" {
			r = r.WithContext(withSessionToken(r.Context(), tok))
		}
		next.ServeHTTP(w, r)
	})
}

// buildSourceResolver returns the registry.SourceResolver appropriate to
// the configured auth mode, per spec.md §3's "Identity is the pool key":
// static mode always resolves to the process-level source; ibmi mode
// resolves the caller's own per-token pool, established earlier by the
// handshake (C7) and never falling back to a shared source.
func (s *Server) buildSourceResolver(cfg *config.Config) func(ctx context.Context, sourceName string) (string, config.SourceSpec, error) {
	if s.settings.AuthMode != config.AuthIBMi {
		return func(_ context.Context, sourceName string) (string, config.SourceSpec, error) {
			source, ok := cfg.Sources[sourceName]
			if !ok {
				return "", config.SourceSpec{}, errs.Configuration("unknown source %q", sourceName)
			}
			return "static:" + sourceName, source, nil
		}
	}

	return func(ctx context.Context, sourceName string) (string, config.SourceSpec, error) {
		token, ok := sessionTokenFromContext(ctx)
		if !ok {
			return "", config.SourceSpec{}, errs.Authentication("no authenticated session for this request")
		}
		rec, ok := s.sessions.Get(token)
		if !ok {
			return "", config.SourceSpec{}, errs.Authentication("session token is invalid or expired")
		}
		// The pool behind rec.PoolKey was already opened during the
		// handshake; the source value here is only consulted if Ensure
		// ever needs to (re)open it, which requires fresh credentials it
		// does not have, so a cold pool surfaces as a DatabaseError rather
		// than silently falling back to another identity.
		return rec.PoolKey, cfg.Sources[sourceName], nil
	}
}
