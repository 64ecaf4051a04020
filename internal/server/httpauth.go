package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/handshake"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/sessions"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// buildHTTPMux assembles the streamable-HTTP transport's full surface: the
// MCP endpoint itself, the ibmi-mode credential handshake (C7/C8), and the
// ambient metrics/health endpoints. Grounded on the teacher's
// internal/httpapi router construction (chi.NewRouter, middleware.Logger/
// Recoverer, then mounting sub-routers per concern) — trimmed to the one
// concern this server actually has beyond the MCP endpoint itself.
func (s *Server) buildHTTPMux() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	var mcpHandler http.Handler = mcpserver.NewStreamableHTTPServer(s.mcp)
	switch s.settings.AuthMode {
	case config.AuthJWT:
		if s.settings.JWTSecret != "" {
			mcpHandler = requireJWT(s.settings.JWTSecret, mcpHandler)
		}
	case config.AuthIBMi:
		mcpHandler = withSessionTokenHeader(mcpHandler)
	}
	r.Handle("/mcp", mcpHandler)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.promReg)

	if s.settings.AuthMode == config.AuthIBMi {
		r.Route("/api/v1/auth", func(r chi.Router) {
			r.Get("/public-key", s.handlePublicKey)
			r.Post("/", s.handleHandshake)
			r.Delete("/", s.handleLogout)
		})
	}

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	active := s.keys.Active()
	if active == nil {
		writeError(w, http.StatusServiceUnavailable, errs.Initialization("no handshake key configured"))
		return
	}
	pem, err := active.PublicKeyPEM()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"keyId":     active.KeyID,
		"publicKey": pem,
	})
}

// handleHandshake implements spec.md §4.7's POST /api/v1/auth: decrypt the
// hybrid-encrypted credential payload, open a pool under a fresh identity
// key, issue an opaque bearer token, and record the session.
func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	if !s.settings.IBMiAuthAllowHTTP && r.TLS == nil {
		writeError(w, http.StatusForbidden, errs.Authentication("credential handshake requires TLS unless IBMI_AUTH_ALLOW_HTTP is set"))
		return
	}

	var req handshake.HandshakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errs.Validation("body", "malformed handshake request: %v", err))
		return
	}

	creds, err := handshake.Decrypt(s.keys, req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if creds.Host == "" {
		creds.Host = s.settings.DB2iHost
	}
	if creds.Port == 0 {
		creds.Port = s.settings.DB2iPort
	}

	identity := uuid.NewString()
	poolKey := "ibmi:" + identity

	openPool := func(ctx context.Context, c handshake.Credentials) (string, error) {
		_, err := s.pools.Ensure(ctx, poolKey, config.SourceSpec{
			Name:               identity,
			Host:               c.Host,
			User:               c.User,
			Password:           c.Password,
			Port:               c.Port,
			IgnoreUnauthorized: s.settings.DB2iIgnoreUnauthorized,
		})
		return poolKey, err
	}

	resolvedKey, err := handshake.Authenticate(r.Context(), *creds, openPool)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	token, err := handshake.GenerateOpaqueToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	expiry := time.Duration(s.settings.IBMiAuthTokenExpirySecs) * time.Second
	if expiry <= 0 {
		expiry = time.Hour
	}
	issued := time.Now()
	rec := &sessions.Record{
		Token:     token,
		Identity:  identity,
		PoolKey:   resolvedKey,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(expiry),
	}
	if err := s.sessions.Put(rec); err != nil {
		s.closeSessionPool(r.Context(), resolvedKey)
		writeError(w, http.StatusTooManyRequests, err)
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.Count()))

	// §4.7 step 6 / §6 / S7: 201 Created, {access_token, token_type, expires_in}.
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(expiry.Seconds()),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerTokenFromHeader(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, errs.Validation("authorization", "missing Authorization: Bearer header"))
		return
	}
	s.sessions.Delete(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error":     err.Error(),
		"errorCode": string(errs.KindOf(err)),
	})
}

