// Package server implements C9: the request dispatcher that exposes the
// active tool registry over MCP (stdio or streamable HTTP), plus the
// sibling HTTP auth surface (C7/C8) the ibmi auth mode needs. Grounded on
// the teacher's internal/server/server.go Server struct (holds the
// mcp-go *server.MCPServer, the transport config, and every subsystem it
// wires together) and mcp.go's tool-registration loop, trimmed from a
// multi-upstream proxy down to a single local tool registry and
// generalized from a fixed tool set to one built from C6.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/gwclient"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/handshake"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/metrics"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/pool"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/registry"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/reload"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/sessions"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/sqlsec"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/tlslocal"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const serverName = "db2i-mcp-gateway"

// Version is overridden at build time via -ldflags.
var Version = "dev"

// Server owns the wired-together runtime: the gateway client, pool
// manager, active registry (behind the reload watcher), session store,
// handshake keystore, metrics, and the mcp-go server instance built from
// all of it.
type Server struct {
	settings *config.Settings

	gwClient *gwclient.Client
	pools    *pool.Manager
	sqlsec   *sqlsec.Engine
	sessions *sessions.Store
	keys     *handshake.KeyStore
	watcher  *reload.Watcher
	metrics  *metrics.Registry
	promReg  interface{ ServeHTTP(http.ResponseWriter, *http.Request) }
	resolver registry.SourceResolver
	cfg      *config.Config

	mcp *mcpserver.MCPServer

	logger *zap.Logger
}

// Options bundles everything New needs beyond the already-loaded Settings
// and Config, separated out so test code can build a Server without a real
// gateway dial.
type Options struct {
	Settings *config.Settings
	Config   *config.Config
	ToolsPath []string

	GatewayClient *gwclient.Client
	Keys          *handshake.KeyStore
	Logger        *zap.Logger
}

// New wires every component into a running Server. It does not start any
// transport; call Serve for that.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := sqlsec.NewEngine()
	pools := pool.NewManager(opts.GatewayClient, engine, logger)

	metricsReg, promReg := metrics.NewRegistry()

	s := &Server{
		settings: opts.Settings,
		gwClient: opts.GatewayClient,
		pools:    pools,
		sqlsec:   engine,
		keys:     opts.Keys,
		metrics:  metricsReg,
		promReg:  metrics.Handler(promReg),
		logger:   logger,
	}

	s.sessions = sessions.NewStore(opts.Settings.IBMiAuthMaxConcurrentSessions, s.closeSessionPool, logger)

	s.cfg = opts.Config
	resolver := s.buildSourceResolver(opts.Config)
	s.resolver = resolver
	build := func() (*registry.Registry, error) {
		res := config.LoadFromPath(opts.Settings.ToolsYAMLPath, opts.Settings.MergeOptions())
		if !res.Success {
			return nil, res.Errors[0]
		}
		return registry.Build(res.Config, pools, engine, resolver, opts.Settings.SelectedToolsets, logger)
	}

	var err error
	watchPaths := opts.ToolsPath
	if len(watchPaths) == 0 && opts.Settings.ToolsYAMLPath != "" {
		watchPaths = []string{opts.Settings.ToolsYAMLPath}
	}
	if opts.Settings.YAMLAutoReload && len(watchPaths) > 0 {
		s.watcher, err = reload.NewWatcher(watchPaths, build, logger)
	} else {
		var reg *registry.Registry
		reg, err = build()
		if err == nil {
			s.watcher = reload.StaticWatcher(reg)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("server: build initial tool registry: %w", err)
	}

	s.mcp = s.buildMCPServer()
	s.watcher.OnSwap = s.syncMCPTools
	return s, nil
}

// closeSessionPool adapts pool.Manager.ClosePool to sessions.PoolCloser,
// logging (rather than propagating) failures, matching spec.md §4.8's
// best-effort teardown contract.
func (s *Server) closeSessionPool(ctx context.Context, poolKey string) {
	if poolKey == "" {
		return
	}
	if err := s.pools.ClosePool(ctx, poolKey); err != nil {
		s.logger.Warn("failed to close pool for expired session", zap.String("pool_key", poolKey), zap.Error(err))
	}
}

// Serve blocks running the configured transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.settings.YAMLAutoReload {
		s.watcher.Start(ctx)
	}
	if s.settings.IBMiAuthCleanupIntervalSecs > 0 {
		s.sessions.StartSweeper(ctx, time.Duration(s.settings.IBMiAuthCleanupIntervalSecs)*time.Second)
	}
	defer s.sessions.Stop()
	defer s.pools.CloseAllPools(context.Background())

	switch s.settings.TransportType {
	case config.TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return s.serveStdio(ctx)
	}
}

func (s *Server) serveStdio(ctx context.Context) error {
	s.logger.Info("starting MCP server over stdio")
	return mcpserver.ServeStdio(s.mcp, mcpserver.WithStdioContextFunc(func(c context.Context) context.Context {
		return c
	}))
}

func (s *Server) serveHTTP(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.settings.HTTPHost, s.settings.HTTPPort)
	mux := s.buildHTTPMux()
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)

	// ibmi auth mode carries IBM-i passwords over POST /api/v1/auth, so it
	// always terminates TLS unless the operator has explicitly opted into
	// plaintext for local development (spec.md §6's IBMI_AUTH_ALLOW_HTTP).
	if s.settings.AuthMode == config.AuthIBMi && !s.settings.IBMiAuthAllowHTTP {
		tlsCfg, err := tlslocal.EnsureServerTLSConfig(tlslocal.Options{})
		if err != nil {
			return fmt.Errorf("provision local TLS material: %w", err)
		}
		srv.TLSConfig = tlsCfg
		s.logger.Info("starting MCP server over streamable HTTPS", zap.String("addr", addr))
		go func() { errCh <- srv.ListenAndServeTLS("", "") }()
	} else {
		s.logger.Info("starting MCP server over streamable HTTP", zap.String("addr", addr))
		go func() { errCh <- srv.ListenAndServe() }()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
