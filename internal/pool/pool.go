// Package pool owns one keyed collection of gateway connection pools and
// provides executeQuery/executeQueryWithPagination-style access to them, per
// spec.md §4.4. The single-flight lazy-initialization shape — a per-key
// mutex that concurrent callers for the same key block on — is grounded
// on the teacher's internal/oauth.OAuthFlowCoordinator (getOrCreateLock,
// StartFlow/EndFlow); its waiter channels are not carried over. Adapted
// from coordinating OAuth flows per MCP server name to coordinating pool
// opens per database identity key. The keyed-map-of-live-handles shape
// additionally follows the teacher's internal/upstream.Manager
// (map[string]*Client guarded by a single mutex).
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/gwclient"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/sqlsec"
	"go.uber.org/zap"
)

// HealthStatus mirrors spec.md §3's PoolState.healthStatus enum.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// defaultFetchSize and the safety cap on paginated fetches, per spec.md §4.4.
const (
	defaultFetchSize   = 300
	maxPaginationFetches = 100
	healthProbeSQL     = "SELECT 1 FROM SYSIBM.SYSDUMMY1"
)

// PoolState is one keyed gateway pool's lifecycle state.
type PoolState struct {
	Key             string
	Handle          gwclient.PoolHandle
	Initialized     bool
	Connecting      bool
	HealthStatus    HealthStatus
	LastHealthCheck time.Time
	LastError       error
	Source          config.SourceSpec
}

// AggregatedResult is executeQueryWithPagination's return shape: all fetched
// rows concatenated, plus the terminal page's status fields.
type AggregatedResult struct {
	Data          []map[string]interface{}
	Columns       []gwclient.Column
	Success       bool
	SQLReturnCode int
	SQLState      string
	UpdateCount   int64
	JobID         string
	FetchCount    int
	Truncated     bool
}

// Manager owns every keyed PoolState and the single gateway connection they
// share.
type Manager struct {
	client *gwclient.Client

	mu    sync.RWMutex
	pools map[string]*PoolState
	locks map[string]*sync.Mutex

	sqlsec *sqlsec.Engine
	logger *zap.Logger
}

// NewManager builds a Manager around an already-dialed gateway client.
func NewManager(client *gwclient.Client, engine *sqlsec.Engine, logger *zap.Logger) *Manager {
	return &Manager{
		client: client,
		pools:  make(map[string]*PoolState),
		locks:  make(map[string]*sync.Mutex),
		sqlsec: engine,
		logger: logger,
	}
}

func (m *Manager) getOrCreateLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lock, ok := m.locks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	m.locks[key] = lock
	return lock
}

// Ensure guarantees a healthy, initialized pool exists for key, opening one
// via source if this is the first call, or awaiting an in-flight open from a
// concurrent caller (single-flight), per spec.md §4.4's initialization
// invariants.
func (m *Manager) Ensure(ctx context.Context, key string, source config.SourceSpec) (*PoolState, error) {
	m.mu.RLock()
	state, exists := m.pools[key]
	m.mu.RUnlock()
	if exists && state.Initialized {
		return state, nil
	}

	// The per-key mutex IS the single-flight mechanism: whichever goroutine
	// acquires it first performs the open, every concurrent caller for the
	// same key blocks here and then observes the already-initialized state.
	lock := m.getOrCreateLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	state, exists = m.pools[key]
	m.mu.RUnlock()
	if exists && state.Initialized {
		return state, nil
	}

	return m.open(ctx, key, source)
}

func (m *Manager) open(ctx context.Context, key string, source config.SourceSpec) (*PoolState, error) {
	state := &PoolState{Key: key, Connecting: true, Source: source, HealthStatus: HealthUnknown}
	m.mu.Lock()
	m.pools[key] = state
	m.mu.Unlock()

	if !source.IgnoreUnauthorized {
		// The fetched certificate is deliberately discarded rather than folded
		// into a TLS config: m.client is a single gwclient.Client dialed once
		// at process startup (cmd/dbi-mcp-gateway/main.go) and shared across
		// every pool key, so there is no per-source TLS handshake left for a
		// later-fetched cert to join. This call exists to satisfy spec.md
		// §4.4's ordering requirement — reject the pool open up front if the
		// gateway's root certificate can't be retrieved — rather than to
		// supply material the shared connection will verify against.
		endpoint := gatewayEndpoint(source)
		if _, err := gwclient.GetRootCertificate(ctx, endpoint); err != nil {
			return m.fail(key, state, err)
		}
	}

	handle, err := m.client.OpenPool(ctx, gwclient.Credentials{
		Host:               source.Host,
		User:               source.User,
		Password:           source.Password,
		Port:               source.EffectivePort(),
		IgnoreUnauthorized: source.IgnoreUnauthorized,
	}, gwclient.PoolSizes{Starting: 1, Max: 10})
	if err != nil {
		return m.fail(key, state, err)
	}

	state.Handle = handle
	state.Initialized = true
	state.Connecting = false
	state.HealthStatus = HealthHealthy
	state.LastHealthCheck = time.Now()
	state.LastError = nil

	m.mu.Lock()
	m.pools[key] = state
	m.mu.Unlock()

	return state, nil
}

func (m *Manager) fail(key string, state *PoolState, cause error) (*PoolState, error) {
	state.Initialized = false
	state.Connecting = false
	state.Handle = ""
	state.HealthStatus = HealthUnhealthy
	state.LastError = cause

	m.mu.Lock()
	m.pools[key] = state
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Warn("pool initialization failed", zap.String("key", key), zap.Error(cause))
	}
	return nil, errs.Database("open pool %q: %v", key, cause)
}

func gatewayEndpoint(source config.SourceSpec) string {
	return source.Host
}

// ExecuteQuery runs sql with params against key's pool, per spec.md §4.4's
// executeQuery algorithm: ensure pool, policy-check via C2 if security is
// supplied, shallow-validate parameter element types, delegate to C1, mark
// the pool healthy on success.
func (m *Manager) ExecuteQuery(ctx context.Context, key string, source config.SourceSpec, sql string, params []interface{}, policy *sqlsec.Policy) (*gwclient.Result, error) {
	state, err := m.Ensure(ctx, key, source)
	if err != nil {
		return nil, err
	}

	if policy != nil && m.sqlsec != nil {
		if err := m.sqlsec.Check(sql, *policy); err != nil {
			return nil, err
		}
	}

	if err := validateWireParams(params); err != nil {
		return nil, err
	}

	result, err := m.client.Execute(ctx, state.Handle, sql, params)
	if err != nil {
		m.markUnhealthy(key, err)
		return nil, err
	}

	m.markHealthy(key)
	return result, nil
}

// ExecuteQueryWithPagination opens a cursor, fetches fetchSize rows at a
// time until the cursor reports done or the safety cap of
// maxPaginationFetches is hit, then closes the cursor and returns the
// concatenated rows.
func (m *Manager) ExecuteQueryWithPagination(ctx context.Context, key string, source config.SourceSpec, sql string, params []interface{}, fetchSize int, policy *sqlsec.Policy) (*AggregatedResult, error) {
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}

	state, err := m.Ensure(ctx, key, source)
	if err != nil {
		return nil, err
	}

	if policy != nil && m.sqlsec != nil {
		if err := m.sqlsec.Check(sql, *policy); err != nil {
			return nil, err
		}
	}
	if err := validateWireParams(params); err != nil {
		return nil, err
	}

	first, err := m.client.Execute(ctx, state.Handle, sql, params)
	if err != nil {
		m.markUnhealthy(key, err)
		return nil, err
	}

	agg := &AggregatedResult{
		Data:          append([]map[string]interface{}{}, first.Data...),
		Columns:       first.Columns,
		Success:       first.Success,
		SQLReturnCode: first.SQLReturnCode,
		SQLState:      first.SQLState,
		UpdateCount:   first.UpdateCount,
		JobID:         first.JobID,
		FetchCount:    1,
	}

	query := first.Query
	done := first.IsDone
	for !done && agg.FetchCount < maxPaginationFetches {
		page, err := m.client.FetchMore(ctx, query, fetchSize)
		if err != nil {
			m.markUnhealthy(key, err)
			return nil, err
		}
		agg.Data = append(agg.Data, page.Data...)
		agg.FetchCount++
		done = page.IsDone
		agg.Success = page.Success
		agg.SQLReturnCode = page.SQLReturnCode
		agg.SQLState = page.SQLState
		agg.UpdateCount = page.UpdateCount
	}
	if !done {
		agg.Truncated = true
	}

	if query != "" {
		_ = m.client.CloseQuery(ctx, query)
	}

	m.markHealthy(key)
	return agg, nil
}

// validateWireParams enforces spec.md §4.4's shallow wire check: only
// string, numeric, boolean, nil, or arrays-of-those may reach C1. Arrays should
// already have been expanded by C3, so any array surviving to here is
// itself checked element-wise defensively.
func validateWireParams(params []interface{}) error {
	for _, p := range params {
		if !isWireScalar(p) {
			return errs.Validation("params", "parameter value of type %T is not permitted on the wire", p)
		}
	}
	return nil
}

func isWireScalar(v interface{}) bool {
	switch val := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return true
	case []interface{}:
		for _, item := range val {
			if !isWireScalar(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// CheckPoolHealth runs a known-safe probe against key's pool and updates its
// HealthStatus accordingly.
func (m *Manager) CheckPoolHealth(ctx context.Context, key string) error {
	m.mu.RLock()
	state, ok := m.pools[key]
	m.mu.RUnlock()
	if !ok || !state.Initialized {
		return errs.NotFound("pool", "no initialized pool for key %q", key)
	}

	_, err := m.client.Execute(ctx, state.Handle, healthProbeSQL, nil)
	if err != nil {
		m.markUnhealthy(key, err)
		return err
	}
	m.markHealthy(key)
	return nil
}

func (m *Manager) markHealthy(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.pools[key]; ok {
		state.HealthStatus = HealthHealthy
		state.LastHealthCheck = time.Now()
		state.LastError = nil
	}
}

func (m *Manager) markUnhealthy(key string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.pools[key]; ok {
		state.HealthStatus = HealthUnhealthy
		state.LastHealthCheck = time.Now()
		state.LastError = cause
	}
}

// ClosePool releases key's gateway pool. Idempotent: closing an
// already-closed or never-opened key is a no-op.
func (m *Manager) ClosePool(ctx context.Context, key string) error {
	m.mu.Lock()
	state, ok := m.pools[key]
	if ok {
		delete(m.pools, key)
	}
	m.mu.Unlock()

	if !ok || !state.Initialized {
		return nil
	}
	return m.client.ClosePool(ctx, state.Handle)
}

// CloseAllPools fans out ClosePool across every known key, best-effort: it
// never returns an error, only logs failures, matching spec.md §4.4's
// "best-effort, never rethrows" teardown contract.
func (m *Manager) CloseAllPools(ctx context.Context) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.pools))
	for k := range m.pools {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			if err := m.ClosePool(ctx, k); err != nil && m.logger != nil {
				m.logger.Warn("error closing pool", zap.String("key", k), zap.Error(err))
			}
		}(key)
	}
	wg.Wait()
}
