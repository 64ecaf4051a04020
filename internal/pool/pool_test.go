package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/config"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/gwclient"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/sqlsec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// newFakeGateway starts a minimal gateway that answers open_pool/execute/
// fetch_more/close_query/close_pool with canned responses, counting how many
// times open_pool is invoked.
func newFakeGateway(t *testing.T) (url string, openPoolCalls *int32) {
	t.Helper()
	var calls int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go func() {
			for {
				var req wireEnvelope
				if err := conn.ReadJSON(&req); err != nil {
					return
				}
				switch req.Type {
				case "open_pool":
					atomic.AddInt32(&calls, 1)
					time.Sleep(20 * time.Millisecond) // widen the race window
					payload, _ := json.Marshal(struct {
						Pool string `json:"pool"`
					}{Pool: "pool-1"})
					_ = conn.WriteJSON(wireEnvelope{ID: req.ID, Type: req.Type, Payload: payload})
				case "execute":
					payload, _ := json.Marshal(gwclient.Result{Success: true, IsDone: true, Data: []map[string]interface{}{{"X": float64(1)}}})
					_ = conn.WriteJSON(wireEnvelope{ID: req.ID, Type: req.Type, Payload: payload})
				default:
					_ = conn.WriteJSON(wireEnvelope{ID: req.ID, Type: req.Type, Payload: json.RawMessage(`{}`)})
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &calls
}

func TestEnsureIsSingleFlight(t *testing.T) {
	url, calls := newFakeGateway(t)
	client, err := gwclient.Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	m := NewManager(client, sqlsec.NewEngine(), nil)
	source := config.SourceSpec{Name: "s", Host: "h", IgnoreUnauthorized: true}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Ensure(context.Background(), "k1", source)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "concurrent Ensure calls for the same key must only open once")
}

func TestExecuteQueryRejectsPolicyViolation(t *testing.T) {
	url, _ := newFakeGateway(t)
	client, err := gwclient.Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	m := NewManager(client, sqlsec.NewEngine(), nil)
	source := config.SourceSpec{Name: "s", Host: "h", IgnoreUnauthorized: true}
	policy := sqlsec.DefaultPolicy()

	_, err = m.ExecuteQuery(context.Background(), "k1", source, "DROP TABLE users", nil, &policy)
	assert.Error(t, err)
}

func TestExecuteQuerySucceeds(t *testing.T) {
	url, _ := newFakeGateway(t)
	client, err := gwclient.Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	m := NewManager(client, sqlsec.NewEngine(), nil)
	source := config.SourceSpec{Name: "s", Host: "h", IgnoreUnauthorized: true}
	policy := sqlsec.DefaultPolicy()

	res, err := m.ExecuteQuery(context.Background(), "k1", source, "SELECT 1 AS X FROM SYSIBM.SYSDUMMY1", nil, &policy)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestExecuteQueryRejectsNonWireScalarParams(t *testing.T) {
	url, _ := newFakeGateway(t)
	client, err := gwclient.Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	m := NewManager(client, sqlsec.NewEngine(), nil)
	source := config.SourceSpec{Name: "s", Host: "h", IgnoreUnauthorized: true}

	_, err = m.ExecuteQuery(context.Background(), "k1", source, "SELECT 1 FROM SYSIBM.SYSDUMMY1", []interface{}{map[string]string{"bad": "x"}}, nil)
	assert.Error(t, err)
}

func TestClosePoolIsIdempotent(t *testing.T) {
	url, _ := newFakeGateway(t)
	client, err := gwclient.Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	m := NewManager(client, sqlsec.NewEngine(), nil)
	assert.NoError(t, m.ClosePool(context.Background(), "never-opened"))

	source := config.SourceSpec{Name: "s", Host: "h", IgnoreUnauthorized: true}
	_, err = m.Ensure(context.Background(), "k1", source)
	require.NoError(t, err)
	assert.NoError(t, m.ClosePool(context.Background(), "k1"))
	assert.NoError(t, m.ClosePool(context.Background(), "k1"))
}

func TestCloseAllPoolsNeverPanicsWithNoPools(t *testing.T) {
	url, _ := newFakeGateway(t)
	client, err := gwclient.Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	m := NewManager(client, sqlsec.NewEngine(), nil)
	assert.NotPanics(t, func() { m.CloseAllPools(context.Background()) })
}

func TestCheckPoolHealthMarksHealthy(t *testing.T) {
	url, _ := newFakeGateway(t)
	client, err := gwclient.Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	m := NewManager(client, sqlsec.NewEngine(), nil)
	source := config.SourceSpec{Name: "s", Host: "h", IgnoreUnauthorized: true}
	_, err = m.Ensure(context.Background(), "k1", source)
	require.NoError(t, err)

	assert.NoError(t, m.CheckPoolHealth(context.Background(), "k1"))
	m.mu.RLock()
	status := m.pools["k1"].HealthStatus
	m.mu.RUnlock()
	assert.Equal(t, HealthHealthy, status)
}
