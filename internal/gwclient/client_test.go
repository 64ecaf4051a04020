package gwclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeGateway starts an httptest server that upgrades to a WebSocket and
// runs handle for every connection, returning the ws:// URL to dial.
func newFakeGateway(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestOpenPoolRoundTrip(t *testing.T) {
	url := newFakeGateway(t, func(conn *websocket.Conn) {
		var req envelope
		require.NoError(t, conn.ReadJSON(&req))
		assert.Equal(t, "open_pool", req.Type)

		payload, _ := json.Marshal(struct {
			Pool string `json:"pool"`
		}{Pool: "pool-1"})
		_ = conn.WriteJSON(envelope{ID: req.ID, Type: "open_pool", Payload: payload})
	})

	c, err := Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer c.Close()

	handle, err := c.OpenPool(context.Background(), Credentials{Host: "h"}, PoolSizes{Starting: 1, Max: 5})
	require.NoError(t, err)
	assert.Equal(t, PoolHandle("pool-1"), handle)
}

func TestExecuteRoundTrip(t *testing.T) {
	url := newFakeGateway(t, func(conn *websocket.Conn) {
		var req envelope
		require.NoError(t, conn.ReadJSON(&req))

		resultPayload, _ := json.Marshal(Result{
			Data:    []map[string]interface{}{{"X": float64(1)}},
			Columns: []Column{{Name: "X", Type: "INTEGER"}},
			Success: true,
			IsDone:  true,
		})
		_ = conn.WriteJSON(envelope{ID: req.ID, Type: "execute", Payload: resultPayload})
	})

	c, err := Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Execute(context.Background(), "pool-1", "SELECT 1 AS X FROM SYSIBM.SYSDUMMY1", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.IsDone)
	assert.Len(t, res.Data, 1)
}

func TestGatewayErrorSurfaces(t *testing.T) {
	url := newFakeGateway(t, func(conn *websocket.Conn) {
		var req envelope
		require.NoError(t, conn.ReadJSON(&req))
		_ = conn.WriteJSON(envelope{ID: req.ID, Type: "execute", Error: "syntax error"})
	})

	c, err := Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Execute(context.Background(), "pool-1", "BAD SQL", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestRoundTripFailsWhenConnectionClosedMidFlight(t *testing.T) {
	ready := make(chan struct{})
	url := newFakeGateway(t, func(conn *websocket.Conn) {
		var req envelope
		require.NoError(t, conn.ReadJSON(&req))
		close(ready)
		conn.Close()
	})

	c, err := Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Execute(context.Background(), "pool-1", "SELECT 1 FROM SYSIBM.SYSDUMMY1", nil)
	assert.Error(t, err)
	<-ready
}

func TestRoundTripRespectsContextCancellation(t *testing.T) {
	url := newFakeGateway(t, func(conn *websocket.Conn) {
		var req envelope
		_ = conn.ReadJSON(&req)
		// never respond
		time.Sleep(time.Second)
	})

	c, err := Dial(context.Background(), url, nil, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Execute(ctx, "pool-1", "SELECT 1 FROM SYSIBM.SYSDUMMY1", nil)
	assert.Error(t, err)
}
