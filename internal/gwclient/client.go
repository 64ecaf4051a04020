// Package gwclient is a thin WebSocket/JSON client to the external
// IBM-i/Db2-for-i database gateway (C1). The connection and
// request/response correlation pattern — one persistent *websocket.Conn, a
// writeMu-guarded writer, and a pendingReqs map keyed by request id that a
// single readLoop goroutine demuxes into — is grounded on
// rcourtman-Pulse's internal/agentexec.Server/agentConn, adapted from
// server-side multi-agent fan-out to a single outbound client connection.
package gwclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/errs"
	"go.uber.org/zap"
)

// Credentials identifies the database identity used to open a pool.
type Credentials struct {
	Host               string
	User               string
	Password           string
	Port               int
	IgnoreUnauthorized bool
}

// PoolSizes bounds a gateway-side connection pool.
type PoolSizes struct {
	Starting int
	Max      int
}

// PoolHandle is the opaque gateway-assigned identifier for an open pool.
type PoolHandle string

// QueryHandle is the opaque gateway-assigned identifier for an open cursor.
type QueryHandle string

// Result is C1's execute/fetchMore return shape, matching spec.md §4.1.
type Result struct {
	Data          []map[string]interface{} `json:"data"`
	Columns       []Column                 `json:"columns"`
	Success       bool                     `json:"success"`
	IsDone        bool                     `json:"isDone"`
	SQLReturnCode int                      `json:"sqlReturnCode"`
	SQLState      string                   `json:"sqlState"`
	ExecutionTime time.Duration            `json:"executionTime"`
	UpdateCount   int64                    `json:"updateCount"`
	JobID         string                   `json:"jobId"`
	Query         QueryHandle              `json:"query,omitempty"`
}

// Column describes one result column's name and SQL type family.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// envelope is the wire message shape exchanged with the gateway: a request
// id for correlation, an action/type tag, and an arbitrary JSON payload.
type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const defaultRequestTimeout = 30 * time.Second

// Client owns one persistent WebSocket connection to the gateway.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	closeOnce sync.Once
	closed    chan struct{}

	logger *zap.Logger
}

// Dial opens the WebSocket connection to endpoint and starts the read loop.
// tlsConfig is handed to the dialer as given. The pool manager calls
// GetRootCertificate before opening each pool, but it does not fold the
// fetched certificate into tlsConfig.
func Dial(ctx context.Context, endpoint string, tlsConfig *tls.Config, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errs.Database("invalid gateway endpoint %q: %v", endpoint, err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsConfig,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errs.Database("dial gateway %q: %v", endpoint, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[string]chan envelope),
		closed:  make(chan struct{}),
		logger:  logger,
	}
	go c.readLoop()
	return c, nil
}

// GetRootCertificate fetches the gateway's root CA certificate over a
// short-lived plain HTTPS-less bootstrap connection, for verified TLS mode
// (spec.md §4.1's getRootCertificate). The gateway exposes this as a
// one-shot unauthenticated WebSocket exchange prior to the real pool dial.
func GetRootCertificate(ctx context.Context, endpoint string) (*x509.Certificate, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errs.Database("invalid gateway endpoint %q: %v", endpoint, err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errs.Database("dial gateway for root certificate: %v", err)
	}
	defer conn.Close()

	req := envelope{ID: uuid.New().String(), Type: "get_root_certificate"}
	if err := conn.WriteJSON(req); err != nil {
		return nil, errs.Database("request root certificate: %v", err)
	}

	var resp envelope
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, errs.Database("read root certificate response: %v", err)
	}
	if resp.Error != "" {
		return nil, errs.Database("gateway rejected root certificate request: %s", resp.Error)
	}

	var payload struct {
		CertificatePEM []byte `json:"certificatePem"`
	}
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		return nil, errs.Database("decode root certificate payload: %v", err)
	}

	block, _ := pemDecode(payload.CertificatePEM)
	if block == nil {
		return nil, errs.Database("root certificate payload is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block)
	if err != nil {
		return nil, errs.Database("parse root certificate: %v", err)
	}
	return cert, nil
}

// Close terminates the connection and fails every request awaiting a reply.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()

		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
	return err
}

// readLoop demultiplexes incoming envelopes to the waiting caller by
// request id, mirroring agentexec.Server.readLoop's dispatch-by-ID pattern.
func (c *Client) readLoop() {
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if c.logger != nil {
				c.logger.Warn("gateway connection read failed", zap.Error(err))
			}
			c.failAllPending()
			return
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- env
			close(ch)
		}
	}
}

func (c *Client) failAllPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// roundTrip sends req and blocks until the matching envelope arrives, the
// connection closes, ctx is cancelled, or defaultRequestTimeout elapses.
func (c *Client) roundTrip(ctx context.Context, msgType string, payload interface{}) (envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return envelope{}, errs.Database("encode %s request: %v", msgType, err)
	}

	req := envelope{ID: uuid.New().String(), Type: msgType, Payload: raw}
	respCh := make(chan envelope, 1)

	c.pendingMu.Lock()
	c.pending[req.ID] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return envelope{}, errs.Database("send %s request: %v", msgType, err)
	}

	timeout := defaultRequestTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return envelope{}, errs.Database("gateway connection closed before %s response arrived", msgType)
		}
		if resp.Error != "" {
			return envelope{}, errs.Database("gateway rejected %s: %s", msgType, resp.Error)
		}
		return resp, nil
	case <-timer.C:
		return envelope{}, errs.Database("%s request timed out after %v", msgType, timeout)
	case <-ctx.Done():
		return envelope{}, errs.Database("%s request cancelled: %v", msgType, ctx.Err())
	case <-c.closed:
		return envelope{}, errs.Database("gateway client closed during %s request", msgType)
	}
}

// OpenPool opens a pool against creds with the given starting/max sizes.
func (c *Client) OpenPool(ctx context.Context, creds Credentials, sizes PoolSizes) (PoolHandle, error) {
	resp, err := c.roundTrip(ctx, "open_pool", struct {
		Host               string `json:"host"`
		User               string `json:"user"`
		Password           string `json:"password"`
		Port               int    `json:"port"`
		IgnoreUnauthorized bool   `json:"ignoreUnauthorized"`
		Starting           int    `json:"starting"`
		Max                int    `json:"max"`
	}{creds.Host, creds.User, creds.Password, creds.Port, creds.IgnoreUnauthorized, sizes.Starting, sizes.Max})
	if err != nil {
		return "", err
	}

	var out struct {
		Pool string `json:"pool"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return "", errs.Database("decode open_pool response: %v", err)
	}
	return PoolHandle(out.Pool), nil
}

// Execute runs sql with bound parameter values against pool.
func (c *Client) Execute(ctx context.Context, pool PoolHandle, sql string, params []interface{}) (*Result, error) {
	resp, err := c.roundTrip(ctx, "execute", struct {
		Pool   string        `json:"pool"`
		SQL    string        `json:"sql"`
		Params []interface{} `json:"params"`
	}{string(pool), sql, params})
	if err != nil {
		return nil, err
	}
	return decodeResult(resp.Payload)
}

// FetchMore continues an open result cursor.
func (c *Client) FetchMore(ctx context.Context, query QueryHandle, fetchSize int) (*Result, error) {
	resp, err := c.roundTrip(ctx, "fetch_more", struct {
		Query     string `json:"query"`
		FetchSize int    `json:"fetchSize"`
	}{string(query), fetchSize})
	if err != nil {
		return nil, err
	}
	return decodeResult(resp.Payload)
}

// CloseQuery releases an open cursor.
func (c *Client) CloseQuery(ctx context.Context, query QueryHandle) error {
	_, err := c.roundTrip(ctx, "close_query", struct {
		Query string `json:"query"`
	}{string(query)})
	return err
}

// ClosePool tears down a gateway-side pool.
func (c *Client) ClosePool(ctx context.Context, pool PoolHandle) error {
	_, err := c.roundTrip(ctx, "close_pool", struct {
		Pool string `json:"pool"`
	}{string(pool)})
	return err
}

func decodeResult(payload json.RawMessage) (*Result, error) {
	var r Result
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, errs.Database("decode result payload: %v", err)
	}
	return &r, nil
}

func pemDecode(data []byte) ([]byte, []byte) {
	block, rest := pem.Decode(data)
	if block == nil {
		return nil, rest
	}
	return block.Bytes, rest
}
