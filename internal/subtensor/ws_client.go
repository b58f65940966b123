package subtensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// errConnectionLost fails requests in flight when the socket drops.
var errConnectionLost = errors.New("websocket connection lost")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
	// RequestTimeout bounds the wait for a response.
	RequestTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages; extended by pongs.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		RequestTimeout:   30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

type pendingCall struct {
	conn *websocket.Conn
	ch   chan rpcResponse
}

// WSClient implements Transport over a single WebSocket connection.
// Responses are matched to requests by id. A dropped connection fails the
// requests in flight and is redialed by the next Call.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	pending   map[uint64]pendingCall
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

var _ Transport = (*WSClient)(nil)

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		pending:  make(map[uint64]pendingCall),
		done:     make(chan struct{}),
	}

	if _, err := c.ensureConn(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// ensureConn returns the live connection, dialing a new one if needed.
func (c *WSClient) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})
	c.conn = conn

	c.wg.Add(1)
	go c.readLoop(conn)

	return conn, nil
}

// Call sends a request and waits for the matching response.
func (c *WSClient) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if c.closed.Load() {
		return ErrClosed
	}

	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}

	reqID := c.requestID.Add(1)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	ch := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = pendingCall{conn: conn, ch: ch}
	c.pendingMu.Unlock()

	c.connMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err = conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		c.forget(reqID)
		return fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			if c.closed.Load() {
				return ErrClosed
			}
			return fmt.Errorf("%s: %w", method, errConnectionLost)
		}
		return decodeResult(&resp, result)
	case <-timer.C:
		c.forget(reqID)
		return fmt.Errorf("%s: no response after %s", method, c.config.RequestTimeout)
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		c.forget(reqID)
		return ctx.Err()
	}
}

// CallOnce is Call: the websocket transport never retries a request.
func (c *WSClient) CallOnce(ctx context.Context, method string, params []interface{}, result interface{}) error {
	return c.Call(ctx, method, params, result)
}

func (c *WSClient) forget(reqID uint64) {
	c.pendingMu.Lock()
	delete(c.pending, reqID)
	c.pendingMu.Unlock()
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.failPending(nil)

	c.wg.Wait()
	return nil
}

// readLoop reads responses from one connection until it fails.
func (c *WSClient) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			c.dropConn(conn)
			return
		}

		c.handleMessage(message)
	}
}

// dropConn forgets a broken connection and fails its requests in flight.
func (c *WSClient) dropConn(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()

	conn.Close()
	c.failPending(conn)
}

// failPending closes the channels of requests sent on conn, or all when conn is nil.
func (c *WSClient) failPending(conn *websocket.Conn) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, p := range c.pending {
		if conn != nil && p.conn != conn {
			continue
		}
		close(p.ch)
		delete(c.pending, id)
	}
}

// handleMessage dispatches a response to the waiting caller.
// Messages without a pending id (late or unsolicited) are dropped.
func (c *WSClient) handleMessage(message []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		return
	}

	c.pendingMu.Lock()
	p, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		p.ch <- resp
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection is detected by the read loop.
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}
