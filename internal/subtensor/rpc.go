// Package subtensor talks to a subtensor JSON-RPC gateway over HTTP or WebSocket
// and implements the chain query and action ports on top of it.
package subtensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Transport is a JSON-RPC 2.0 connection.
type Transport interface {
	// Call invokes method and decodes the result into result (may be nil).
	// Transports may retry transient failures.
	Call(ctx context.Context, method string, params []interface{}, result interface{}) error

	// CallOnce is Call with exactly one request on the wire. Extrinsic
	// submissions go through CallOnce: a lost response must not resubmit.
	CallOnce(ctx context.Context, method string, params []interface{}, result interface{}) error

	// Close releases the connection.
	Close() error
}

// ErrClosed is returned by calls on a closed transport.
var ErrClosed = errors.New("transport closed")

// TransportConfig configures the transport built by Dial.
type TransportConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DialTransport picks the transport by URL scheme: http(s) or ws(s).
func DialTransport(ctx context.Context, endpoint string, cfg TransportConfig) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		var opts []ClientOption
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRetries > 0 {
			opts = append(opts, WithMaxRetries(cfg.MaxRetries))
		}
		if cfg.RetryDelay > 0 {
			opts = append(opts, WithRetryDelay(cfg.RetryDelay))
		}
		return NewHTTPClient(endpoint, opts...), nil
	case "ws", "wss":
		wsCfg := DefaultWSConfig()
		if cfg.Timeout > 0 {
			wsCfg.RequestTimeout = cfg.Timeout
		}
		return NewWSClient(ctx, endpoint, &wsCfg)
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// decodeResult unpacks a response into result.
func decodeResult(resp *rpcResponse, result interface{}) error {
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}
