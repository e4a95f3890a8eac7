// Package noderpc implements a connection-pooled HTTP client issuing
// Bitcoin Core JSON-RPC 1.0 calls with cookie-file basic auth, bounded
// retry on transport/protocol errors, and no auth-failure retry. Grounded
// on the async future/Receive pattern
// of rpcclient/dag.go, adapted from that client's persistent-websocket
// transport to the cookie-authenticated plain-HTTP transport documented in
// bitcoin_rpc.py.
package noderpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/krich11/qdayscanner/internal/logs"
)

var log = logs.Get(logs.TagRPCClient)

// RpcFailure is raised when a call exhausts its retry budget against a
// transient transport/protocol error.
type RpcFailure struct {
	Method string
	Err    error
}

func (e *RpcFailure) Error() string {
	return fmt.Sprintf("rpc call %s failed after retries: %v", e.Method, e.Err)
}

func (e *RpcFailure) Unwrap() error { return e.Err }

// AuthFailure is raised immediately, without retry, on an HTTP 401/403.
type AuthFailure struct {
	Method string
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("rpc call %s failed authentication", e.Method)
}

// Config carries everything the client needs to reach the node.
type Config struct {
	Host       string
	Port       int
	CookiePath string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client is a single-connection-pooled JSON-RPC 1.0 client. It does not
// cache responses; callers (the worker's per-block transaction cache) own
// caching.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client

	mu       sync.RWMutex
	user     string
	password string

	idMu   sync.Mutex
	nextID int64
}

// NewClient constructs a Client and loads the initial cookie contents.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}

	c := &Client{
		cfg:      cfg,
		endpoint: fmt.Sprintf("http://%s:%d/", cfg.Host, cfg.Port),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        128,
				MaxIdleConnsPerHost: 128,
				MaxConnsPerHost:     128,
			},
		},
	}
	if cfg.CookiePath != "" {
		if err := c.reloadCookie(); err != nil {
			return nil, errors.Wrap(err, "failed to read rpc cookie file")
		}
	}
	return c, nil
}

// reloadCookie re-reads the cookie file. Bitcoin Core rewrites this file on
// every restart, so a long-lived scanner process reloads it on every auth
// failure rather than caching it forever.
func (c *Client) reloadCookie() error {
	data, err := os.ReadFile(c.cfg.CookiePath)
	if err != nil {
		return err
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
	if len(parts) != 2 {
		return errors.Errorf("malformed cookie file %s: expected username:password", c.cfg.CookiePath)
	}
	c.mu.Lock()
	c.user, c.password = parts[0], parts[1]
	c.mu.Unlock()
	return nil
}

func (c *Client) credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user, c.password
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int64           `json:"id"`
}

// response is the payload delivered on a Future channel.
type response struct {
	result json.RawMessage
	err    error
}

func newFutureError(err error) chan *response {
	ch := make(chan *response, 1)
	ch <- &response{err: err}
	return ch
}

// call performs one retried JSON-RPC request and returns the raw result.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		result, authFailed, err := c.doCall(ctx, method, params)
		if authFailed {
			// Cookie may have rotated; reload it so the next call uses the
			// fresh credentials. This call itself is not retried.
			_ = c.reloadCookie()
			return nil, &AuthFailure{Method: method}
		}
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Warnf("rpc call %s attempt %d/%d failed: %v", method, attempt+1, c.cfg.MaxRetries+1, err)
	}
	return nil, &RpcFailure{Method: method, Err: lastErr}
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, bool, error) {
	id := nextRequestID(c)
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, false, errors.Wrap(err, "marshal rpc request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, false, errors.Wrap(err, "build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")
	user, pass := c.credentials()
	if user != "" {
		req.SetBasicAuth(user, pass)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, errors.Wrap(err, "rpc transport error")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		return nil, true, nil
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, false, errors.Wrap(err, "read rpc response body")
	}
	if httpResp.StatusCode >= 500 {
		return nil, false, errors.Errorf("rpc server error: status %d: %s", httpResp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, false, errors.Wrap(err, "decode rpc response")
	}
	if rpcResp.Error != nil {
		return nil, false, errors.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, false, nil
}

// callBatch issues a JSON array of single requests in one HTTP POST,
// returning the raw results positionally aligned with methods/params. An
// entry is nil if that specific call returned an error.
func (c *Client) callBatch(ctx context.Context, methods []string, paramsList [][]interface{}) ([]json.RawMessage, error) {
	reqs := make([]rpcRequest, len(methods))
	for i := range methods {
		reqs[i] = rpcRequest{JSONRPC: "1.0", ID: nextRequestID(c), Method: methods[i], Params: paramsList[i]}
	}
	reqBody, err := json.Marshal(reqs)
	if err != nil {
		return nil, errors.Wrap(err, "marshal rpc batch request")
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, errors.Wrap(err, "build rpc batch request")
		}
		req.Header.Set("Content-Type", "application/json")
		user, pass := c.credentials()
		if user != "" {
			req.SetBasicAuth(user, pass)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = errors.Wrap(err, "rpc transport error")
			log.Warnf("rpc batch attempt %d/%d failed: %v", attempt+1, c.cfg.MaxRetries+1, lastErr)
			continue
		}

		if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
			httpResp.Body.Close()
			return nil, &AuthFailure{Method: "batch"}
		}

		body, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			lastErr = errors.Wrap(err, "read rpc batch response body")
			continue
		}

		var rpcResps []rpcResponse
		if err := json.Unmarshal(body, &rpcResps); err != nil {
			lastErr = errors.Wrap(err, "decode rpc batch response")
			continue
		}

		results := make([]json.RawMessage, len(methods))
		byID := make(map[int64]rpcResponse, len(rpcResps))
		for _, r := range rpcResps {
			byID[r.ID] = r
		}
		for i, req := range reqs {
			if r, ok := byID[req.ID]; ok && r.Error == nil {
				results[i] = r.Result
			}
		}
		return results, nil
	}
	return nil, &RpcFailure{Method: "batch", Err: lastErr}
}

func nextRequestID(c *Client) int64 {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	c.nextID++
	return c.nextID
}
