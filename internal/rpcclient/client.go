// Package rpcclient speaks HTTP JSON-RPC 2.0 to a running node and wraps each
// login/logout pair in a Session.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	MethodLogin  = "session.login"
	MethodLogout = "session.logout"

	SessionHeader   = "X-Trader-Session"
	RequestIDHeader = "X-Request-ID"

	defaultCallTimeout = 30 * time.Second
	maxErrorBodyBytes  = 4 << 10
	maxResponseBytes   = 1 << 20 // 1 MiB
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type LoginParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	SessionToken string `json:"session_token"`
}

// Observer receives call and session lifecycle events, typically for metrics.
type Observer interface {
	ObserveCall(method string, elapsed time.Duration, err error)
	SessionOpened()
	SessionClosed()
}

type nopObserver struct{}

func (nopObserver) ObserveCall(string, time.Duration, error) {}
func (nopObserver) SessionOpened()                          {}
func (nopObserver) SessionClosed()                          {}

// Dialer opens sessions against node RPC endpoints. The zero value is usable.
type Dialer struct {
	HTTPClient *http.Client
	// Timeout bounds each individual call. Zero means 30s.
	Timeout  time.Duration
	Logger   *slog.Logger
	Observer Observer
}

type conn struct {
	url      string
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
	nextID   atomic.Int64
}

// Session is one authenticated login on a node. Close logs out exactly once.
type Session struct {
	conn  *conn
	addr  string
	token string

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// Open logs in to the node at addr (host:port) and returns the resulting session.
func (d *Dialer) Open(ctx context.Context, addr, username, password string) (*Session, error) {
	c := d.newConn(addr)
	var res LoginResult
	err := c.call(ctx, MethodLogin, LoginParams{Username: username, Password: password}, &res, "")
	if err != nil {
		return nil, fmt.Errorf("login to %s: %w", addr, err)
	}
	if strings.TrimSpace(res.SessionToken) == "" {
		return nil, fmt.Errorf("login to %s: node returned an empty session token", addr)
	}
	c.observer.SessionOpened()
	c.logger.Debug("rpc session opened", "addr", addr, "user", username, "session", res.SessionToken)
	return &Session{conn: c, addr: addr, token: res.SessionToken}, nil
}

func (d *Dialer) newConn(addr string) *conn {
	c := &conn{
		url:      "http://" + strings.TrimSpace(addr) + "/rpc",
		client:   d.HTTPClient,
		timeout:  d.Timeout,
		logger:   d.Logger,
		observer: d.Observer,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = defaultCallTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c
}

func (s *Session) Addr() string {
	return s.addr
}

// Call invokes method with params and decodes the result into result when it is non-nil.
func (s *Session) Call(ctx context.Context, method string, params, result any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.conn.call(ctx, method, params, result, s.token)
}

// Close logs the session out. Only the first call reaches the node.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.call(ctx, MethodLogout, nil, nil, s.token)
		s.conn.observer.SessionClosed()
		s.conn.logger.Debug("rpc session closed", "addr", s.addr, "session", s.token)
	})
	return s.closeErr
}

func (c *conn) call(ctx context.Context, method string, params, result any, token string) (retErr error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqID, err := newRequestID()
	if err != nil {
		return err
	}
	started := time.Now()
	defer func() {
		elapsed := time.Since(started)
		c.observer.ObserveCall(method, elapsed, retErr)
		if retErr != nil {
			// Failures surface to the caller, which owns the error-level report.
			c.logger.Debug("rpc failed", "request_id", reqID, "method", method, "latency_ms", elapsed.Milliseconds(), "err", retErr)
		} else {
			c.logger.Debug("rpc response", "request_id", reqID, "method", method, "latency_ms", elapsed.Milliseconds())
		}
	}()

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}
	c.logger.Debug("rpc request", "request_id", reqID, "method", method)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	var decoded response
	decodeErr := json.Unmarshal(raw, &decoded)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && decoded.Error != nil {
			return decoded.Error
		}
		if len(raw) > maxErrorBodyBytes {
			raw = raw[:maxErrorBodyBytes]
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", method, decodeErr)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// IsRemote reports whether err came back from the node rather than the transport.
func IsRemote(err error) bool {
	var rpcErr *Error
	var statusErr *StatusError
	return errors.As(err, &rpcErr) || errors.As(err, &statusErr)
}
