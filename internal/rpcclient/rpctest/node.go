// Package rpctest runs an in-process JSON-RPC node that understands the session
// methods of rpcclient and records every business call it receives.
package rpctest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"trader-demo/go-client/internal/rpcclient"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *rpcclient.Error `json:"error,omitempty"`
}

// Call is one business request seen by the node. Session methods are not recorded.
type Call struct {
	Method    string
	Params    json.RawMessage
	Session   string
	RequestID string
}

// HandlerFunc serves one method. Returning an *rpcclient.Error sends it verbatim.
type HandlerFunc func(params json.RawMessage) (any, error)

type Option func(*Node)

// WithUser registers an additional login.
func WithUser(username, password string) Option {
	return func(n *Node) {
		n.addUser(username, password)
	}
}

// WithRateLimit caps business calls per session token.
func WithRateLimit(rps float64, burst int) Option {
	return func(n *Node) {
		n.limiter = newSessionLimiter(rps, burst)
	}
}

type Node struct {
	server *httptest.Server

	mu       sync.Mutex
	users    map[string][]byte
	sessions map[string]string
	handlers map[string]HandlerFunc
	failures map[string]*rpcclient.Error
	calls    []Call
	logins   int
	logouts  int
	limiter  *sessionLimiter
}

// NewNode starts a node that accepts demo/demo and stops it when t finishes.
func NewNode(t testing.TB, opts ...Option) *Node {
	t.Helper()
	n := &Node{
		users:    make(map[string][]byte),
		sessions: make(map[string]string),
		handlers: make(map[string]HandlerFunc),
		failures: make(map[string]*rpcclient.Error),
	}
	n.addUser("demo", "demo")
	for _, opt := range opts {
		opt(n)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/rpc", n.handleRPC)
	n.server = httptest.NewServer(r)
	t.Cleanup(n.server.Close)
	return n
}

// Addr returns host:port of the listening node.
func (n *Node) Addr() string {
	return strings.TrimPrefix(n.server.URL, "http://")
}

func (n *Node) Handle(method string, h HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// Fail makes every later call of method return the given error.
func (n *Node) Fail(method string, code int, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[method] = &rpcclient.Error{Code: code, Message: message}
}

func (n *Node) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Call, len(n.calls))
	copy(out, n.calls)
	return out
}

func (n *Node) Logins() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logins
}

func (n *Node) Logouts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logouts
}

func (n *Node) OpenSessions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

func (n *Node) addUser(username, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	n.users[username] = hash
}

func (n *Node) handleRPC(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcclient.Error{Code: rpcclient.CodeParseError, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF || req.JSONRPC != "2.0" || req.Method == "" {
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcclient.Error{Code: rpcclient.CodeInvalidRequest, Message: "invalid request"},
		})
		return
	}

	token := strings.TrimSpace(r.Header.Get(rpcclient.SessionHeader))
	var (
		result any
		rpcErr *rpcclient.Error
		status = http.StatusOK
	)
	switch req.Method {
	case rpcclient.MethodLogin:
		result, rpcErr = n.login(req.Params)
	case rpcclient.MethodLogout:
		result, rpcErr = n.logout(token)
	default:
		result, rpcErr, status = n.dispatch(req, token, r.Header.Get(rpcclient.RequestIDHeader))
	}
	if rpcErr != nil && rpcErr.Code == rpcclient.CodeUnauthorized {
		status = http.StatusUnauthorized
	}
	writeRPC(w, status, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr})
}

func (n *Node) login(raw json.RawMessage) (any, *rpcclient.Error) {
	var params rpcclient.LoginParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcclient.Error{Code: rpcclient.CodeInvalidParams, Message: "invalid params"}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	hash, ok := n.users[params.Username]
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(params.Password)) != nil {
		return nil, &rpcclient.Error{Code: rpcclient.CodeUnauthorized, Message: "invalid username or password"}
	}
	token := newSessionToken()
	n.sessions[token] = params.Username
	n.logins++
	return rpcclient.LoginResult{SessionToken: token}, nil
}

func (n *Node) logout(token string) (any, *rpcclient.Error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.sessions[token]; !ok {
		return nil, &rpcclient.Error{Code: rpcclient.CodeUnauthorized, Message: "unknown session"}
	}
	delete(n.sessions, token)
	n.logouts++
	return map[string]bool{"ok": true}, nil
}

func (n *Node) dispatch(req rpcRequest, token, requestID string) (any, *rpcclient.Error, int) {
	n.mu.Lock()
	if _, ok := n.sessions[token]; !ok {
		n.mu.Unlock()
		return nil, &rpcclient.Error{Code: rpcclient.CodeUnauthorized, Message: "session required"}, http.StatusUnauthorized
	}
	if !n.limiter.allow(token, time.Now()) {
		n.mu.Unlock()
		return nil, &rpcclient.Error{Code: rpcclient.CodeRateLimited, Message: "rate limit exceeded"}, http.StatusTooManyRequests
	}
	n.calls = append(n.calls, Call{Method: req.Method, Params: req.Params, Session: token, RequestID: requestID})
	failure := n.failures[req.Method]
	handler, ok := n.handlers[req.Method]
	n.mu.Unlock()

	if failure != nil {
		return nil, failure, http.StatusOK
	}
	if !ok {
		return nil, &rpcclient.Error{Code: rpcclient.CodeMethodNotFound, Message: "method not found"}, http.StatusOK
	}
	result, err := handler(req.Params)
	if err != nil {
		var rpcErr *rpcclient.Error
		if errors.As(err, &rpcErr) {
			return nil, rpcErr, http.StatusOK
		}
		return nil, &rpcclient.Error{Code: -32000, Message: err.Error()}, http.StatusOK
	}
	return result, nil, http.StatusOK
}

func writeRPC(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func newSessionToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "sess_" + hex.EncodeToString(buf)
}

type sessionLimiter struct {
	limit rate.Limit
	burst int
	byKey map[string]*rate.Limiter
}

func newSessionLimiter(rps float64, burst int) *sessionLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &sessionLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		byKey: make(map[string]*rate.Limiter),
	}
}

// allow is called with Node.mu held.
func (l *sessionLimiter) allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	lim, ok := l.byKey[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byKey[key] = lim
	}
	return lim.AllowN(now, 1)
}
