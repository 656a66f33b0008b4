package rpcclient

import (
	"errors"
	"fmt"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeUnauthorized   = -32001
	CodeRateLimited    = -32029
)

var (
	ErrUnauthorized  = errors.New("rpc unauthorized")
	ErrRateLimited   = errors.New("rpc rate limited")
	ErrSessionClosed = errors.New("rpc session is closed")
)

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == CodeUnauthorized
	case ErrRateLimited:
		return e.Code == CodeRateLimited
	}
	return false
}

// StatusError reports a non-200 HTTP reply that carried no JSON-RPC envelope.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rpc status %d", e.StatusCode)
	}
	return fmt.Sprintf("rpc status %d: %s", e.StatusCode, e.Body)
}
