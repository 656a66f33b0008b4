package rpcclient

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

const requestIDBytes = 12

// newRequestID returns a short base58 correlation id sent as X-Request-ID.
func newRequestID() (string, error) {
	buf := make([]byte, requestIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "req_" + base58.Encode(buf), nil
}
