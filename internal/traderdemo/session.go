package traderdemo

import (
	"context"

	"trader-demo/go-client/internal/rpcclient"
)

// Session is a scoped, authenticated connection used for one operation.
type Session interface {
	Call(ctx context.Context, method string, params, result any) error
	Close(ctx context.Context) error
}

type SessionOpener interface {
	Open(ctx context.Context, endpoint Endpoint, creds Credentials) (Session, error)
}

// RPCOpener opens sessions over HTTP JSON-RPC.
type RPCOpener struct {
	Dialer *rpcclient.Dialer
}

func (o RPCOpener) Open(ctx context.Context, endpoint Endpoint, creds Credentials) (Session, error) {
	d := o.Dialer
	if d == nil {
		d = &rpcclient.Dialer{}
	}
	sess, err := d.Open(ctx, endpoint.String(), creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
