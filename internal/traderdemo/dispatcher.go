// Package traderdemo resolves a demo role to its node and runs that role's flow
// inside a single RPC session.
package traderdemo

import (
	"context"
	"fmt"
	"log/slog"
)

// DispatchRecorder is notified once per Run with the role and its outcome.
type DispatchRecorder interface {
	ObserveDispatch(role string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDispatch(string, error) {}

type DispatcherOption func(*Dispatcher)

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithRecorder(r DispatchRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithClientAPI replaces the factory that builds a ClientAPI over an open Session.
func WithClientAPI(newAPI func(Session) ClientAPI) DispatcherOption {
	return func(d *Dispatcher) {
		if newAPI != nil {
			d.newAPI = newAPI
		}
	}
}

// Dispatcher holds no per-run state, so Run may be called any number of times.
type Dispatcher struct {
	cfg      Config
	opener   SessionOpener
	newAPI   func(Session) ClientAPI
	logger   *slog.Logger
	recorder DispatchRecorder
}

func NewDispatcher(cfg Config, opener SessionOpener, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		opener:   opener,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.newAPI == nil {
		logger := d.logger
		d.newAPI = func(s Session) ClientAPI { return NewRPCClientAPI(s, logger) }
	}
	return d
}

// Run opens a session on the role's node, triggers the role's flow and closes
// the session on every path. BANK issues cash; any other role sells.
func (d *Dispatcher) Run(ctx context.Context, role Role) (retErr error) {
	defer func() {
		d.recorder.ObserveDispatch(role.String(), retErr)
	}()

	endpoint := d.cfg.EndpointFor(role)
	d.logger.Info("dispatching trader demo", "role", role.String(), "endpoint", endpoint.String())

	sess, err := d.opener.Open(ctx, endpoint, d.cfg.Credentials)
	if err != nil {
		return fmt.Errorf("open session to %s: %w", endpoint, err)
	}
	defer func() {
		closeErr := sess.Close(context.WithoutCancel(ctx))
		if closeErr == nil {
			return
		}
		if retErr == nil {
			retErr = fmt.Errorf("close session to %s: %w", endpoint, closeErr)
			return
		}
		d.logger.Warn("close session after failure", "endpoint", endpoint.String(), "err", closeErr)
	}()

	api := d.newAPI(sess)
	if role == RoleBank {
		amount := d.cfg.IssueAmount
		if err := api.RunIssuer(ctx, amount, d.cfg.Buyer, d.cfg.Seller, d.cfg.Notary); err != nil {
			return fmt.Errorf("issue %s to %s: %w", amount, d.cfg.Buyer, err)
		}
		return nil
	}
	amount := d.cfg.SellAmount
	if err := api.RunSeller(ctx, amount, d.cfg.Buyer); err != nil {
		return fmt.Errorf("sell for %s to %s: %w", amount, d.cfg.Buyer, err)
	}
	return nil
}
