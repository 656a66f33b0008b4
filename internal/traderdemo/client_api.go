package traderdemo

import (
	"context"
	"log/slog"
)

const (
	MethodRunIssuer = "traderdemo.run_issuer"
	MethodRunSeller = "traderdemo.run_seller"
)

// ClientAPI triggers the node-side trader demo flows.
type ClientAPI interface {
	RunIssuer(ctx context.Context, amount Amount, buyer, seller, notary Party) error
	RunSeller(ctx context.Context, amount Amount, buyer Party) error
}

type IssuerParams struct {
	Amount Amount `json:"amount"`
	Buyer  Party  `json:"buyer"`
	Seller Party  `json:"seller"`
	Notary Party  `json:"notary"`
}

type SellerParams struct {
	Amount Amount `json:"amount"`
	Buyer  Party  `json:"buyer"`
}

type FlowResult struct {
	TxID string `json:"tx_id"`
}

// RPCClientAPI issues ClientAPI calls over a single Session.
type RPCClientAPI struct {
	session Session
	logger  *slog.Logger
}

func NewRPCClientAPI(session Session, logger *slog.Logger) *RPCClientAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCClientAPI{session: session, logger: logger}
}

func (c *RPCClientAPI) RunIssuer(ctx context.Context, amount Amount, buyer, seller, notary Party) error {
	var res FlowResult
	params := IssuerParams{Amount: amount, Buyer: buyer, Seller: seller, Notary: notary}
	if err := c.session.Call(ctx, MethodRunIssuer, params, &res); err != nil {
		return err
	}
	c.logger.Info("cash issued", "amount", amount.String(), "buyer", string(buyer), "tx_id", res.TxID)
	return nil
}

func (c *RPCClientAPI) RunSeller(ctx context.Context, amount Amount, buyer Party) error {
	var res FlowResult
	params := SellerParams{Amount: amount, Buyer: buyer}
	if err := c.session.Call(ctx, MethodRunSeller, params, &res); err != nil {
		return err
	}
	c.logger.Info("asset sold", "amount", amount.String(), "buyer", string(buyer), "tx_id", res.TxID)
	return nil
}
