package traderdemo

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"testing"

	"trader-demo/go-client/internal/rpcclient"
	"trader-demo/go-client/internal/rpcclient/rpctest"
)

func endpointOf(t *testing.T, node *rpctest.Node) Endpoint {
	t.Helper()
	host, portRaw, err := net.SplitHostPort(node.Addr())
	if err != nil {
		t.Fatalf("split node addr: %v", err)
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil {
		t.Fatalf("node port: %v", err)
	}
	return Endpoint{Host: host, Port: port}
}

func flowOK(txID string) rpctest.HandlerFunc {
	return func(json.RawMessage) (any, error) {
		return FlowResult{TxID: txID}, nil
	}
}

func TestDispatcherOverRPCBank(t *testing.T) {
	node := rpctest.NewNode(t)
	node.Handle(MethodRunIssuer, flowOK("tx-issue"))
	cfg := DefaultConfig()
	cfg.BankEndpoint = endpointOf(t, node)

	d := NewDispatcher(cfg, RPCOpener{})
	if err := d.Run(context.Background(), RoleBank); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	calls := node.Calls()
	if len(calls) != 1 || calls[0].Method != MethodRunIssuer {
		t.Fatalf("expected one run_issuer call, got %+v", calls)
	}
	var got IssuerParams
	if err := json.Unmarshal(calls[0].Params, &got); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	want := IssuerParams{
		Amount: Amount{Quantity: 1100, Currency: "USD"},
		Buyer:  DefaultBuyer,
		Seller: DefaultSeller,
		Notary: DefaultNotary,
	}
	if got != want {
		t.Fatalf("params = %+v, want %+v", got, want)
	}
	if node.Logins() != 1 || node.Logouts() != 1 || node.OpenSessions() != 0 {
		t.Fatalf("session not scoped: logins=%d logouts=%d open=%d", node.Logins(), node.Logouts(), node.OpenSessions())
	}
}

func TestDispatcherOverRPCSeller(t *testing.T) {
	node := rpctest.NewNode(t)
	node.Handle(MethodRunSeller, flowOK("tx-sell"))
	cfg := DefaultConfig()
	cfg.SellerEndpoint = endpointOf(t, node)

	d := NewDispatcher(cfg, RPCOpener{Dialer: &rpcclient.Dialer{}})
	if err := d.Run(context.Background(), RoleSeller); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	calls := node.Calls()
	if len(calls) != 1 || calls[0].Method != MethodRunSeller {
		t.Fatalf("expected one run_seller call, got %+v", calls)
	}
	var got map[string]json.RawMessage
	if err := json.Unmarshal(calls[0].Params, &got); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("seller params must carry only amount and buyer, got %v", got)
	}
	if string(got["amount"]) != `{"quantity":1000,"currency":"USD"}` {
		t.Fatalf("unexpected amount %s", got["amount"])
	}
	if string(got["buyer"]) != strconv.Quote(string(DefaultBuyer)) {
		t.Fatalf("unexpected buyer %s", got["buyer"])
	}
	if node.Logouts() != 1 {
		t.Fatalf("expected one logout, got %d", node.Logouts())
	}
}

func TestDispatcherOverRPCFlowFailureStillLogsOut(t *testing.T) {
	node := rpctest.NewNode(t)
	node.Fail(MethodRunIssuer, -32050, "notary rejected transaction")
	cfg := DefaultConfig()
	cfg.BankEndpoint = endpointOf(t, node)

	err := NewDispatcher(cfg, RPCOpener{}).Run(context.Background(), RoleBank)
	var rpcErr *rpcclient.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32050 {
		t.Fatalf("expected remote flow error, got %v", err)
	}
	if node.Logouts() != 1 || node.OpenSessions() != 0 {
		t.Fatalf("expected logout after failure, logouts=%d open=%d", node.Logouts(), node.OpenSessions())
	}
}

func TestDispatcherOverRPCBadCredentials(t *testing.T) {
	node := rpctest.NewNode(t)
	node.Handle(MethodRunSeller, flowOK("tx"))
	cfg := DefaultConfig()
	cfg.SellerEndpoint = endpointOf(t, node)
	cfg.Credentials.Password = "not-demo"

	err := NewDispatcher(cfg, RPCOpener{}).Run(context.Background(), RoleSeller)
	if !errors.Is(err, rpcclient.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(node.Calls()) != 0 {
		t.Fatalf("expected no business call, got %+v", node.Calls())
	}
}
