package traderdemo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{usernameEnv, passwordEnv, bankEndpointEnv, sellerEndpointEnv, rpcTimeoutEnv} {
		t.Setenv(name, "")
	}
}

func TestDefaultConfigMatchesDemoConstants(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.EndpointFor(RoleBank).String() != "localhost:10012" {
		t.Fatalf("unexpected bank endpoint %s", cfg.EndpointFor(RoleBank))
	}
	if cfg.EndpointFor(RoleSeller).String() != "localhost:10009" {
		t.Fatalf("unexpected seller endpoint %s", cfg.EndpointFor(RoleSeller))
	}
	if cfg.BuyerEndpoint.Port != 10006 {
		t.Fatalf("unexpected buyer port %d", cfg.BuyerEndpoint.Port)
	}
	if cfg.Credentials.Username != "demo" || cfg.Credentials.Password != "demo" {
		t.Fatalf("unexpected credentials %+v", cfg.Credentials)
	}
	if cfg.IssueAmount.String() != "1100 USD" || cfg.SellAmount.String() != "1000 USD" {
		t.Fatalf("unexpected amounts %s / %s", cfg.IssueAmount, cfg.SellAmount)
	}
}

func TestLoadConfigWithoutPathUsesDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigMergesFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "trader-demo.yaml")
	data := `
parties:
  notary: "O=Other Notary,L=Paris,C=FR"
endpoints:
  bank: /ip4/127.0.0.1/tcp/20012
  seller: node-b.internal:20009
credentials:
  username: ops
amounts:
  issue:
    quantity: 2500
    currency: gbp
rpc:
  timeout: 5s
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Notary != "O=Other Notary,L=Paris,C=FR" || cfg.Buyer != DefaultBuyer {
		t.Fatalf("unexpected parties %q / %q", cfg.Notary, cfg.Buyer)
	}
	if cfg.BankEndpoint != (Endpoint{Host: "127.0.0.1", Port: 20012}) {
		t.Fatalf("unexpected bank endpoint %+v", cfg.BankEndpoint)
	}
	if cfg.SellerEndpoint != (Endpoint{Host: "node-b.internal", Port: 20009}) {
		t.Fatalf("unexpected seller endpoint %+v", cfg.SellerEndpoint)
	}
	if cfg.Credentials != (Credentials{Username: "ops", Password: "demo"}) {
		t.Fatalf("unexpected credentials %+v", cfg.Credentials)
	}
	if cfg.IssueAmount != (Amount{Quantity: 2500, Currency: "GBP"}) {
		t.Fatalf("unexpected issue amount %+v", cfg.IssueAmount)
	}
	if cfg.SellAmount != DefaultConfig().SellAmount {
		t.Fatalf("sell amount should keep its default, got %+v", cfg.SellAmount)
	}
	if cfg.RPC.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.RPC.Timeout)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "trader-demo.yaml")
	if err := os.WriteFile(path, []byte("credentials:\n  password: from-file\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(passwordEnv, "from-env")
	t.Setenv(bankEndpointEnv, "/dns/bank.local/tcp/31012")
	t.Setenv(rpcTimeoutEnv, "750ms")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Credentials.Password != "from-env" {
		t.Fatalf("expected env password, got %q", cfg.Credentials.Password)
	}
	if cfg.BankEndpoint != (Endpoint{Host: "bank.local", Port: 31012}) {
		t.Fatalf("unexpected bank endpoint %+v", cfg.BankEndpoint)
	}
	if cfg.RPC.Timeout != 750*time.Millisecond {
		t.Fatalf("unexpected timeout %s", cfg.RPC.Timeout)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}
	cases := []struct {
		name string
		path string
		want string
	}{
		{"missing file", filepath.Join(dir, "absent.yaml"), "read config"},
		{"bad yaml", write("bad.yaml", "parties: [unterminated"), "parse config"},
		{"bad endpoint", write("ep.yaml", "endpoints:\n  bank: no-port\n"), "endpoint"},
		{"bad amount", write("amt.yaml", "amounts:\n  sell:\n    quantity: -3\n"), "sell amount must be positive"},
		{"bad currency", write("cur.yaml", "amounts:\n  issue:\n    currency: dollars\n"), "currency is invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(tc.path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(rpcTimeoutEnv, "soon")
	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), rpcTimeoutEnv) {
		t.Fatalf("expected timeout env error, got %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw  string
		want Endpoint
	}{
		{"localhost:10012", Endpoint{Host: "localhost", Port: 10012}},
		{"[::1]:10009", Endpoint{Host: "::1", Port: 10009}},
		{"/ip4/127.0.0.1/tcp/10006", Endpoint{Host: "127.0.0.1", Port: 10006}},
		{"/ip6/::1/tcp/10009", Endpoint{Host: "::1", Port: 10009}},
		{"/dns4/node.example/tcp/443", Endpoint{Host: "node.example", Port: 443}},
	}
	for _, tc := range cases {
		got, err := ParseEndpoint(tc.raw)
		if err != nil {
			t.Fatalf("ParseEndpoint(%q) failed: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseEndpoint(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
	if (Endpoint{Host: "::1", Port: 10009}).String() != "[::1]:10009" {
		t.Fatal("ipv6 endpoint must render bracketed")
	}
}

func TestParseEndpointRejects(t *testing.T) {
	for _, raw := range []string{"", "localhost", "localhost:0", "localhost:http", ":10012", "/ip4/127.0.0.1", "/tcp/10012", "/ip4/999.0.0.1/tcp/1"} {
		if _, err := ParseEndpoint(raw); err == nil {
			t.Fatalf("ParseEndpoint(%q): expected error", raw)
		}
	}
}
