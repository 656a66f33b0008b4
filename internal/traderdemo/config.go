package traderdemo

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost           = "localhost"
	DefaultBuyerRPCPort   = 10006
	DefaultSellerRPCPort  = 10009
	DefaultBankRPCPort    = 10012
	DefaultRPCUsername    = "demo"
	DefaultRPCPassword    = "demo"
	DefaultCurrency       = "USD"
	DefaultIssueQuantity  = 1100
	DefaultSellQuantity   = 1000
	DefaultRPCCallTimeout = 30 * time.Second

	ConfigPathEnv     = "TRADER_DEMO_CONFIG"
	usernameEnv       = "TRADER_DEMO_RPC_USERNAME"
	passwordEnv       = "TRADER_DEMO_RPC_PASSWORD"
	bankEndpointEnv   = "TRADER_DEMO_BANK_ENDPOINT"
	sellerEndpointEnv = "TRADER_DEMO_SELLER_ENDPOINT"
	rpcTimeoutEnv     = "TRADER_DEMO_RPC_TIMEOUT"
)

// Party is the X.500 name of a demo counterparty.
type Party string

const (
	DefaultBuyer  Party = "O=Bank A,L=London,C=GB"
	DefaultSeller Party = "O=Bank B,L=New York,C=US"
	DefaultNotary Party = "O=Notary Service,L=Zurich,C=CH"
)

type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

type Amount struct {
	Quantity int64  `yaml:"quantity" json:"quantity"`
	Currency string `yaml:"currency" json:"currency"`
}

func (a Amount) String() string {
	return fmt.Sprintf("%d %s", a.Quantity, a.Currency)
}

type Credentials struct {
	Username string
	Password string
}

type RPCConfig struct {
	Timeout time.Duration
}

// Config is the role to endpoint and identity mapping handed to the Dispatcher.
type Config struct {
	Buyer          Party
	Seller         Party
	Notary         Party
	BuyerEndpoint  Endpoint
	SellerEndpoint Endpoint
	BankEndpoint   Endpoint
	Credentials    Credentials
	IssueAmount    Amount
	SellAmount     Amount
	RPC            RPCConfig
}

func DefaultConfig() Config {
	return Config{
		Buyer:          DefaultBuyer,
		Seller:         DefaultSeller,
		Notary:         DefaultNotary,
		BuyerEndpoint:  Endpoint{Host: DefaultHost, Port: DefaultBuyerRPCPort},
		SellerEndpoint: Endpoint{Host: DefaultHost, Port: DefaultSellerRPCPort},
		BankEndpoint:   Endpoint{Host: DefaultHost, Port: DefaultBankRPCPort},
		Credentials:    Credentials{Username: DefaultRPCUsername, Password: DefaultRPCPassword},
		IssueAmount:    Amount{Quantity: DefaultIssueQuantity, Currency: DefaultCurrency},
		SellAmount:     Amount{Quantity: DefaultSellQuantity, Currency: DefaultCurrency},
		RPC:            RPCConfig{Timeout: DefaultRPCCallTimeout},
	}
}

// EndpointFor resolves the node a role talks to.
func (c Config) EndpointFor(role Role) Endpoint {
	if role == RoleBank {
		return c.BankEndpoint
	}
	return c.SellerEndpoint
}

func (c Config) Validate() error {
	var errs []error
	for name, p := range map[string]Party{"buyer": c.Buyer, "seller": c.Seller, "notary": c.Notary} {
		if strings.TrimSpace(string(p)) == "" {
			errs = append(errs, fmt.Errorf("%s party name is empty", name))
		}
	}
	for name, e := range map[string]Endpoint{"buyer": c.BuyerEndpoint, "seller": c.SellerEndpoint, "bank": c.BankEndpoint} {
		if strings.TrimSpace(e.Host) == "" {
			errs = append(errs, fmt.Errorf("%s endpoint host is empty", name))
		}
		if e.Port < 1 || e.Port > 65535 {
			errs = append(errs, fmt.Errorf("%s endpoint port must be in [1..65535], got %d", name, e.Port))
		}
	}
	for name, a := range map[string]Amount{"issue": c.IssueAmount, "sell": c.SellAmount} {
		if a.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("%s amount must be positive, got %d", name, a.Quantity))
		}
		if !isCurrencyCode(a.Currency) {
			errs = append(errs, fmt.Errorf("%s amount currency is invalid: %q", name, a.Currency))
		}
	}
	if c.RPC.Timeout < 0 {
		errs = append(errs, fmt.Errorf("rpc timeout must not be negative, got %s", c.RPC.Timeout))
	}
	return errors.Join(errs...)
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

type fileConfig struct {
	Parties struct {
		Buyer  string `yaml:"buyer"`
		Seller string `yaml:"seller"`
		Notary string `yaml:"notary"`
	} `yaml:"parties"`
	Endpoints struct {
		Buyer  string `yaml:"buyer"`
		Seller string `yaml:"seller"`
		Bank   string `yaml:"bank"`
	} `yaml:"endpoints"`
	Credentials struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"credentials"`
	Amounts struct {
		Issue Amount `yaml:"issue"`
		Sell  Amount `yaml:"sell"`
	} `yaml:"amounts"`
	RPC struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"rpc"`
}

// LoadConfig starts from DefaultConfig, merges the YAML file at path when one is
// given and applies environment overrides last.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
		if err := merge(&cfg, parsed); err != nil {
			return Config{}, fmt.Errorf("config %q: %w", path, err)
		}
	}
	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(dst *Config, src fileConfig) error {
	if src.Parties.Buyer != "" {
		dst.Buyer = Party(src.Parties.Buyer)
	}
	if src.Parties.Seller != "" {
		dst.Seller = Party(src.Parties.Seller)
	}
	if src.Parties.Notary != "" {
		dst.Notary = Party(src.Parties.Notary)
	}
	for _, ep := range []struct {
		raw string
		dst *Endpoint
	}{
		{src.Endpoints.Buyer, &dst.BuyerEndpoint},
		{src.Endpoints.Seller, &dst.SellerEndpoint},
		{src.Endpoints.Bank, &dst.BankEndpoint},
	} {
		if ep.raw == "" {
			continue
		}
		parsed, err := ParseEndpoint(ep.raw)
		if err != nil {
			return err
		}
		*ep.dst = parsed
	}
	if src.Credentials.Username != "" {
		dst.Credentials.Username = src.Credentials.Username
	}
	if src.Credentials.Password != "" {
		dst.Credentials.Password = src.Credentials.Password
	}
	mergeAmount(&dst.IssueAmount, src.Amounts.Issue)
	mergeAmount(&dst.SellAmount, src.Amounts.Sell)
	if src.RPC.Timeout != 0 {
		dst.RPC.Timeout = src.RPC.Timeout
	}
	return nil
}

func mergeAmount(dst *Amount, src Amount) {
	if src.Quantity != 0 {
		dst.Quantity = src.Quantity
	}
	if src.Currency != "" {
		dst.Currency = strings.ToUpper(src.Currency)
	}
}

func ApplyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(usernameEnv)); v != "" {
		cfg.Credentials.Username = v
	}
	if v := os.Getenv(passwordEnv); v != "" {
		cfg.Credentials.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(bankEndpointEnv)); v != "" {
		ep, err := ParseEndpoint(v)
		if err != nil {
			return fmt.Errorf("%s: %w", bankEndpointEnv, err)
		}
		cfg.BankEndpoint = ep
	}
	if v := strings.TrimSpace(os.Getenv(sellerEndpointEnv)); v != "" {
		ep, err := ParseEndpoint(v)
		if err != nil {
			return fmt.Errorf("%s: %w", sellerEndpointEnv, err)
		}
		cfg.SellerEndpoint = ep
	}
	if v := strings.TrimSpace(os.Getenv(rpcTimeoutEnv)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", rpcTimeoutEnv, err)
		}
		cfg.RPC.Timeout = d
	}
	return nil
}

// ParseEndpoint accepts host:port or a multiaddr such as /ip4/127.0.0.1/tcp/10012.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "/") {
		return parseMultiaddrEndpoint(raw)
	}
	host, portRaw, err := net.SplitHostPort(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", raw, err)
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("endpoint %q: port is invalid", raw)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: host is empty", raw)
	}
	return Endpoint{Host: host, Port: port}, nil
}

func parseMultiaddrEndpoint(raw string) (Endpoint, error) {
	ma, err := multiaddr.NewMultiaddr(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", raw, err)
	}
	var host string
	for _, code := range []int{multiaddr.P_IP4, multiaddr.P_IP6, multiaddr.P_DNS, multiaddr.P_DNS4, multiaddr.P_DNS6} {
		if v, err := ma.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: no ip or dns component", raw)
	}
	portRaw, err := ma.ValueForProtocol(multiaddr.P_TCP)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: no tcp component", raw)
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("endpoint %q: port is invalid", raw)
	}
	return Endpoint{Host: host, Port: port}, nil
}
