// Command trader-demo triggers the trader demo flows on nodes that are already
// running locally.
//
//	trader-demo --role BANK    # issue 1100 USD to the buyer via the bank node
//	trader-demo --role SELLER  # sell the asset to the buyer for 1000 USD
//
// TRADER_DEMO_CONFIG may point at a YAML file overriding the demo endpoints,
// parties, credentials and amounts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"trader-demo/go-client/internal/platform/logging"
	"trader-demo/go-client/internal/platform/metrics"
	"trader-demo/go-client/internal/rpcclient"
	"trader-demo/go-client/internal/traderdemo"
)

const (
	exitOK            = 0
	exitUsage         = 1
	exitInvalidConfig = 10
	exitNetworkFailed = 20
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

// run is main without the process exit. A nil opener dials the nodes over RPC.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opener traderdemo.SessionOpener) int {
	logger := logging.Setup(stderr)

	fs := flag.NewFlagSet("trader-demo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var role traderdemo.Role
	fs.Var(&role, "role", "demo `role` to run: "+strings.Join(roleNames(), " or ")+" (required)")
	if err := parseArgs(fs, args, &role); err != nil {
		logger.Error(err.Error())
		printUsage(stdout, fs)
		return exitUsage
	}

	cfg, err := traderdemo.LoadConfig(os.Getenv(traderdemo.ConfigPathEnv))
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		return exitInvalidConfig
	}

	m := metrics.New()
	if opener == nil {
		opener = traderdemo.RPCOpener{Dialer: &rpcclient.Dialer{
			Timeout:  cfg.RPC.Timeout,
			Logger:   logger,
			Observer: m,
		}}
	}
	d := traderdemo.NewDispatcher(cfg, opener, traderdemo.WithLogger(logger), traderdemo.WithRecorder(m))
	runErr := d.Run(ctx, role)
	writeMetrics(logger, m)

	if runErr != nil {
		logger.Error("trader demo failed", "role", role.String(), "remote", rpcclient.IsRemote(runErr), "err", runErr)
		return exitNetworkFailed
	}
	logger.Info("trader demo finished", "role", role.String())
	return exitOK
}

func parseArgs(fs *flag.FlagSet, args []string, role *traderdemo.Role) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if *role == 0 {
		return errors.New("missing required option: role")
	}
	return nil
}

func writeMetrics(logger *slog.Logger, m *metrics.Metrics) {
	path := strings.TrimSpace(os.Getenv(metrics.TextfileEnv))
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn("write metrics textfile", "path", path, "err", err)
	}
}

func roleNames() []string {
	names := make([]string, 0, 2)
	for _, r := range traderdemo.Roles() {
		names = append(names, r.String())
	}
	return names
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	writeln(w, "Usage: trader-demo --role ["+strings.Join(roleNames(), "|")+"]")
	writeln(w, "Please refer to the documentation in docs/build/index.html for more info.")
	writeln(w, "")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
}

func writeln(w io.Writer, line string) {
	_, _ = fmt.Fprintln(w, line)
}
