package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"trader-demo/go-client/internal/platform/privacylog"
)

const LevelEnv = "TRADER_DEMO_LOG_LEVEL"

// New returns a JSON logger writing to w with credential attributes redacted.
func New(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(privacylog.WrapHandler(h))
}

// Setup builds the process logger from TRADER_DEMO_LOG_LEVEL and installs it as
// the slog default. An unparsable level falls back to info and is reported.
func Setup(w io.Writer) *slog.Logger {
	level, err := ParseLevel(os.Getenv(LevelEnv))
	l := New(w, level)
	if err != nil {
		l.Warn("ignoring log level", "env", LevelEnv, "err", err)
	}
	slog.SetDefault(l)
	return l
}

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
}
