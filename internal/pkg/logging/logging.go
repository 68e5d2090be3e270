package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the process-wide slog default logger and returns it.
// level accepts anything slog.Level understands ("debug", "info",
// "warn", "error", "warn+2"); unparsable input falls back to info.
// format is "text" for local development, anything else means JSON.
// Every line carries the service name so mapgate logs can be told
// apart from the upstream services it fronts.
func Setup(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "mapgate")
	slog.SetDefault(logger)
	return logger
}
