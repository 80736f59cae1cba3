package sloglogger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a slog.Logger writing to stderr. Stdout is reserved for
// the MCP stdio transport and must never receive log output. Unknown level
// or format values fall back to info/json so the returned logger is always
// usable, with the error reporting the bad input.
func NewLogger(level, format string) (*slog.Logger, error) {
	var err error

	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		err = fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json", "":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
		if err == nil {
			err = fmt.Errorf("unknown log format %q", format)
		}
	}

	return slog.New(handler), err
}
