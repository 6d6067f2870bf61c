// Package logging configures the structured logger shared by every Almanac component.
//
// Logs go to stderr: stdout carries CLI JSON output and the MCP stdio transport.
// Level and format come from ALMANAC_LOG_LEVEL (debug|info|warn|error) and
// ALMANAC_LOG_FORMAT (text|json).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Logger returns the process logger, building it from the environment on first use.
func Logger() *slog.Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr, os.Getenv("ALMANAC_LOG_LEVEL"), os.Getenv("ALMANAC_LOG_FORMAT"))
	})
	return defaultLogger
}

// Component returns the process logger tagged with a component name.
func Component(name string) *slog.Logger {
	return Logger().With("component", name)
}

// New builds a logger writing to w. Unknown levels fall back to info,
// unknown formats to text.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
