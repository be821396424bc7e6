// Package logging builds the *slog.Logger handed to every linecheck component.
// There is no package-level logger: callers construct one at startup and
// inject it explicitly.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Format selects the log line layout.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
)

// levelOff is above every standard level and disables output.
const levelOff = slog.Level(100)

// New returns a logger writing to w at the given level and format.
// Unknown formats fall back to human.
func New(w io.Writer, level slog.Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewHandler(w, opts))
}

// NewDiscard returns a logger that drops everything. Used in tests and
// whenever a component is constructed without a logger.
func NewDiscard() *slog.Logger {
	return slog.New(NewHandler(io.Discard, &slog.HandlerOptions{Level: levelOff}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return NewDiscard()
	}
	return l
}

// LevelFromString converts debug, info, warn/warning, error (any case).
// Unrecognized strings map to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "off", "none":
		return levelOff
	default:
		return slog.LevelInfo
	}
}
