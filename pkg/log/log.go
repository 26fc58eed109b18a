// Package log configures the process-wide slog logger used by every chatflow binary.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default logger writing text records to stderr.
func Setup(logLevel string) {
	SetupWithFormat(logLevel, "text")
}

// SetupWithFormat installs the default logger with the given level and format ("text" or "json").
func SetupWithFormat(logLevel, format string) {
	slog.SetDefault(New(os.Stderr, logLevel, format))
}

// New builds a logger without touching the process default.
func New(w io.Writer, logLevel, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(logLevel)}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
