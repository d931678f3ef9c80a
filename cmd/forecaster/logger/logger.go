// Package logger provides structured logging configuration for the forecaster.
//
// It creates slog.Logger instances from the forecaster's Config, in text or
// JSON format, at debug, info, warn or error level. Logs go to stdout.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pramodhsway/microcast/cmd/forecaster/config"
)

// New creates the process logger.
func New(cfg *config.Config) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg.LogFormat, cfg.LogLevel)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
