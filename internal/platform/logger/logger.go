// Package logger builds the process logger for the CLI and for services
// that do not bring their own.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a text slog.Logger on stderr at the level named by
// SASANA_LOG_LEVEL (debug, info, warn, error; default info).
func New() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("SASANA_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
