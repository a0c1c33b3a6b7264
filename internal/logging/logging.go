// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps LOG_LEVEL values to slog levels.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}

// Init installs a text logger on stderr. LOG_LEVEL overrides def.
func Init(def slog.Level) *slog.Logger {
	return InitWriter(os.Stderr, def)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, def slog.Level) *slog.Logger {
	level := ParseLevel(os.Getenv("LOG_LEVEL"), def)

	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return logger
}
