// Package logger provides the slog logger used by the CLI and the provisioning driver.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables consulted when a flag is left empty.
const (
	EnvLevel  = "NOTES_LOG_LEVEL"
	EnvFormat = "NOTES_LOG_FORMAT"
)

// Options selects the level and format. Empty fields fall back to the
// environment, then to "info" and "text".
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a logger from opts without touching the slog default.
func New(opts Options) *slog.Logger {
	levelStr := opts.Level
	if levelStr == "" {
		levelStr = os.Getenv(EnvLevel)
	}
	formatStr := opts.Format
	if formatStr == "" {
		formatStr = os.Getenv(EnvFormat)
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: parseLevel(levelStr)}

	var handler slog.Handler
	if strings.ToLower(formatStr) == "json" {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}
	return slog.New(handler)
}

// Init builds a logger from opts and installs it as the slog default.
func Init(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
