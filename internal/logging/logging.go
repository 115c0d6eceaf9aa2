// Package logging builds the slog logger used by valvectl.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level and destination.
type Config struct {
	Level string

	// File enables JSON logs with rotation instead of text on Output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool

	// Output defaults to stderr so command output on stdout stays clean.
	Output io.Writer
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New creates the logger. The returned closer releases the log file, if any.
func New(cfg Config) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: normaliseErrorKey,
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.File == "" {
		return slog.New(slog.NewTextHandler(out, opts)), nopCloser{}
	}

	// Create log directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		logger := slog.New(slog.NewTextHandler(out, opts))
		logger.Warn("Failed to create log directory, logging to stderr", "path", cfg.File, "err", err)
		return logger, nopCloser{}
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	return slog.New(slog.NewJSONHandler(writer, opts)), writer
}

// normaliseErrorKey makes "error" and "err" attributes land under one key
func normaliseErrorKey(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == "error" {
		a.Key = "err"
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
