// Package logging builds the zap loggers used across the daemon.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Levels accepted by New, in increasing severity. "silent" discards everything.
var Levels = []string{"debug", "info", "warn", "error", "silent"}

// New returns a console logger writing to stderr at the given level.
func New(level string) (*zap.Logger, error) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "silent" {
		return zap.NewNop(), nil
	}
	parsed, err := zapcore.ParseLevel(lvl)
	if err != nil || parsed > zapcore.ErrorLevel {
		return nil, fmt.Errorf("invalid log level %q (want one of %s)", level, strings.Join(Levels, ", "))
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.Sampling = nil
	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
