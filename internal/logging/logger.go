// Package logging provides component-scoped zap loggers for tern.
// Until Initialize is called every logger is a no-op, so library code can
// log unconditionally without forcing output on embedders.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[string]*zap.Logger)
)

// Initialize installs the process-wide root logger. Component loggers handed
// out before or after this call all route through it.
func Initialize(debug bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	SetRoot(logger)
	return nil
}

// SetRoot replaces the root logger. Tests use this with an observer core.
func SetRoot(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	for name := range loggers {
		loggers[name] = logger.Named(name)
	}
}

// For returns the named component logger, e.g. For("turn") or For("gemini").
func For(name string) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[name]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[name]; ok {
		return l
	}
	l := root.Named(name)
	loggers[name] = l
	return l
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
