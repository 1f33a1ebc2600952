// Package logging provides categorized structured logging for freightflow.
// Each pipeline subsystem logs under its own named zap logger so batch runs
// can be filtered per concern. Before Init the package is a silent no-op,
// which keeps unit tests quiet.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names one logging subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"
	CategoryPattern    Category = "pattern"
	CategoryRules      Category = "rules"
	CategoryExtract    Category = "extract"
	CategoryLLM        Category = "llm"
	CategoryNormalize  Category = "normalize"
	CategoryConfidence Category = "confidence"
	CategoryShipment   Category = "shipment"
	CategoryAttention  Category = "attention"
	CategoryProcessor  Category = "processor"
	CategoryStore      Category = "store"
	CategoryMemory     Category = "memory"
	CategoryServer     Category = "server"
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Init installs the process-wide root logger. Verbose enables debug level.
func Init(verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	SetRoot(logger)
	return nil
}

// SetRoot replaces the root logger. Tests install zaptest loggers here.
func SetRoot(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
}

// L returns the sugared logger for a category. Safe before Init: a nop
// logger is returned until a root is installed.
func L(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if lg, ok := loggers[cat]; ok {
		mu.RUnlock()
		return lg
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if lg, ok := loggers[cat]; ok {
		return lg
	}
	base := root
	if base == nil {
		base = zap.NewNop()
	}
	lg := base.Named(string(cat)).Sugar()
	loggers[cat] = lg
	return lg
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
