// Package logging provides categorized logging for animagen, backed by zap.
// Each subsystem logs through its own named logger so a single category can
// be silenced from config without touching call sites.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // startup, config loading
	CategoryAPI      Category = "api"      // LLM provider calls
	CategoryPipeline Category = "pipeline" // correction loop
	CategoryRender   Category = "render"   // render gateway calls
	CategorySafety   Category = "safety"   // generated-code validation
	CategoryServer   Category = "server"   // web shell
	CategoryStore    Category = "store"    // run history persistence
)

var (
	mu       sync.RWMutex
	base     *zap.Logger
	nop      = zap.NewNop().Sugar()
	loggers  = make(map[Category]*zap.SugaredLogger)
	enabled  map[string]bool
	initDone bool
)

// Options controls logger construction.
type Options struct {
	Level      string          // debug, info, warn, error
	Verbose    bool            // forces debug level
	Categories map[string]bool // per-category toggles; nil enables all
}

// Initialize builds the process-wide logger. Safe to call once at startup;
// later calls replace the previous logger.
func Initialize(opts Options) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	} else if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			return err
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	base = logger
	enabled = opts.Categories
	loggers = make(map[Category]*zap.SugaredLogger)
	initDone = true
	return nil
}

// Get returns the sugared logger for a category. Before Initialize, or when
// the category is disabled, a nop logger is returned so call sites never nil-check.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if !initDone {
		mu.RUnlock()
		return nop
	}
	if enabled != nil {
		if on, ok := enabled[string(cat)]; ok && !on {
			mu.RUnlock()
			return nop
		}
	}
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := base.Named(string(cat)).Sugar()
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Called before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}
