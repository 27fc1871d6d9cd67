// Package logging provides structured logging for the medallion pipeline.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("silver")
//	log.Info("enrichment finished", "rows", 1200)
//
//	// Log with run context
//	ctx = logging.ContextWithRunID(ctx, runID)
//	logging.WithContext(ctx).Error("stage failed", "error", err)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stdout, level, jsonFormat)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
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

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("gold")
//	log.Info("started") // Output: time=... level=INFO component=gold msg=started
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With("component", name)
}

// WithContext returns a logger that includes run-scoped context values.
func WithContext(ctx context.Context) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}

	logger := Logger

	if runID, ok := ctx.Value(contextKeyRunID).(string); ok {
		logger = logger.With("run_id", runID)
	}
	if layer, ok := ctx.Value(contextKeyLayer).(string); ok {
		logger = logger.With("layer", layer)
	}

	return logger
}

// ComponentContext combines Component and WithContext.
func ComponentContext(ctx context.Context, name string) *slog.Logger {
	return WithContext(ctx).With("component", name)
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyRunID contextKey = iota
	contextKeyLayer
)

// ContextWithRunID adds a pipeline run ID to the context for logging.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKeyRunID, runID)
}

// ContextWithLayer adds the active layer name to the context for logging.
func ContextWithLayer(ctx context.Context, layer string) context.Context {
	return context.WithValue(ctx, contextKeyLayer, layer)
}
