// Package logging provides structured logging for the sync core using
// Go's log/slog package.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/driftsync/driftsync/errors"
)

// Logger is our wrapper around slog.Logger with additional convenience methods
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration
type Config struct {
	Level       string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format      string `json:"format" yaml:"format"`           // text, json
	AddSource   bool   `json:"add_source" yaml:"add_source"`   // whether to add source code information
	Environment string `json:"environment" yaml:"environment"` // dev, prod, test
}

// Default configuration
var DefaultConfig = Config{
	Level:       "info",
	Format:      "json",
	AddSource:   false,
	Environment: "dev",
}

// Global logger instance
var defaultLogger *Logger

// Component identifies the subsystem emitting a log record.
type Component string

func (c Component) LogValue() slog.Value {
	return slog.StringValue(string(c))
}

// SyncErrorValuer provides structured logging for SyncError
type SyncErrorValuer struct {
	*errors.SyncError
}

func (e SyncErrorValuer) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("operation", string(e.Op)),
		slog.String("component", e.Component),
		slog.String("code", string(e.Code)),
		slog.Bool("retryable", e.Retryable),
		slog.String("error", e.Err.Error()),
	}

	if e.Metadata != nil {
		metadataAttrs := make([]slog.Attr, 0, len(e.Metadata))
		for k, v := range e.Metadata {
			metadataAttrs = append(metadataAttrs, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Any("metadata", slog.GroupValue(metadataAttrs...)))
	}

	return slog.GroupValue(attrs...)
}

// NewLogger creates a new logger with the provided configuration
func NewLogger(config Config) *Logger {
	var level slog.Level
	switch config.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "text" || config.Environment == "dev" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Init initializes the global logger with the provided configuration
func Init(config Config) {
	defaultLogger = NewLogger(config)
	slog.SetDefault(defaultLogger.Logger)
}

// Default returns the default logger instance
func Default() *Logger {
	if defaultLogger == nil {
		Init(DefaultConfig)
	}
	return defaultLogger
}

// Discard returns a logger that drops all records. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithComponent creates a child logger with component context
func (l *Logger) WithComponent(component Component) *Logger {
	return &Logger{Logger: l.With(slog.Any("component", component))}
}

// LogError logs an error with structured attributes, expanding SyncError
// fields when present.
func (l *Logger) LogError(ctx context.Context, err error, msg string, attrs ...slog.Attr) {
	allAttrs := make([]any, 0, len(attrs)+1)

	if syncErr, ok := err.(*errors.SyncError); ok {
		allAttrs = append(allAttrs, slog.Any("sync_error", SyncErrorValuer{SyncError: syncErr}))
	} else {
		allAttrs = append(allAttrs, slog.String("error", err.Error()))
	}

	for _, attr := range attrs {
		allAttrs = append(allAttrs, attr)
	}

	l.ErrorContext(ctx, msg, allAttrs...)
}

// WithComponent creates a child of the default logger with component context.
func WithComponent(component Component) *Logger {
	return Default().WithComponent(component)
}
