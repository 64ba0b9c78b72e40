// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     logging
// Description: Factory functions for component loggers on top of the
//              foundation structured logger
// Author:      Mike Stoffels
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package logging

import (
	"io"
	"os"
	"sync"

	mslog "github.com/msto63/mSYS/foundation/core/log"
)

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	// Service or component name
	ServiceName string

	// Log level (trace, debug, info, warn, error)
	Level string

	// Output format: "json" or "text" (default: json)
	Format string

	// Output destination (default: stderr)
	Output io.Writer

	// Additional outputs written alongside Output
	AdditionalOutputs []io.Writer
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig(serviceName string) LoggerConfig {
	return LoggerConfig{
		ServiceName: serviceName,
		Level:       "info",
		Format:      "json",
	}
}

var (
	baseMu     sync.RWMutex
	baseConfig = DefaultLoggerConfig("")
)

// Configure sets the process-wide defaults used by New. It is called once
// by the command entry point after the configuration has been loaded.
func Configure(cfg LoggerConfig) {
	baseMu.Lock()
	defer baseMu.Unlock()
	baseConfig = cfg
}

// NewLogger creates a foundation logger from a configuration
func NewLogger(cfg LoggerConfig) *mslog.Logger {
	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}
	if len(cfg.AdditionalOutputs) > 0 {
		writers := append([]io.Writer{output}, cfg.AdditionalOutputs...)
		output = io.MultiWriter(writers...)
	}

	return mslog.NewWithConfig(mslog.Config{
		Level:  parseLevel(cfg.Level),
		Format: mslog.ParseFormat(cfg.Format),
		Output: output,
		Name:   cfg.ServiceName,
	})
}

// parseLevel converts a string level to mslog.Level
func parseLevel(level string) mslog.Level {
	l, err := mslog.ParseLevel(level)
	if err != nil {
		return mslog.LevelInfo
	}
	return l
}

// Logger wraps the foundation logger with a key-value call style
type Logger struct {
	*mslog.Logger
	name string
}

// New creates a component logger from the process-wide defaults
func New(name string) *Logger {
	baseMu.RLock()
	cfg := baseConfig
	baseMu.RUnlock()
	cfg.ServiceName = name
	return &Logger{Logger: NewLogger(cfg), name: name}
}

// NewWithConfig creates a component logger from an explicit configuration
func NewWithConfig(cfg LoggerConfig) *Logger {
	return &Logger{Logger: NewLogger(cfg), name: cfg.ServiceName}
}

// Discard returns a logger that writes nowhere
func Discard(name string) *Logger {
	return NewWithConfig(LoggerConfig{ServiceName: name, Level: "fatal", Output: io.Discard})
}

// Name returns the component name
func (l *Logger) Name() string { return l.name }

// WithLevel returns a new logger with the specified level
func (l *Logger) WithLevel(level Level) *Logger {
	return &Logger{Logger: l.Logger.WithLevel(level.foundation()), name: l.name}
}

// With returns a logger carrying the given key-value pairs on every entry
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.WithFields(toFields(keysAndValues...)), name: l.name}
}

// WithExitFunc returns a logger whose Fatal calls fn instead of exiting
func (l *Logger) WithExitFunc(fn func(int)) *Logger {
	return &Logger{Logger: l.Logger.WithExitFunc(fn), name: l.name}
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.Logger.Debug(msg, toFields(keysAndValues...))
}

// Info logs an info message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Info(msg, toFields(keysAndValues...))
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.Logger.Warn(msg, toFields(keysAndValues...))
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, toFields(keysAndValues...))
}

// Fatal logs a fatal message with key-value pairs and exits
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.Logger.Fatal(msg, toFields(keysAndValues...))
}

// toFields converts key-value pairs to mslog.Fields
func toFields(keysAndValues ...interface{}) mslog.Fields {
	if len(keysAndValues) == 0 {
		return nil
	}

	fields := make(mslog.Fields)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
