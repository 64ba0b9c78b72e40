// File: logger.go
// Title: Core Logger Implementation
// Description: Structured logger with persistent fields, level filtering and
//              pluggable formatters. Clones are cheap and share the output.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-10-15
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with structured logging
// - 2026-10-15 v0.2.0: Dropped async mode, added injectable exit for Fatal

package log

import (
	"io"
	"os"
	"sync"
	"time"

	mserror "github.com/msto63/mSYS/foundation/core/error"
)

// Config represents logger configuration
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
	Name   string
}

// Logger is a structured logger. All methods are safe for concurrent use.
type Logger struct {
	level     Level
	formatter Formatter
	name      string
	fields    Fields
	out       *syncWriter
	exit      func(int)
	now       func() time.Time
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(p)
}

// New creates a logger writing JSON to stdout at info level
func New() *Logger {
	return NewWithConfig(Config{Level: LevelInfo, Format: FormatJSON})
}

// NewWithConfig creates a logger from a configuration
func NewWithConfig(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		level:     cfg.Level,
		formatter: GetFormatter(cfg.Format),
		name:      cfg.Name,
		fields:    Fields{},
		out:       &syncWriter{w: out},
		exit:      os.Exit,
		now:       time.Now,
	}
}

func (l *Logger) clone() *Logger {
	c := *l
	c.fields = l.fields.Merge(nil)
	return &c
}

// WithLevel returns a clone with a different minimum level
func (l *Logger) WithLevel(level Level) *Logger {
	c := l.clone()
	c.level = level
	return c
}

// WithName returns a clone with a different logger name
func (l *Logger) WithName(name string) *Logger {
	c := l.clone()
	c.name = name
	return c
}

// WithField returns a clone carrying an additional persistent field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	c := l.clone()
	c.fields[key] = value
	return c
}

// WithFields returns a clone carrying additional persistent fields
func (l *Logger) WithFields(fields Fields) *Logger {
	c := l.clone()
	c.fields = c.fields.Merge(fields)
	return c
}

// WithExitFunc returns a clone whose Fatal calls fn instead of os.Exit
func (l *Logger) WithExitFunc(fn func(int)) *Logger {
	c := l.clone()
	c.exit = fn
	return c
}

// Name returns the logger name
func (l *Logger) Name() string { return l.name }

// Level returns the minimum level
func (l *Logger) Level() Level { return l.level }

// IsLevelEnabled reports whether level would be written
func (l *Logger) IsLevelEnabled(level Level) bool { return level.Enabled(l.level) }

// Trace logs at trace level
func (l *Logger) Trace(message string, fields ...Fields) { l.log(LevelTrace, message, nil, fields) }

// Debug logs at debug level
func (l *Logger) Debug(message string, fields ...Fields) { l.log(LevelDebug, message, nil, fields) }

// Info logs at info level
func (l *Logger) Info(message string, fields ...Fields) { l.log(LevelInfo, message, nil, fields) }

// Warn logs at warn level
func (l *Logger) Warn(message string, fields ...Fields) { l.log(LevelWarn, message, nil, fields) }

// Error logs at error level
func (l *Logger) Error(message string, fields ...Fields) { l.log(LevelError, message, nil, fields) }

// ErrorWithErr logs at error level with an attached error
func (l *Logger) ErrorWithErr(message string, err error, fields ...Fields) {
	l.log(LevelError, message, err, fields)
}

// Fatal logs at fatal level and exits with status 1
func (l *Logger) Fatal(message string, fields ...Fields) {
	l.log(LevelFatal, message, nil, fields)
	l.exit(1)
}

// LogError logs err at a level derived from its severity. Coded errors
// contribute their code and details as fields.
func (l *Logger) LogError(err error) {
	if err == nil {
		return
	}
	fields := Fields{}
	level := LevelError
	if code := mserror.GetCode(err); code != mserror.CodeUnknown {
		fields["error_code"] = code.String()
		sev := mserror.GetSeverity(err)
		fields["error_severity"] = sev.String()
		switch sev {
		case mserror.SeverityLow:
			level = LevelInfo
		case mserror.SeverityMedium:
			level = LevelWarn
		}
	}
	l.log(level, err.Error(), nil, []Fields{fields})
}

func (l *Logger) log(level Level, message string, err error, extra []Fields) {
	if !level.Enabled(l.level) {
		return
	}
	entry := &Entry{
		Time:    l.now(),
		Level:   level,
		Logger:  l.name,
		Message: message,
		Error:   err,
		Fields:  l.fields,
	}
	if len(extra) > 0 {
		merged := l.fields
		for _, f := range extra {
			merged = merged.Merge(f)
		}
		entry.Fields = merged
	}
	data, ferr := l.formatter.Format(entry)
	if ferr != nil {
		return
	}
	l.out.write(data)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New()
)

// GetDefault returns the process-wide default logger
func GetDefault() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide default logger
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}
