// File: entry.go
// Title: Log Entry
// Description: A single log record with its fields.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-10-15

package log

import "time"

// Fields holds structured key-value data attached to an entry
type Fields map[string]interface{}

// Merge returns a new Fields containing f overlaid with other
func (f Fields) Merge(other Fields) Fields {
	out := make(Fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Entry is one log record
type Entry struct {
	Time    time.Time
	Level   Level
	Logger  string
	Message string
	Error   error
	Fields  Fields
}
