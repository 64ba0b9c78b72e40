// File: format.go
// Title: Log Formatters
// Description: JSON and text formatters for log entries.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-10-15

package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Format selects a formatter
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

// ParseFormat parses a format name. Unknown names select JSON.
func ParseFormat(name string) Format {
	if strings.EqualFold(strings.TrimSpace(name), "text") {
		return FormatText
	}
	return FormatJSON
}

// Formatter renders an entry to bytes, newline included
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// GetFormatter returns the formatter for a format
func GetFormatter(format Format) Formatter {
	if format == FormatText {
		return TextFormatter{}
	}
	return JSONFormatter{}
}

// JSONFormatter writes one JSON object per line. Fields named like an
// envelope key are written as "fields.<key>".
type JSONFormatter struct{}

var reservedKeys = map[string]bool{"time": true, "level": true, "msg": true, "logger": true}

// Format implements Formatter
func (JSONFormatter) Format(entry *Entry) ([]byte, error) {
	data := make(map[string]interface{}, len(entry.Fields)+5)
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		if reservedKeys[k] || (k == "error" && entry.Error != nil) {
			k = "fields." + k
		}
		data[k] = v
	}
	data["time"] = entry.Time.Format(time.RFC3339Nano)
	data["level"] = entry.Level.String()
	data["msg"] = entry.Message
	if entry.Logger != "" {
		data["logger"] = entry.Logger
	}
	if entry.Error != nil {
		data["error"] = entry.Error.Error()
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// TextFormatter writes "time LVL [logger] msg k=v ..." lines with sorted keys
type TextFormatter struct{}

// Format implements Formatter
func (TextFormatter) Format(entry *Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(entry.Time.Format("2006-01-02T15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(entry.Level.ShortString())
	if entry.Logger != "" {
		fmt.Fprintf(&b, " [%s]", entry.Logger)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	if entry.Error != nil {
		fmt.Fprintf(&b, " error=%q", entry.Error.Error())
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
