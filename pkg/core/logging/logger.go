// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     logging
// Description: Level type of the key-value logging facade
// Author:      Mike Stoffels
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package logging

import mslog "github.com/msto63/mSYS/foundation/core/log"

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) foundation() mslog.Level {
	switch l {
	case LevelDebug:
		return mslog.LevelDebug
	case LevelWarn:
		return mslog.LevelWarn
	case LevelError:
		return mslog.LevelError
	default:
		return mslog.LevelInfo
	}
}
