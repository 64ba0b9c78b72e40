// File: codes.go
// Title: Error Code Definitions
// Description: Defines the error codes used by the mSYS lifecycle core for
//              consistent classification of startup, shutdown and policy
//              failures.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-10-15
//
// Change History:
// - 2025-01-24 v0.1.0: Initial implementation with core error codes
// - 2026-10-15 v0.2.0: Reduced to lifecycle orchestration codes

package error

// Code represents a structured error code for categorizing errors
type Code string

const (
	// Generic codes
	CodeUnknown  Code = "UNKNOWN"
	CodeInternal Code = "INTERNAL"
	CodeNotFound Code = "NOT_FOUND"
	CodeTimeout  Code = "TIMEOUT"

	// Startup graph
	CodeDependencyCycle   Code = "DEPENDENCY_CYCLE"
	CodeUnknownDependency Code = "UNKNOWN_DEPENDENCY"
	CodeDuplicateService  Code = "DUPLICATE_SERVICE"

	// Service lifecycle
	CodeStartFailed   Code = "START_FAILED"
	CodeChannelClosed Code = "CHANNEL_CLOSED"
	CodeInvalidState  Code = "INVALID_STATE"

	// Boundary input
	CodeInvalidKey   Code = "INVALID_KEY"
	CodeInvalidInput Code = "INVALID_INPUT"

	// Configuration and storage
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeStorageError  Code = "STORAGE_ERROR"
)

// String returns the string representation of the error code
func (c Code) String() string {
	return string(c)
}

// Category returns the high-level category of the error code
func (c Code) Category() string {
	switch c {
	case CodeDependencyCycle, CodeUnknownDependency, CodeDuplicateService:
		return "startup"
	case CodeStartFailed, CodeChannelClosed, CodeInvalidState, CodeTimeout:
		return "lifecycle"
	case CodeInvalidKey, CodeInvalidInput:
		return "input"
	case CodeConfigInvalid:
		return "configuration"
	case CodeStorageError:
		return "storage"
	default:
		return "generic"
	}
}
