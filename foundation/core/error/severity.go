// File: severity.go
// Title: Error Severity Levels
// Description: Severity levels used to decide how loudly an error is logged
//              and whether it aborts the lifecycle core.
// Author: msto63
// Version: v0.2.0
// Created: 2025-01-24
// Modified: 2026-10-15

package error

// Severity represents the severity level of an error
type Severity int

const (
	// SeverityLow is a rejected request that leaves the system untouched.
	SeverityLow Severity = iota
	// SeverityMedium is a degraded condition the core recovers from locally.
	SeverityMedium
	// SeverityHigh is a configuration or storage failure.
	SeverityHigh
	// SeverityCritical aborts startup or the process.
	SeverityCritical
)

// String returns the string representation of the severity level
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// IsFatal reports whether errors of this severity end the process.
func (s Severity) IsFatal() bool {
	return s >= SeverityCritical
}

// GetSeverityFromCode determines the severity level for an error code
func GetSeverityFromCode(code Code) Severity {
	switch code {
	case CodeDependencyCycle, CodeUnknownDependency, CodeStartFailed, CodeInvalidState:
		return SeverityCritical
	case CodeDuplicateService, CodeConfigInvalid, CodeStorageError, CodeInternal:
		return SeverityHigh
	case CodeInvalidKey, CodeInvalidInput, CodeNotFound:
		return SeverityLow
	default:
		return SeverityMedium
	}
}
