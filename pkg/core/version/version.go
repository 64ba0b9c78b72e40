// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     version
// Description: Central version management
// Author:      Mike Stoffels
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package version

// Version constants
const (
	// Platform version
	Platform = "1.0.0"

	// Component versions
	SystemManager = "1.0.0"
	Control       = "1.0.0"
	CLI           = "1.0.0"
)

// ComponentVersion returns the version for a given component name
func ComponentVersion(name string) string {
	switch name {
	case "sysmgr":
		return SystemManager
	case "control":
		return Control
	case "msys":
		return CLI
	default:
		return Platform
	}
}
