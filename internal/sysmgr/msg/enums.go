// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     msg
// Description: Enumerations carried by lifecycle control messages
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package msg

// CloseReason tags why the system is being closed
type CloseReason int

const (
	CloseRegularPowerDown CloseReason = iota
	CloseOnboardingPowerDown
	CloseScreenInvalidated
	CloseLowBattery
	CloseSystemBrownout
	CloseReboot
	CloseRebootToUpdate
	CloseFactoryReset
	CloseUpdate
	CloseRestore
)

// String returns the string representation of the reason
func (r CloseReason) String() string {
	switch r {
	case CloseRegularPowerDown:
		return "RegularPowerDown"
	case CloseOnboardingPowerDown:
		return "OnboardingPowerDown"
	case CloseScreenInvalidated:
		return "ScreenInvalidated"
	case CloseLowBattery:
		return "LowBattery"
	case CloseSystemBrownout:
		return "SystemBrownout"
	case CloseReboot:
		return "Reboot"
	case CloseRebootToUpdate:
		return "RebootToUpdate"
	case CloseFactoryReset:
		return "FactoryReset"
	case CloseUpdate:
		return "Update"
	case CloseRestore:
		return "Restore"
	default:
		return "unknown"
	}
}

// ReturnCode is the outcome carried by a Response
type ReturnCode int

const (
	ReturnSuccess ReturnCode = iota
	ReturnFailure
	ReturnTimeout
	ReturnUnresolved
)

// String returns the string representation of the code
func (c ReturnCode) String() string {
	switch c {
	case ReturnSuccess:
		return "Success"
	case ReturnFailure:
		return "Failure"
	case ReturnTimeout:
		return "Timeout"
	case ReturnUnresolved:
		return "Unresolved"
	default:
		return "unknown"
	}
}

// BatteryLevel is the level state published by the battery store
type BatteryLevel int

const (
	BatteryNormal BatteryLevel = iota
	BatteryShutdown
	BatteryCriticalCharging
	BatteryCriticalNotCharging
)

// String returns the string representation of the level
func (l BatteryLevel) String() string {
	switch l {
	case BatteryNormal:
		return "Normal"
	case BatteryShutdown:
		return "Shutdown"
	case BatteryCriticalCharging:
		return "CriticalCharging"
	case BatteryCriticalNotCharging:
		return "CriticalNotCharging"
	default:
		return "unknown"
	}
}

// BatteryState is the charger state published by the battery store
type BatteryState int

const (
	BatteryCharging BatteryState = iota
	BatteryDischarging
	BatteryChargingDone
	BatteryPluggedNotCharging
)

// String returns the string representation of the state
func (s BatteryState) String() string {
	switch s {
	case BatteryCharging:
		return "Charging"
	case BatteryDischarging:
		return "Discharging"
	case BatteryChargingDone:
		return "ChargingDone"
	case BatteryPluggedNotCharging:
		return "PluggedNotCharging"
	default:
		return "unknown"
	}
}

// PhoneMode is the connectivity mode selected by the hardware slider
type PhoneMode int

const (
	PhoneConnected PhoneMode = iota
	PhoneDoNotDisturb
	PhoneOffline
)

// String returns the string representation of the mode
func (m PhoneMode) String() string {
	switch m {
	case PhoneConnected:
		return "Connected"
	case PhoneDoNotDisturb:
		return "DoNotDisturb"
	case PhoneOffline:
		return "Offline"
	default:
		return "unknown"
	}
}

// Tethering is the USB tethering state
type Tethering int

const (
	TetheringOff Tethering = iota
	TetheringOn
)

// String returns the string representation of the state
func (t Tethering) String() string {
	if t == TetheringOn {
		return "On"
	}
	return "Off"
}

// StartupType is the verdict of a start-allowed query
type StartupType int

const (
	StartupRegular StartupType = iota
	StartupLowBattery
	StartupLowBatteryCharging
)

// String returns the string representation of the verdict
func (s StartupType) String() string {
	switch s {
	case StartupRegular:
		return "Regular"
	case StartupLowBattery:
		return "LowBattery"
	case StartupLowBatteryCharging:
		return "LowBatteryCharging"
	default:
		return "unknown"
	}
}

// PowerMode is the power mode a service is switched to
type PowerMode int

const (
	PowerActive PowerMode = iota
	PowerSuspendToRAM
	PowerSuspendToNVM
)

// String returns the string representation of the mode
func (m PowerMode) String() string {
	switch m {
	case PowerActive:
		return "Active"
	case PowerSuspendToRAM:
		return "SuspendToRAM"
	case PowerSuspendToNVM:
		return "SuspendToNVM"
	default:
		return "unknown"
	}
}

// UpdateReason is carried through to the reboot-to-update primitive
type UpdateReason int

const (
	UpdateRegular UpdateReason = iota
	UpdateRecovery
	UpdateFactoryReset
)

// String returns the string representation of the reason
func (r UpdateReason) String() string {
	switch r {
	case UpdateRegular:
		return "Update"
	case UpdateRecovery:
		return "Recovery"
	case UpdateFactoryReset:
		return "FactoryReset"
	default:
		return "unknown"
	}
}

// KeyCode identifies a hardware key
type KeyCode int

const (
	KeyUnknown KeyCode = iota
	KeyRed
	KeyEnter
	KeySliderUp
	KeySliderMid
	KeySliderDown
)

// String returns the string representation of the key
func (k KeyCode) String() string {
	switch k {
	case KeyRed:
		return "Red"
	case KeyEnter:
		return "Enter"
	case KeySliderUp:
		return "SliderUp"
	case KeySliderMid:
		return "SliderMid"
	case KeySliderDown:
		return "SliderDown"
	default:
		return "Unknown"
	}
}

// FrequencyLevel is a CPU frequency step; Level1 is the lowest
type FrequencyLevel int

const (
	Level1 FrequencyLevel = iota + 1
	Level2
	Level3
	Level4
	Level5
	Level6
)

// MinFrequency and MaxFrequency bound the valid levels
const (
	MinFrequency = Level1
	MaxFrequency = Level6
)

// String returns the string representation of the level
func (l FrequencyLevel) String() string {
	if l < MinFrequency || l > MaxFrequency {
		return "unknown"
	}
	return "Level_" + string(rune('0'+int(l)))
}

// Direction of an explicit CPU frequency request
type Direction int

const (
	Increase Direction = iota
	Decrease
)

// String returns the string representation of the direction
func (d Direction) String() string {
	if d == Decrease {
		return "Decrease"
	}
	return "Increase"
}
