// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     msg
// Description: Closed set of lifecycle control messages exchanged over the
//              bus. Message is sealed: only types in this package satisfy it.
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package msg

// Message is implemented by every control message
type Message interface {
	isMessage()
}

type sealed struct{}

func (sealed) isMessage() {}

// ---------------------------------------------------------------------------
// Manager to service
// ---------------------------------------------------------------------------

// Start asks a freshly started service to initialize
type Start struct{ sealed }

// Exit asks a service to deinitialize and stop
type Exit struct{ sealed }

// SwitchPowerMode asks a service to change its power mode
type SwitchPowerMode struct {
	sealed
	Mode PowerMode
}

// CloseReasonNotice is the shutdown broadcast of a handshake round
type CloseReasonNotice struct {
	sealed
	Reason CloseReason
}

// Response answers a synchronous request
type Response struct {
	sealed
	Code ReturnCode
}

// ---------------------------------------------------------------------------
// Commands to the system manager
// ---------------------------------------------------------------------------

// CloseSystem begins a regular shutdown
type CloseSystem struct {
	sealed
	Reason CloseReason
}

// UpdateSystem begins an update teardown
type UpdateSystem struct{ sealed }

// RestoreSystem begins a factory-restore teardown
type RestoreSystem struct{ sealed }

// RebootSystem closes the system and reboots
type RebootSystem struct{ sealed }

// RebootToUpdate closes the system and reboots into the updater
type RebootToUpdate struct {
	sealed
	Reason UpdateReason
}

// UserPowerDownRequest is the user's request to power off
type UserPowerDownRequest struct{ sealed }

// ReadyToClose acknowledges a CloseReasonNotice
type ReadyToClose struct {
	sealed
	Name string
}

// ---------------------------------------------------------------------------
// Telemetry
// ---------------------------------------------------------------------------

// BatteryStatusChanged reports a new charger state
type BatteryStatusChanged struct {
	sealed
	State BatteryState
}

// BatteryLevelChanged reports a new battery level state
type BatteryLevelChanged struct {
	sealed
	Level BatteryLevel
}

// BatteryBrownout reports a voltage brownout
type BatteryBrownout struct{ sealed }

// KeyPressed reports a hardware key press
type KeyPressed struct {
	sealed
	Key KeyCode
}

// CellularStartQuery asks whether the modem may be powered
type CellularStartQuery struct{ sealed }

// CheckIfStartAllowed asks for a start-allowed verdict
type CheckIfStartAllowed struct{ sealed }

// CpuFrequencyRequest explicitly steps the CPU frequency
type CpuFrequencyRequest struct {
	sealed
	Direction Direction
}

// DeviceRegistration announces a new device
type DeviceRegistration struct {
	sealed
	Name string
	Kind string
}

// SentinelRegistration registers a CPU frequency sentinel owned by the sender
type SentinelRegistration struct {
	sealed
	Name string
}

// SentinelRemoval removes a CPU frequency sentinel
type SentinelRemoval struct {
	sealed
	Name string
}

// HoldCpuFrequency places a sentinel's minimum frequency vote
type HoldCpuFrequency struct {
	sealed
	Sentinel string
	Level    FrequencyLevel
}

// ReleaseCpuFrequency withdraws a sentinel's vote
type ReleaseCpuFrequency struct {
	sealed
	Sentinel string
}

// PhoneModeRequest asks to change the phone mode
type PhoneModeRequest struct {
	sealed
	Mode PhoneMode
}

// TetheringStateRequest asks to change the tethering state
type TetheringStateRequest struct {
	sealed
	State Tethering
}

// TetheringEnabledResponse confirms tethering after the user accepted it
type TetheringEnabledResponse struct{ sealed }

// TimerFired is delivered into the owner's inbox when a timer expires
type TimerFired struct {
	sealed
	ID         string
	Generation uint64
}

// ---------------------------------------------------------------------------
// Notifications from the system manager
// ---------------------------------------------------------------------------

// CriticalBatteryLevel notifies that the critical condition was entered or left
type CriticalBatteryLevel struct {
	sealed
	Critical bool
	Charging bool
}

// StartAllowed carries a start-allowed verdict
type StartAllowed struct {
	sealed
	Type StartupType
}

// TetheringPhoneModeChangeProhibited rejects a phone mode change
type TetheringPhoneModeChangeProhibited struct{ sealed }

// TetheringQuestionRequest asks the user to confirm tethering
type TetheringQuestionRequest struct{ sealed }

// TetheringQuestionAbort withdraws a pending tethering question
type TetheringQuestionAbort struct{ sealed }

// PhoneModeForceUpdate asks the event manager to republish the phone mode
type PhoneModeForceUpdate struct{ sealed }

// PhoneModeChanged announces the current phone mode and tethering state
type PhoneModeChanged struct {
	sealed
	Mode      PhoneMode
	Tethering Tethering
}

// CpuFrequencyChanged notifies a sentinel owner of the effective level
type CpuFrequencyChanged struct {
	sealed
	Sentinel string
	Level    FrequencyLevel
}

// Kinds returns one zero value of every message type. Dispatch tables use
// it to verify that every kind is handled.
func Kinds() []Message {
	return []Message{
		Start{}, Exit{}, SwitchPowerMode{}, CloseReasonNotice{}, Response{},
		CloseSystem{}, UpdateSystem{}, RestoreSystem{}, RebootSystem{}, RebootToUpdate{},
		UserPowerDownRequest{}, ReadyToClose{},
		BatteryStatusChanged{}, BatteryLevelChanged{}, BatteryBrownout{}, KeyPressed{},
		CellularStartQuery{}, CheckIfStartAllowed{}, CpuFrequencyRequest{},
		DeviceRegistration{}, SentinelRegistration{}, SentinelRemoval{},
		HoldCpuFrequency{}, ReleaseCpuFrequency{},
		PhoneModeRequest{}, TetheringStateRequest{}, TetheringEnabledResponse{}, TimerFired{},
		CriticalBatteryLevel{}, StartAllowed{}, TetheringPhoneModeChangeProhibited{},
		TetheringQuestionRequest{}, TetheringQuestionAbort{}, PhoneModeForceUpdate{},
		PhoneModeChanged{}, CpuFrequencyChanged{},
	}
}
