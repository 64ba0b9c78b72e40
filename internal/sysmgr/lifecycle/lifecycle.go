// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     lifecycle
// Description: System state machine: Running, Shutdown, ShutdownReady,
//              Reboot and RebootToUpdate, and the mapping of terminal states
//              to platform power actions
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package lifecycle

import (
	"sync"

	mserror "github.com/msto63/mSYS/foundation/core/error"
)

// State is the system state
type State int

const (
	Running State = iota
	Shutdown
	ShutdownReady
	Reboot
	RebootToUpdate
)

// States lists every state in declaration order
var States = []State{Running, Shutdown, ShutdownReady, Reboot, RebootToUpdate}

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Shutdown:
		return "Shutdown"
	case ShutdownReady:
		return "ShutdownReady"
	case Reboot:
		return "Reboot"
	case RebootToUpdate:
		return "RebootToUpdate"
	default:
		return "unknown"
	}
}

// Event drives a transition
type Event int

const (
	// CloseCompleted: the regular close round finished
	CloseCompleted Event = iota
	// RebootRequested: the close routine before a reboot finished
	RebootRequested
	// RebootToUpdateRequested: the close routine before an update reboot finished
	RebootToUpdateRequested
	// BatteryDischarging: the charger reports discharging while shut down
	BatteryDischarging
	// RedKeyPressed: the user pressed the red key while shut down
	RedKeyPressed
)

// String returns the string representation of the event
func (e Event) String() string {
	switch e {
	case CloseCompleted:
		return "CloseCompleted"
	case RebootRequested:
		return "RebootRequested"
	case RebootToUpdateRequested:
		return "RebootToUpdateRequested"
	case BatteryDischarging:
		return "BatteryDischarging"
	case RedKeyPressed:
		return "RedKeyPressed"
	default:
		return "unknown"
	}
}

// Next is the transition function. It reports false for an event that is
// not valid in state s.
func Next(s State, e Event) (State, bool) {
	switch s {
	case Running:
		switch e {
		case CloseCompleted:
			return Shutdown, true
		case RebootRequested:
			return Reboot, true
		case RebootToUpdateRequested:
			return RebootToUpdate, true
		}
	case Shutdown:
		switch e {
		case BatteryDischarging:
			return ShutdownReady, true
		case RedKeyPressed:
			return Reboot, true
		}
	}
	return s, false
}

// Transition records one state change
type Transition struct {
	From  State
	To    State
	Event Event
}

// Machine owns the system state. Fire is the only writer.
type Machine struct {
	mu        sync.RWMutex
	state     State
	observers []func(Transition)
}

// NewMachine creates a machine in Running
func NewMachine() *Machine {
	return &Machine{state: Running}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Observe registers a callback invoked after every transition
func (m *Machine) Observe(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Fire applies an event. Invalid events leave the state unchanged and
// return false.
func (m *Machine) Fire(e Event) (Transition, bool) {
	m.mu.Lock()
	next, ok := Next(m.state, e)
	if !ok {
		m.mu.Unlock()
		return Transition{From: m.state, To: m.state, Event: e}, false
	}
	t := Transition{From: m.state, To: next, Event: e}
	m.state = next
	observers := append([]func(Transition){}, m.observers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(t)
	}
	return t, true
}

// Action is the platform power primitive for a terminal state
type Action int

const (
	ActionPowerOff Action = iota
	ActionReboot
	ActionRebootToUpdate
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionPowerOff:
		return "PowerOff"
	case ActionReboot:
		return "Reboot"
	case ActionRebootToUpdate:
		return "RebootToUpdate"
	default:
		return "unknown"
	}
}

// Terminal maps a state observed after the control loop exits to its
// power action. Any state other than ShutdownReady, Reboot and
// RebootToUpdate is an internal consistency violation.
func Terminal(s State) (Action, error) {
	switch s {
	case ShutdownReady:
		return ActionPowerOff, nil
	case Reboot:
		return ActionReboot, nil
	case RebootToUpdate:
		return ActionRebootToUpdate, nil
	default:
		return 0, mserror.New("control loop exited in a non-terminal state").
			WithCode(mserror.CodeInvalidState).
			WithDetail("state", s.String())
	}
}
