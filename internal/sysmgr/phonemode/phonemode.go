// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     phonemode
// Description: Holder of the current phone mode and tethering state with
//              change observers
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package phonemode

import (
	"sync"

	"github.com/msto63/mSYS/internal/sysmgr/msg"
)

// Observer receives the new state after every change
type Observer func(msg.PhoneModeChanged)

// Subject owns the phone mode and tethering state
type Subject struct {
	mu        sync.Mutex
	mode      msg.PhoneMode
	tethering msg.Tethering
	observers []Observer
}

// NewSubject creates a subject in the given initial mode with tethering off
func NewSubject(initial msg.PhoneMode) *Subject {
	return &Subject{mode: initial, tethering: msg.TetheringOff}
}

// Observe registers fn for change notifications
func (s *Subject) Observe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Mode returns the current phone mode
func (s *Subject) Mode() msg.PhoneMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Tethering returns the current tethering state
func (s *Subject) Tethering() msg.Tethering {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tethering
}

// Current returns both values as one notification
func (s *Subject) Current() msg.PhoneModeChanged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return msg.PhoneModeChanged{Mode: s.mode, Tethering: s.tethering}
}

// SetMode changes the phone mode and reports whether it changed
func (s *Subject) SetMode(mode msg.PhoneMode) bool {
	return s.update(func() bool {
		if s.mode == mode {
			return false
		}
		s.mode = mode
		return true
	})
}

// SetTethering changes the tethering state and reports whether it changed
func (s *Subject) SetTethering(state msg.Tethering) bool {
	return s.update(func() bool {
		if s.tethering == state {
			return false
		}
		s.tethering = state
		return true
	})
}

func (s *Subject) update(apply func() bool) bool {
	s.mu.Lock()
	if !apply() {
		s.mu.Unlock()
		return false
	}
	current := msg.PhoneModeChanged{Mode: s.mode, Tethering: s.tethering}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(current)
	}
	return true
}
