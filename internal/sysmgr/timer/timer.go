// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     timer
// Description: Timers that deliver their expiry as a message into the
//              owner's inbox. Arming state is explicit and the decision
//              whether an expiry counts is a pure function of that state.
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package timer

import (
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/msto63/mSYS/internal/sysmgr/msg"
)

// State is the arming state of a timer
type State struct {
	Armed      bool
	Generation uint64
	Periodic   bool
}

// Transition decides what an expiry of generation fired means in state s.
// Expiries of a disarmed timer or of an older generation are stale and
// discarded. A single-shot timer disarms when it delivers; a periodic one
// stays armed.
func Transition(s State, fired uint64) (deliver bool, next State) {
	if !s.Armed || fired != s.Generation {
		return false, s
	}
	if s.Periodic {
		return true, s
	}
	next = s
	next.Armed = false
	return true, next
}

// Sink receives expiries; it must not block
type Sink func(msg.TimerFired)

// Timer is a named single-shot or periodic timer
type Timer struct {
	id    string
	clock clock.Clock
	sink  Sink

	mu       sync.Mutex
	interval time.Duration
	state    State
	pending  clock.Timer
}

// New creates a disarmed single-shot timer
func New(id string, clk clock.Clock, interval time.Duration, sink Sink) *Timer {
	return &Timer{id: id, clock: clk, interval: interval, sink: sink}
}

// NewPeriodic creates a disarmed periodic timer
func NewPeriodic(id string, clk clock.Clock, interval time.Duration, sink Sink) *Timer {
	t := New(id, clk, interval, sink)
	t.state.Periodic = true
	return t
}

// ID returns the timer identity carried by its messages
func (t *Timer) ID() string {
	return t.id
}

// Start arms the timer. Starting an armed timer is a no-op and returns
// false.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Armed {
		return false
	}
	t.state.Generation++
	t.state.Armed = true
	t.schedule()
	return true
}

// Stop disarms the timer; an expiry already in flight becomes stale
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarm()
}

// Restart disarms the timer, sets a new interval and arms it again
func (t *Timer) Restart(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.disarm()
	t.interval = interval
	t.state.Generation++
	t.state.Armed = true
	t.schedule()
}

// Interval returns the current interval
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// IsActive reports whether the timer is armed
func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Armed
}

// State returns a copy of the arming state
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Deliver is called by the owner when a TimerFired message for this timer
// is popped from its inbox. It reports whether the expiry is current; a
// periodic timer is re-armed for the next period.
func (t *Timer) Deliver(f msg.TimerFired) bool {
	if f.ID != t.id {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	deliver, next := Transition(t.state, f.Generation)
	t.state = next
	if deliver && next.Armed {
		t.schedule()
	}
	return deliver
}

func (t *Timer) disarm() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	if t.state.Armed {
		t.state.Armed = false
		t.state.Generation++
	}
}

// schedule must be called with mu held
func (t *Timer) schedule() {
	fired := msg.TimerFired{ID: t.id, Generation: t.state.Generation}
	sink := t.sink
	t.pending = t.clock.AfterFunc(t.interval, func() { sink(fired) })
}
