// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     shutdown
// Description: Shutdown handshake rounds: broadcast the close reason, collect
//              acknowledgments under a watchdog, then tear down every service
//              the scenario does not keep
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package shutdown

import (
	"sync"
	"time"

	"github.com/google/uuid"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/internal/sysmgr/registry"
	"github.com/msto63/mSYS/internal/sysmgr/service"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// Scenario selects the whitelist of a round
type Scenario int

const (
	ScenarioUpdate Scenario = iota
	ScenarioRestore
	ScenarioRegularClose
	ScenarioPowerOff
)

// Scenarios lists every scenario
var Scenarios = []Scenario{ScenarioUpdate, ScenarioRestore, ScenarioRegularClose, ScenarioPowerOff}

// String returns the string representation of the scenario
func (s Scenario) String() string {
	switch s {
	case ScenarioUpdate:
		return "update"
	case ScenarioRestore:
		return "restore"
	case ScenarioRegularClose:
		return "regular_close"
	case ScenarioPowerOff:
		return "power_off"
	default:
		return "unknown"
	}
}

// Whitelists maps each scenario to the names it keeps running.
// ScenarioPowerOff keeps nothing unless configured otherwise.
type Whitelists map[Scenario][]string

// Messenger carries the round's messages to the services
type Messenger interface {
	// NotifyCloseReason sends the close broadcast to one service
	NotifyCloseReason(target string, reason msg.CloseReason) error
	// RequestClose sends a graceful Exit and reports whether it succeeded
	// within timeout
	RequestClose(target string, timeout time.Duration) bool
}

// Watchdog is the timer bounding the acknowledgment phase
type Watchdog interface {
	Start() bool
	Stop()
}

// Round is the record of one handshake round
type Round struct {
	ID           uuid.UUID
	Scenario     Scenario
	Reason       msg.CloseReason
	Notified     []string
	Unresponsive []string
	Kept         []string
	Destroyed    []string
	Killed       []string
}

// Coordinator runs handshake rounds over the service collection. It is
// driven from the owner's control loop; the mutex only protects readers
// on other goroutines.
type Coordinator struct {
	services   *registry.Collection[service.Handle]
	messenger  Messenger
	watchdog   Watchdog
	whitelists map[Scenario]map[string]bool
	onComplete func(Round)
	logger     *logging.Logger

	mu      sync.Mutex
	active  bool
	round   Round
	pending []string
}

// New creates a coordinator
func New(services *registry.Collection[service.Handle], messenger Messenger, watchdog Watchdog, whitelists Whitelists) *Coordinator {
	sets := make(map[Scenario]map[string]bool, len(Scenarios))
	for _, s := range Scenarios {
		set := make(map[string]bool)
		for _, name := range whitelists[s] {
			set[name] = true
		}
		sets[s] = set
	}
	return &Coordinator{
		services:   services,
		messenger:  messenger,
		watchdog:   watchdog,
		whitelists: sets,
		onComplete: func(Round) {},
		logger:     logging.New("shutdown"),
	}
}

// OnComplete sets the callback invoked when a round finishes
func (c *Coordinator) OnComplete(fn func(Round)) {
	c.onComplete = fn
}

// Whitelisted reports whether scenario keeps name
func (c *Coordinator) Whitelisted(s Scenario, name string) bool {
	return c.whitelists[s][name]
}

// Active reports whether a round is in progress
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Pending returns the names still awaiting acknowledgment
func (c *Coordinator) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pending...)
}

// BeginClose starts a round: every registered service, in the
// collection's order, receives the close reason and becomes pending.
// Only one round runs at a time.
func (c *Coordinator) BeginClose(reason msg.CloseReason, scenario Scenario) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return mserror.New("handshake round already in progress").
			WithCode(mserror.CodeInvalidState).
			WithDetail("scenario", scenario.String())
	}
	c.active = true
	c.round = Round{ID: uuid.New(), Scenario: scenario, Reason: reason}
	c.pending = nil
	c.mu.Unlock()

	c.logger.Info("close round started",
		"round", c.round.ID.String(), "scenario", scenario.String(), "reason", reason.String())

	for _, h := range c.services.Snapshot() {
		name := h.Name()
		if err := c.messenger.NotifyCloseReason(name, reason); err != nil {
			c.logger.Warn("close notice not delivered", "service", name, "error", err)
			continue
		}
		c.mu.Lock()
		c.pending = append(c.pending, name)
		c.round.Notified = append(c.round.Notified, name)
		c.mu.Unlock()
	}

	c.mu.Lock()
	empty := len(c.pending) == 0
	c.mu.Unlock()
	if empty {
		c.finish()
		return nil
	}
	c.watchdog.Start()
	return nil
}

// Acknowledge removes name from the pending set. Unknown and repeated
// acknowledgments are ignored. The last acknowledgment finishes the round.
func (c *Coordinator) Acknowledge(name string) bool {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return false
	}
	idx := -1
	for i, p := range c.pending {
		if p == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		c.logger.Debug("ignoring acknowledgment", "service", name)
		return false
	}
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	empty := len(c.pending) == 0
	c.mu.Unlock()

	if empty {
		c.watchdog.Stop()
		c.finish()
	}
	return true
}

// OnWatchdogExpired reports every pending service as non-responsive,
// clears the pending set and finishes the round.
func (c *Coordinator) OnWatchdogExpired() {
	c.mu.Lock()
	if !c.active || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	silent := c.pending
	c.pending = nil
	c.round.Unresponsive = append(c.round.Unresponsive, silent...)
	scenario := c.round.Scenario
	c.mu.Unlock()

	for _, name := range silent {
		c.logger.Error("service did not respond to close notice",
			"service", name, "whitelisted", c.Whitelisted(scenario, name))
	}
	c.finish()
}

func (c *Coordinator) finish() {
	c.mu.Lock()
	round := c.round
	c.mu.Unlock()

	kept, destroyed, killed := c.DestroyServices(round.Scenario)
	round.Kept, round.Destroyed, round.Killed = kept, destroyed, killed

	c.mu.Lock()
	c.active = false
	c.round = Round{}
	c.mu.Unlock()

	c.logger.Info("close round finished",
		"round", round.ID.String(),
		"scenario", round.Scenario.String(),
		"kept", len(kept),
		"destroyed", len(destroyed),
		"killed", len(killed),
		"unresponsive", len(round.Unresponsive))
	c.onComplete(round)
}

// DestroyServices closes every registered service the scenario does not
// keep. Each gets a graceful Exit bounded by its close timeout; when that
// does not succeed the service is killed. Either way it is unregistered.
func (c *Coordinator) DestroyServices(scenario Scenario) (kept, destroyed, killed []string) {
	keep := c.whitelists[scenario]
	c.services.Sweep(func(h service.Handle) bool {
		name := h.Name()
		if keep[name] {
			kept = append(kept, name)
			return false
		}
		if !c.messenger.RequestClose(name, h.CloseTimeout()) {
			c.logger.Warn("graceful close failed, killing service", "service", name)
			h.Kill()
			killed = append(killed, name)
		}
		destroyed = append(destroyed, name)
		return true
	})
	return kept, destroyed, killed
}
