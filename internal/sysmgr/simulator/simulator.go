// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     simulator
// Description: Simulated system services and applications for running the
//              lifecycle core without a device. Behavior per service comes
//              from configuration.
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package simulator

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/msto63/mSYS/internal/sysmgr/bus"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/internal/sysmgr/service"
	"github.com/msto63/mSYS/pkg/core/config"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// Mode selects how a simulated service misbehaves
type Mode string

const (
	// ModeNormal answers every request
	ModeNormal Mode = ""
	// ModeSilent never acknowledges a close notice
	ModeSilent Mode = "silent"
	// ModeStuck blocks in its first deinitialization until closed
	ModeStuck Mode = "stuck"
	// ModeFailStart reports a failure on the start request
	ModeFailStart Mode = "fail_start"
)

// Handler is a simulated service behavior that records what it receives
type Handler struct {
	name   string
	mode   Mode
	logger *logging.Logger

	mu      sync.Mutex
	events  []string
	journal func(string)
	release chan struct{}
	stuck   atomic.Bool
	closed  sync.Once
}

// NewHandler creates a simulated handler
func NewHandler(name string, mode Mode) *Handler {
	return &Handler{
		name:    name,
		mode:    mode,
		logger:  logging.New("simulator").With("service", name),
		release: make(chan struct{}),
	}
}

// Name returns the service name
func (h *Handler) Name() string { return h.name }

// Events returns the recorded events in arrival order
func (h *Handler) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

// Received reports whether event was recorded
func (h *Handler) Received(event string) bool {
	for _, e := range h.Events() {
		if e == event {
			return true
		}
	}
	return false
}

func (h *Handler) record(format string, args ...interface{}) {
	event := fmt.Sprintf(format, args...)
	h.mu.Lock()
	h.events = append(h.events, event)
	journal := h.journal
	h.mu.Unlock()
	if journal != nil {
		journal(h.name + ":" + event)
	}
}

func (h *Handler) InitHandler() msg.ReturnCode {
	h.record("init")
	if h.mode == ModeFailStart {
		return msg.ReturnFailure
	}
	return msg.ReturnSuccess
}

func (h *Handler) DeinitHandler() msg.ReturnCode {
	h.record("deinit")
	if h.mode == ModeStuck && h.stuck.CompareAndSwap(false, true) {
		h.logger.Warn("deinit blocked")
		<-h.release
	}
	return msg.ReturnSuccess
}

func (h *Handler) SwitchPowerModeHandler(mode msg.PowerMode) msg.ReturnCode {
	h.record("power:%s", mode)
	return msg.ReturnSuccess
}

func (h *Handler) DataReceivedHandler(env *bus.Envelope) msg.Message {
	h.record("data:%T", env.Payload)
	if env.ExpectsReply() {
		return msg.Response{Code: msg.ReturnSuccess}
	}
	return nil
}

// ProcessCloseReason acknowledges the close notice unless silent
func (h *Handler) ProcessCloseReason(reason msg.CloseReason, ready func()) {
	h.record("close:%s", reason)
	if h.mode == ModeSilent {
		h.logger.Debug("ignoring close notice", "reason", reason.String())
		return
	}
	ready()
}

// CloseHandler releases a blocked deinitialization
func (h *Handler) CloseHandler() {
	h.record("closed")
	h.closed.Do(func() { close(h.release) })
}

// Fleet builds descriptors for simulated services and keeps their handlers.
// Events of all its handlers are also kept in one journal, in the order
// they happened.
type Fleet struct {
	mu       sync.Mutex
	handlers map[string]*Handler
	journal  []string
}

// NewFleet creates an empty fleet
func NewFleet() *Fleet {
	return &Fleet{handlers: make(map[string]*Handler)}
}

// Handler returns the handler built for name, if any
func (f *Fleet) Handler(name string) (*Handler, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handlers[name]
	return h, ok
}

// Journal returns "service:event" entries of the whole fleet. With a
// non-empty filter only the entries with one of the given events are kept.
func (f *Fleet) Journal(filter ...string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, entry := range f.journal {
		if len(filter) == 0 {
			out = append(out, entry)
			continue
		}
		for _, event := range filter {
			if strings.HasSuffix(entry, ":"+event) {
				out = append(out, strings.TrimSuffix(entry, ":"+event))
				break
			}
		}
	}
	return out
}

func (f *Fleet) note(entry string) {
	f.mu.Lock()
	f.journal = append(f.journal, entry)
	f.mu.Unlock()
}

// Descriptor declares one simulated service
func (f *Fleet) Descriptor(sc config.ServiceConfig) service.Descriptor {
	name, mode := sc.Name, Mode(sc.Simulate)
	return service.Descriptor{
		Name:         name,
		StartTimeout: sc.StartTimeout.Duration,
		CloseTimeout: sc.CloseTimeout.Duration,
		Dependencies: sc.Dependencies,
		Application:  sc.Application,
		Factory: func() service.Handler {
			h := NewHandler(name, mode)
			h.journal = f.note
			f.mu.Lock()
			f.handlers[name] = h
			f.mu.Unlock()
			return h
		},
	}
}

// Descriptors splits the configured services into system services and
// applications, keeping declaration order
func (f *Fleet) Descriptors(services []config.ServiceConfig) (system, apps []service.Descriptor) {
	for _, sc := range services {
		d := f.Descriptor(sc)
		if d.Application {
			apps = append(apps, d)
		} else {
			system = append(system, d)
		}
	}
	return system, apps
}
