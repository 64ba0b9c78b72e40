// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     platform
// Description: Simulated device platform: power primitives, CPU frequency
//              driver, disk power control and battery readings
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package platform

import (
	"sync"

	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// Action is a recorded terminal power primitive
type Action string

const (
	ActionNone           Action = ""
	ActionPowerOff       Action = "power_off"
	ActionReboot         Action = "reboot"
	ActionRebootToUpdate Action = "reboot_to_update"
)

// Simulated records every platform call instead of touching hardware
type Simulated struct {
	mu           sync.Mutex
	action       Action
	updateReason msg.UpdateReason
	cellular     bool
	initHooks    int
	logger       *logging.Logger
}

// NewSimulated creates a simulated platform
func NewSimulated() *Simulated {
	return &Simulated{logger: logging.New("platform")}
}

// Init runs the platform init hooks
func (s *Simulated) Init() error {
	s.mu.Lock()
	s.initHooks++
	s.mu.Unlock()
	s.logger.Debug("platform initialized")
	return nil
}

// InitUserSpace runs once all system services are up
func (s *Simulated) InitUserSpace() error {
	s.logger.Debug("user space initialized")
	return nil
}

func (s *Simulated) Reboot() error {
	return s.record(ActionReboot)
}

func (s *Simulated) RebootToUpdate(reason msg.UpdateReason) error {
	s.mu.Lock()
	s.updateReason = reason
	s.mu.Unlock()
	return s.record(ActionRebootToUpdate)
}

func (s *Simulated) PowerOff() error {
	return s.record(ActionPowerOff)
}

func (s *Simulated) SetCellularPower(on bool) error {
	s.mu.Lock()
	s.cellular = on
	s.mu.Unlock()
	s.logger.Debug("cellular power", "on", on)
	return nil
}

// Action returns the terminal primitive called, if any
func (s *Simulated) Action() Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.action
}

// UpdateReason returns the reason passed to RebootToUpdate
func (s *Simulated) UpdateReason() msg.UpdateReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateReason
}

// CellularPowered reports the modem power state
func (s *Simulated) CellularPowered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cellular
}

func (s *Simulated) record(a Action) error {
	s.mu.Lock()
	s.action = a
	s.mu.Unlock()
	s.logger.Info("platform power primitive", "action", string(a))
	return nil
}

// CPU is a simulated frequency driver
type CPU struct {
	mu    sync.Mutex
	level msg.FrequencyLevel
}

// NewCPU creates a driver at the given level
func NewCPU(level msg.FrequencyLevel) *CPU {
	return &CPU{level: level}
}

func (c *CPU) Level() msg.FrequencyLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

func (c *CPU) SetLevel(level msg.FrequencyLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
	return nil
}

// Disk is a simulated storage power switch
type Disk struct {
	mu        sync.Mutex
	suspended bool
}

func (d *Disk) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspended = true
	return nil
}

func (d *Disk) Activate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspended = false
	return nil
}

// Suspended reports the disk power state
func (d *Disk) Suspended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suspended
}

// Battery is an in-memory battery store
type Battery struct {
	mu    sync.RWMutex
	level msg.BatteryLevel
	state msg.BatteryState
}

// NewBattery creates a battery store with the given readings
func NewBattery(level msg.BatteryLevel, state msg.BatteryState) *Battery {
	return &Battery{level: level, state: state}
}

func (b *Battery) Level() msg.BatteryLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.level
}

func (b *Battery) State() msg.BatteryState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Set updates both readings
func (b *Battery) Set(level msg.BatteryLevel, state msg.BatteryState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = level
	b.state = state
}
