// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     power
// Description: CPU frequency governor: sentinel votes, explicit steps and
//              load-driven base level resolved to one effective level
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package power

import (
	"sync"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// Load thresholds in percent for the load-driven base level
const (
	HighLoadThreshold = 80.0
	LowLoadThreshold  = 20.0
)

// CPUDriver sets the hardware frequency
type CPUDriver interface {
	Level() msg.FrequencyLevel
	SetLevel(level msg.FrequencyLevel) error
}

// DiskControl switches the storage device power state
type DiskControl interface {
	Suspend() error
	Activate() error
}

// SentinelCallback is invoked with the effective level after every change
type SentinelCallback func(level msg.FrequencyLevel)

type sentinel struct {
	name     string
	callback SentinelCallback
	held     bool
	level    msg.FrequencyLevel
}

// Governor resolves the effective CPU frequency level
type Governor struct {
	mu        sync.Mutex
	driver    CPUDriver
	sentinels []*sentinel
	base      msg.FrequencyLevel
	current   msg.FrequencyLevel
	logger    *logging.Logger
}

// NewGovernor creates a governor starting from the driver's current level
func NewGovernor(driver CPUDriver) *Governor {
	level := clampLevel(driver.Level())
	return &Governor{
		driver:  driver,
		base:    level,
		current: level,
		logger:  logging.New("power"),
	}
}

// Level returns the effective level
func (g *Governor) Level() msg.FrequencyLevel {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Sentinels returns the registered sentinel names
func (g *Governor) Sentinels() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, len(g.sentinels))
	for i, s := range g.sentinels {
		names[i] = s.name
	}
	return names
}

// RegisterSentinel adds a named voter. The callback is invoked once with
// the current level.
func (g *Governor) RegisterSentinel(name string, cb SentinelCallback) error {
	g.mu.Lock()
	if g.find(name) != nil {
		g.mu.Unlock()
		return mserror.New("sentinel already registered").
			WithCode(mserror.CodeDuplicateService).
			WithDetail("sentinel", name)
	}
	g.sentinels = append(g.sentinels, &sentinel{name: name, callback: cb})
	level := g.current
	g.mu.Unlock()

	g.logger.Debug("sentinel registered", "sentinel", name)
	if cb != nil {
		cb(level)
	}
	return nil
}

// RemoveSentinel drops a voter together with its vote
func (g *Governor) RemoveSentinel(name string) bool {
	g.mu.Lock()
	idx := -1
	for i, s := range g.sentinels {
		if s.name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		g.mu.Unlock()
		return false
	}
	g.sentinels = append(g.sentinels[:idx], g.sentinels[idx+1:]...)
	g.mu.Unlock()

	g.apply()
	return true
}

// Hold places the sentinel's minimum level vote
func (g *Governor) Hold(name string, level msg.FrequencyLevel) error {
	g.mu.Lock()
	s := g.find(name)
	if s == nil {
		g.mu.Unlock()
		return notFound(name)
	}
	s.held = true
	s.level = clampLevel(level)
	g.mu.Unlock()

	g.apply()
	return nil
}

// Release withdraws the sentinel's vote
func (g *Governor) Release(name string) error {
	g.mu.Lock()
	s := g.find(name)
	if s == nil {
		g.mu.Unlock()
		return notFound(name)
	}
	s.held = false
	g.mu.Unlock()

	g.apply()
	return nil
}

// Increase steps the base level up by one
func (g *Governor) Increase() msg.FrequencyLevel {
	return g.step(1)
}

// Decrease steps the base level down by one
func (g *Governor) Decrease() msg.FrequencyLevel {
	return g.step(-1)
}

// UpdateFromLoad adjusts the base level from a CPU load sample: high load
// jumps to the maximum, low load steps down by one.
func (g *Governor) UpdateFromLoad(load float64) msg.FrequencyLevel {
	switch {
	case load >= HighLoadThreshold:
		g.mu.Lock()
		g.base = msg.MaxFrequency
		g.mu.Unlock()
		return g.apply()
	case load <= LowLoadThreshold:
		return g.step(-1)
	default:
		return g.Level()
	}
}

func (g *Governor) step(delta int) msg.FrequencyLevel {
	g.mu.Lock()
	g.base = clampLevel(g.base + msg.FrequencyLevel(delta))
	g.mu.Unlock()
	return g.apply()
}

// apply recomputes the effective level and, on change, drives the
// hardware and notifies every sentinel
func (g *Governor) apply() msg.FrequencyLevel {
	g.mu.Lock()
	level := g.base
	for _, s := range g.sentinels {
		if s.held && s.level > level {
			level = s.level
		}
	}
	if level == g.current {
		g.mu.Unlock()
		return level
	}
	previous := g.current
	g.current = level
	callbacks := make([]SentinelCallback, 0, len(g.sentinels))
	for _, s := range g.sentinels {
		if s.callback != nil {
			callbacks = append(callbacks, s.callback)
		}
	}
	g.mu.Unlock()

	if err := g.driver.SetLevel(level); err != nil {
		g.logger.Error("failed to set cpu frequency", "cpu_level", level.String(), "error", err)
	}
	g.logger.Debug("cpu frequency changed", "from", previous.String(), "to", level.String())
	for _, cb := range callbacks {
		cb(level)
	}
	return level
}

// find must be called with mu held
func (g *Governor) find(name string) *sentinel {
	for _, s := range g.sentinels {
		if s.name == name {
			return s
		}
	}
	return nil
}

// DiskSentinel suspends the disk at the lowest frequency and activates it
// otherwise
func DiskSentinel(disk DiskControl, logger *logging.Logger) SentinelCallback {
	return func(level msg.FrequencyLevel) {
		var err error
		if level == msg.MinFrequency {
			err = disk.Suspend()
		} else {
			err = disk.Activate()
		}
		if err != nil {
			logger.Warn("disk power switch failed", "cpu_level", level.String(), "error", err)
		}
	}
}

func clampLevel(l msg.FrequencyLevel) msg.FrequencyLevel {
	if l < msg.MinFrequency {
		return msg.MinFrequency
	}
	if l > msg.MaxFrequency {
		return msg.MaxFrequency
	}
	return l
}

func notFound(name string) error {
	return mserror.New("sentinel not registered").
		WithCode(mserror.CodeNotFound).
		WithDetail("sentinel", name)
}
