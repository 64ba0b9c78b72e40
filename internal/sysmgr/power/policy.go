// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     power
// Description: Battery and connectivity policy: battery level reactions,
//              start-allowed verdicts, cellular power, phone mode and
//              tethering rules, CPU statistics sampling
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package power

import (
	"time"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/internal/sysmgr/phonemode"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// Platform is the device power primitive layer
type Platform interface {
	Reboot() error
	RebootToUpdate(reason msg.UpdateReason) error
	PowerOff() error
	SetCellularPower(on bool) error
}

// BatteryStore publishes the current battery readings
type BatteryStore interface {
	Level() msg.BatteryLevel
	State() msg.BatteryState
}

// LoadSampler measures the CPU load in percent
type LoadSampler interface {
	Sample() (float64, error)
}

// Notifier delivers outbound notifications to a named participant
type Notifier interface {
	Notify(target string, m msg.Message)
}

// Closer begins a regular close round. It reports whether the close was
// accepted, either started or queued behind a running round.
type Closer interface {
	CloseSystem(reason msg.CloseReason) bool
}

// Timer is the subset of timer.Timer the policy drives
type Timer interface {
	Start() bool
	Restart(interval time.Duration)
	Interval() time.Duration
	IsActive() bool
}

// Config wires the policy to its collaborators
type Config struct {
	Platform           Platform
	Battery            BatteryStore
	Notifier           Notifier
	Closer             Closer
	Governor           *Governor
	Sampler            LoadSampler
	PhoneMode          *phonemode.Subject
	LowBatteryTimer    Timer
	CPUStatsTimer      Timer
	CPUStatsInitial    time.Duration
	CPUStatsPeriod     time.Duration
	ApplicationManager string
	EventManager       string
}

// Policy applies the battery and connectivity rules. All methods are
// called from the owner's control loop.
type Policy struct {
	cfg    Config
	logger *logging.Logger

	levelHandling bool
	lastLevel     msg.BatteryLevel
	levelKnown    bool
}

// NewPolicy creates a policy; level handling starts disabled
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg, logger: logging.New("power")}
}

// EnableLevelHandling turns on reactions to battery level changes. It is
// called once all system services run.
func (p *Policy) EnableLevelHandling() {
	p.levelHandling = true
}

// OnBatteryLevelChanged reacts to a level only when it differs from the
// last handled one. It reports whether the level was acted upon. The
// Shutdown level counts as handled only once its close was accepted, so
// the next reading at that level retries.
func (p *Policy) OnBatteryLevelChanged(level msg.BatteryLevel) bool {
	if !p.levelHandling {
		return false
	}
	if p.levelKnown && level == p.lastLevel {
		return false
	}

	p.logger.Info("battery level changed", "battery_level", level.String())
	switch level {
	case msg.BatteryNormal:
		p.setCellular(true)
		p.cfg.Notifier.Notify(p.cfg.ApplicationManager, msg.CriticalBatteryLevel{Critical: false})
	case msg.BatteryShutdown:
		if !p.cfg.Closer.CloseSystem(msg.CloseLowBattery) {
			p.logger.Warn("low battery close not accepted", "battery_level", level.String())
			return false
		}
	case msg.BatteryCriticalCharging:
		p.setCellular(false)
		p.cfg.Notifier.Notify(p.cfg.ApplicationManager, msg.CriticalBatteryLevel{Critical: true, Charging: true})
	case msg.BatteryCriticalNotCharging:
		p.setCellular(false)
		p.cfg.Notifier.Notify(p.cfg.ApplicationManager, msg.CriticalBatteryLevel{Critical: true, Charging: false})
	}
	p.levelKnown = true
	p.lastLevel = level
	return true
}

// OnBatteryStatusChanged re-evaluates the level, since the critical
// levels depend on the charger state
func (p *Policy) OnBatteryStatusChanged(state msg.BatteryState) bool {
	p.logger.Debug("battery status changed", "state", state.String())
	return p.OnBatteryLevelChanged(p.cfg.Battery.Level())
}

// OnBrownout closes the system without any level check
func (p *Policy) OnBrownout() {
	p.logger.Warn("battery brownout detected")
	p.cfg.Closer.CloseSystem(msg.CloseSystemBrownout)
}

// StartVerdict maps a battery level to the start-allowed verdict
func StartVerdict(level msg.BatteryLevel) msg.StartupType {
	switch level {
	case msg.BatteryShutdown, msg.BatteryCriticalNotCharging:
		return msg.StartupLowBattery
	case msg.BatteryCriticalCharging:
		return msg.StartupLowBatteryCharging
	default:
		return msg.StartupRegular
	}
}

// OnCheckIfStartAllowed sends the verdict to the application manager. At
// the Shutdown level the low battery timer is armed as well.
func (p *Policy) OnCheckIfStartAllowed() msg.StartupType {
	level := p.cfg.Battery.Level()
	verdict := StartVerdict(level)
	if level == msg.BatteryShutdown && p.cfg.LowBatteryTimer != nil {
		p.cfg.LowBatteryTimer.Start()
	}
	p.cfg.Notifier.Notify(p.cfg.ApplicationManager, msg.StartAllowed{Type: verdict})
	return verdict
}

// OnLowBatteryTimer closes the system after the low battery grace period
func (p *Policy) OnLowBatteryTimer() {
	p.cfg.Closer.CloseSystem(msg.CloseLowBattery)
}

// OnCellularStartQuery powers the modem on at the Normal level and off at
// the critical levels. At the Shutdown level the modem is left alone,
// the close round takes care of it.
func (p *Policy) OnCellularStartQuery() bool {
	switch p.cfg.Battery.Level() {
	case msg.BatteryNormal:
		p.setCellular(true)
		return true
	case msg.BatteryCriticalCharging, msg.BatteryCriticalNotCharging:
		p.setCellular(false)
	}
	return false
}

// OnCpuFrequencyRequest steps the governor and restarts the statistics
// timer with its initial delay
func (p *Policy) OnCpuFrequencyRequest(d msg.Direction) msg.FrequencyLevel {
	var level msg.FrequencyLevel
	if d == msg.Decrease {
		level = p.cfg.Governor.Decrease()
	} else {
		level = p.cfg.Governor.Increase()
	}
	if p.cfg.CPUStatsTimer != nil {
		p.cfg.CPUStatsTimer.Restart(p.cfg.CPUStatsInitial)
	}
	return level
}

// OnCpuStatsTimer samples the load and feeds the governor. The periodic
// timer is switched to the sampling period after its initial delay.
func (p *Policy) OnCpuStatsTimer() {
	if p.cfg.Sampler != nil {
		load, err := p.cfg.Sampler.Sample()
		if err != nil {
			p.logger.Warn("cpu load sample failed", "error", err)
		} else {
			p.cfg.Governor.UpdateFromLoad(load)
		}
	}
	if t := p.cfg.CPUStatsTimer; t != nil && t.Interval() != p.cfg.CPUStatsPeriod {
		t.Restart(p.cfg.CPUStatsPeriod)
	}
}

// OnPhoneModeRequest applies a phone mode unless tethering is active
func (p *Policy) OnPhoneModeRequest(mode msg.PhoneMode) bool {
	if p.cfg.PhoneMode.Tethering() == msg.TetheringOn {
		p.logger.Info("phone mode change prohibited while tethering", "mode", mode.String())
		p.cfg.Notifier.Notify(p.cfg.ApplicationManager, msg.TetheringPhoneModeChangeProhibited{})
		return false
	}
	p.cfg.PhoneMode.SetMode(mode)
	return true
}

// OnTetheringRequest handles a tethering state request. Enabling only asks
// the user; the state changes on OnTetheringEnabled.
func (p *Policy) OnTetheringRequest(state msg.Tethering) bool {
	if level := p.cfg.Battery.Level(); level != msg.BatteryNormal {
		p.logger.Info("tethering rejected on battery level", "battery_level", level.String())
		p.cfg.Notifier.Notify(p.cfg.ApplicationManager, msg.TetheringQuestionAbort{})
		return false
	}
	if state == msg.TetheringOn {
		p.cfg.Notifier.Notify(p.cfg.ApplicationManager, msg.TetheringQuestionRequest{})
		return true
	}
	if !p.cfg.PhoneMode.SetTethering(msg.TetheringOff) {
		p.cfg.Notifier.Notify(p.cfg.ApplicationManager, msg.TetheringQuestionAbort{})
		return false
	}
	p.cfg.Notifier.Notify(p.cfg.EventManager, msg.PhoneModeForceUpdate{})
	return true
}

// OnTetheringEnabled applies the user's confirmation
func (p *Policy) OnTetheringEnabled() {
	p.cfg.PhoneMode.SetTethering(msg.TetheringOn)
}

func (p *Policy) setCellular(on bool) {
	if err := p.cfg.Platform.SetCellularPower(on); err != nil {
		p.logger.Warn("cellular power switch failed", "on", on, "error", err)
	}
}

// TranslateSliderState maps a slider key to its phone mode
func TranslateSliderState(key msg.KeyCode) (msg.PhoneMode, error) {
	switch key {
	case msg.KeySliderUp:
		return msg.PhoneConnected, nil
	case msg.KeySliderMid:
		return msg.PhoneDoNotDisturb, nil
	case msg.KeySliderDown:
		return msg.PhoneOffline, nil
	default:
		return 0, mserror.Newf("key %s is not a slider position", key).
			WithCode(mserror.CodeInvalidKey).
			WithDetail("key", key.String())
	}
}
