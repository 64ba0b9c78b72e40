package orchestrator

import (
	"fmt"

	"github.com/msto63/mSYS/internal/sysmgr/bus"
	"github.com/msto63/mSYS/internal/sysmgr/lifecycle"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/internal/sysmgr/power"
	"github.com/msto63/mSYS/internal/sysmgr/shutdown"
)

// dispatch handles one envelope in the Running state. It reports false
// for a message kind it does not know.
func (o *Orchestrator) dispatch(env *bus.Envelope) bool {
	switch m := env.Payload.(type) {
	// commands
	case msg.CloseSystem:
		o.command(env, o.requestClose(m.Reason, closeRequest{kind: closeRegular}))
	case msg.UserPowerDownRequest:
		o.command(env, o.requestClose(msg.CloseRegularPowerDown, closeRequest{kind: closeRegular}))
	case msg.RebootSystem:
		o.command(env, o.requestClose(msg.CloseReboot, closeRequest{kind: closeReboot}))
	case msg.RebootToUpdate:
		accepted := o.requestClose(msg.CloseRebootToUpdate, closeRequest{kind: closeRebootToUpdate})
		if accepted {
			o.updateReason = m.Reason
		}
		o.command(env, accepted)
	case msg.UpdateSystem:
		o.beginRound(msg.CloseUpdate, shutdown.ScenarioUpdate, closeRequest{kind: closeUpdate, requester: env})
	case msg.RestoreSystem:
		o.beginRound(msg.CloseRestore, shutdown.ScenarioRestore, closeRequest{kind: closeRestore, requester: env})
	case msg.ReadyToClose:
		o.coord.Acknowledge(m.Name)

	// battery and keys
	case msg.BatteryStatusChanged:
		o.policy.OnBatteryStatusChanged(m.State)
	case msg.BatteryLevelChanged:
		o.policy.OnBatteryLevelChanged(m.Level)
	case msg.BatteryBrownout:
		o.policy.OnBrownout()
	case msg.KeyPressed:
		o.onKeyPressed(m.Key)
	case msg.CheckIfStartAllowed:
		o.policy.OnCheckIfStartAllowed()
	case msg.CellularStartQuery:
		code := msg.ReturnFailure
		if o.policy.OnCellularStartQuery() {
			code = msg.ReturnSuccess
		}
		env.Reply(msg.Response{Code: code})

	// cpu frequency
	case msg.CpuFrequencyRequest:
		o.policy.OnCpuFrequencyRequest(m.Direction)
	case msg.SentinelRegistration:
		owner := env.Sender
		err := o.governor.RegisterSentinel(m.Name, func(l msg.FrequencyLevel) {
			o.notify(owner, msg.CpuFrequencyChanged{Sentinel: m.Name, Level: l})
		})
		if err == nil {
			o.logger.Debug("sentinel registered", "sentinel", m.Name, "sentinels", o.governor.Sentinels())
		}
		o.reply(env, err)
	case msg.SentinelRemoval:
		if !o.governor.RemoveSentinel(m.Name) {
			o.logger.Warn("removing unknown sentinel", "sentinel", m.Name, "owner", env.Sender)
		}
	case msg.HoldCpuFrequency:
		o.reply(env, o.governor.Hold(m.Sentinel, m.Level))
	case msg.ReleaseCpuFrequency:
		o.reply(env, o.governor.Release(m.Sentinel))

	// devices
	case msg.DeviceRegistration:
		err := o.devices.Register(o.ctx, env.Sender, m.Name, m.Kind)
		if err != nil {
			o.logger.Error("device registration failed", "device", m.Name, "owner", env.Sender, "error", err)
		}
		o.reply(env, err)

	// phone mode
	case msg.PhoneModeRequest:
		o.policy.OnPhoneModeRequest(m.Mode)
	case msg.TetheringStateRequest:
		o.policy.OnTetheringRequest(m.State)
	case msg.TetheringEnabledResponse:
		o.policy.OnTetheringEnabled()

	case msg.TimerFired:
		o.onTimer(m)

	// kinds the system manager only sends
	case msg.Start, msg.Exit, msg.SwitchPowerMode, msg.CloseReasonNotice, msg.Response,
		msg.CriticalBatteryLevel, msg.StartAllowed, msg.TetheringPhoneModeChangeProhibited,
		msg.TetheringQuestionRequest, msg.TetheringQuestionAbort, msg.PhoneModeForceUpdate,
		msg.PhoneModeChanged, msg.CpuFrequencyChanged:
		o.logger.Warn("unexpected message", "sender", env.Sender, "message", messageName(m))
		env.Reply(msg.Response{Code: msg.ReturnUnresolved})

	default:
		o.logger.Error("unhandled message kind", "sender", env.Sender, "message", messageName(m))
		env.Reply(msg.Response{Code: msg.ReturnUnresolved})
		return false
	}
	return true
}

// dispatchShutdown handles the few kinds heard while shut down
func (o *Orchestrator) dispatchShutdown(env *bus.Envelope) {
	switch m := env.Payload.(type) {
	case msg.KeyPressed:
		if m.Key == msg.KeyRed {
			o.machine.Fire(lifecycle.RedKeyPressed)
		}
	case msg.BatteryStatusChanged:
		// the loop re-reads the store
	case msg.TimerFired:
		o.onTimer(m)
	case msg.ReadyToClose:
		o.coord.Acknowledge(m.Name)
	default:
		o.logger.Debug("ignored during shutdown", "message", messageName(m))
		env.Reply(msg.Response{Code: msg.ReturnFailure})
	}
}

func (o *Orchestrator) onKeyPressed(key msg.KeyCode) {
	mode, err := power.TranslateSliderState(key)
	if err != nil {
		o.logger.Debug("key ignored", "key", key.String())
		return
	}
	o.policy.OnPhoneModeRequest(mode)
}

func (o *Orchestrator) onTimer(f msg.TimerFired) {
	switch f.ID {
	case TimerPreShutdown:
		if o.watchdog.Deliver(f) {
			o.coord.OnWatchdogExpired()
		}
	case TimerLowBattery:
		if o.lowBattery.Deliver(f) {
			o.policy.OnLowBatteryTimer()
		}
	case TimerCPUStats:
		if o.cpuStats.Deliver(f) {
			o.policy.OnCpuStatsTimer()
		}
	default:
		o.logger.Warn("unknown timer", "timer", f.ID)
	}
}

// requestClose starts a close routine from the Running state
func (o *Orchestrator) requestClose(reason msg.CloseReason, req closeRequest) bool {
	if o.machine.State() != lifecycle.Running {
		o.logger.Debug("close ignored outside running state", "reason", reason.String())
		return false
	}
	return o.beginRound(reason, shutdown.ScenarioRegularClose, req)
}

// command answers a synchronous command with its acceptance
func (o *Orchestrator) command(env *bus.Envelope, accepted bool) {
	code := msg.ReturnFailure
	if accepted {
		code = msg.ReturnSuccess
	}
	env.Reply(msg.Response{Code: code})
}

func (o *Orchestrator) reply(env *bus.Envelope, err error) {
	code := msg.ReturnSuccess
	if err != nil {
		code = msg.ReturnFailure
	}
	env.Reply(msg.Response{Code: code})
}

func (o *Orchestrator) notify(target string, m msg.Message) {
	notifier{o}.Notify(target, m)
}

func messageName(m msg.Message) string {
	return fmt.Sprintf("%T", m)
}
