// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     orchestrator
// Description: The system manager: starts services in dependency order,
//              runs the control loop, drives shutdown rounds and the
//              lifecycle state machine and hands off to the platform
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package orchestrator

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/juju/clock"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/bus"
	"github.com/msto63/mSYS/internal/sysmgr/device"
	"github.com/msto63/mSYS/internal/sysmgr/graph"
	"github.com/msto63/mSYS/internal/sysmgr/lifecycle"
	"github.com/msto63/mSYS/internal/sysmgr/metrics"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/internal/sysmgr/phonemode"
	"github.com/msto63/mSYS/internal/sysmgr/power"
	"github.com/msto63/mSYS/internal/sysmgr/registry"
	"github.com/msto63/mSYS/internal/sysmgr/service"
	"github.com/msto63/mSYS/internal/sysmgr/shutdown"
	"github.com/msto63/mSYS/internal/sysmgr/timer"
	"github.com/msto63/mSYS/pkg/core/config"
	"github.com/msto63/mSYS/pkg/core/health"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// DefaultName is the bus name of the system manager
const DefaultName = "SystemManager"

// Timer IDs
const (
	TimerPreShutdown = "preShutdown"
	TimerLowBattery  = "lowBattery"
	TimerCPUStats    = "cpuStatistics"
)

// Platform is the device layer the orchestrator hands off to
type Platform interface {
	power.Platform
	// Init runs before any service starts
	Init() error
	// InitUserSpace runs once every system service is up
	InitUserSpace() error
}

// HealthRefresher re-evaluates the externally reported health
type HealthRefresher interface {
	Refresh(ctx context.Context) *health.Report
}

// Options configures an Orchestrator
type Options struct {
	Name         string
	Services     []service.Descriptor
	Applications []service.Descriptor
	Names        config.NamesConfig
	Timeouts     config.TimeoutsConfig
	Whitelists   shutdown.Whitelists

	Bus      *bus.Bus
	Clock    clock.Clock
	Platform Platform
	Battery  power.BatteryStore
	CPU      power.CPUDriver
	Disk     power.DiskControl
	Sampler  power.LoadSampler
	Devices  *device.Manager

	Metrics *metrics.Collector
	Health  HealthRefresher

	// Abort is called after the fatal log when the control loop ends in
	// a state without a power action. It defaults to os.Exit(1).
	Abort  func(error)
	Logger *logging.Logger
}

// OptionsFromConfig fills names, timeouts and whitelists from cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Names:    cfg.Names,
		Timeouts: cfg.Timeouts,
		Whitelists: shutdown.Whitelists{
			shutdown.ScenarioUpdate:       cfg.Whitelists.Update,
			shutdown.ScenarioRestore:      cfg.Whitelists.Restore,
			shutdown.ScenarioRegularClose: cfg.Whitelists.RegularClose,
		},
	}
}

type closeKind int

const (
	closeNone closeKind = iota
	closeRegular
	closeReboot
	closeRebootToUpdate
	closeUpdate
	closeRestore
	closeFinal
)

// closeRequest is what to do once the running round completes
type closeRequest struct {
	kind      closeKind
	requester *bus.Envelope
}

// deferredClose waits for a running update or restore round
type deferredClose struct {
	reason msg.CloseReason
	req    closeRequest
}

func batteryClose(r msg.CloseReason) bool {
	return r == msg.CloseLowBattery || r == msg.CloseSystemBrownout
}

// Orchestrator is the system manager. One instance owns the registry,
// the state machine, the shutdown coordinator, the power policy and the
// timers; Run drives all of them from a single goroutine.
type Orchestrator struct {
	opts   Options
	name   string
	bus    *bus.Bus
	logger *logging.Logger

	registry *registry.Registry[service.Handle]
	machine  *lifecycle.Machine
	coord    *shutdown.Coordinator
	governor *power.Governor
	policy   *power.Policy
	phone    *phonemode.Subject
	devices  *device.Manager

	watchdog   *timer.Timer
	lowBattery *timer.Timer
	cpuStats   *timer.Timer

	ctx   context.Context
	inbox *bus.Inbox
	ready chan struct{}

	// owned by the control loop
	pending      closeRequest
	deferred     *deferredClose
	lastReason   msg.CloseReason
	updateReason msg.UpdateReason

	mu     sync.Mutex
	action lifecycle.Action
	done   bool
}

// New creates an orchestrator. Nothing starts before Run.
func New(opts Options) (*Orchestrator, error) {
	if opts.Bus == nil || opts.Platform == nil || opts.Battery == nil || opts.CPU == nil {
		return nil, mserror.New("bus, platform, battery and cpu are required").
			WithCode(mserror.CodeInvalidInput).
			WithOperation("orchestrator.new")
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("orchestrator")
	}
	if opts.Devices == nil {
		opts.Devices = device.NewManager(device.NewMemoryStore())
	}
	applyTimeoutDefaults(&opts.Timeouts)

	o := &Orchestrator{
		opts:     opts,
		name:     opts.Name,
		bus:      opts.Bus,
		logger:   opts.Logger,
		registry: registry.New[service.Handle](),
		machine:  lifecycle.NewMachine(),
		phone:    phonemode.NewSubject(msg.PhoneConnected),
		devices:  opts.Devices,
		ctx:      context.Background(),
		ready:    make(chan struct{}),
	}
	if o.opts.Abort == nil {
		o.opts.Abort = func(error) { os.Exit(1) }
	}

	t := opts.Timeouts
	o.watchdog = timer.New(TimerPreShutdown, opts.Clock, t.PreShutdown.Duration, o.deliverTimer)
	o.lowBattery = timer.New(TimerLowBattery, opts.Clock, t.LowBattery.Duration, o.deliverTimer)
	o.cpuStats = timer.NewPeriodic(TimerCPUStats, opts.Clock, t.CPUStatsInitial.Duration, o.deliverTimer)

	o.governor = power.NewGovernor(opts.CPU)
	if opts.Disk != nil {
		if err := o.governor.RegisterSentinel("disk", power.DiskSentinel(opts.Disk, o.logger)); err != nil {
			return nil, err
		}
	}
	if opts.Metrics != nil {
		if err := o.governor.RegisterSentinel("metrics", func(l msg.FrequencyLevel) {
			opts.Metrics.SetCPULevel(int(l))
		}); err != nil {
			return nil, err
		}
	}

	o.phone.Observe(func(c msg.PhoneModeChanged) {
		o.bus.Publish(o.name, bus.TopicPhoneMode, c)
	})

	o.policy = power.NewPolicy(power.Config{
		Platform:           opts.Platform,
		Battery:            opts.Battery,
		Notifier:           notifier{o},
		Closer:             closerFunc(o.closeSystem),
		Governor:           o.governor,
		Sampler:            opts.Sampler,
		PhoneMode:          o.phone,
		LowBatteryTimer:    o.lowBattery,
		CPUStatsTimer:      o.cpuStats,
		CPUStatsInitial:    t.CPUStatsInitial.Duration,
		CPUStatsPeriod:     t.CPUStatsPeriod.Duration,
		ApplicationManager: opts.Names.ApplicationManager,
		EventManager:       opts.Names.EventManager,
	})

	o.coord = shutdown.New(o.registry.Services, messenger{o}, o.watchdog, opts.Whitelists)
	o.coord.OnComplete(o.roundCompleted)
	o.machine.Observe(o.stateChanged)

	return o, nil
}

func applyTimeoutDefaults(t *config.TimeoutsConfig) {
	def := config.Default().Timeouts
	for _, pair := range []struct{ d, v *config.Duration }{
		{&t.PreShutdown, &def.PreShutdown},
		{&t.LowBattery, &def.LowBattery},
		{&t.CPUStatsInitial, &def.CPUStatsInitial},
		{&t.CPUStatsPeriod, &def.CPUStatsPeriod},
		{&t.ServiceStart, &def.ServiceStart},
		{&t.ServiceClose, &def.ServiceClose},
		{&t.PowerModeSwitch, &def.PowerModeSwitch},
		{&t.Restore, &def.Restore},
	} {
		if pair.d.Duration <= 0 {
			*pair.d = *pair.v
		}
	}
}

// Name returns the bus name of the system manager
func (o *Orchestrator) Name() string { return o.name }

// State returns the lifecycle state
func (o *Orchestrator) State() lifecycle.State { return o.machine.State() }

// Registry returns the service and application collections
func (o *Orchestrator) Registry() *registry.Registry[service.Handle] { return o.registry }

// Governor returns the CPU frequency governor
func (o *Orchestrator) Governor() *power.Governor { return o.governor }

// PhoneMode returns the phone mode subject
func (o *Orchestrator) PhoneMode() *phonemode.Subject { return o.phone }

// Client returns a client sending as name
func (o *Orchestrator) Client(name string) *Client {
	return NewClient(o.bus, name, o.name)
}

// Ready is closed once every system service and application started
func (o *Orchestrator) Ready() <-chan struct{} { return o.ready }

// Action returns the platform action taken at the end of Run
func (o *Orchestrator) Action() (lifecycle.Action, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.action, o.done
}

// RegisterHealthChecks adds the lifecycle and registry checks
func (o *Orchestrator) RegisterHealthChecks(r *health.Registry) {
	r.Register(health.StateCheck("lifecycle", func() string {
		return o.machine.State().String()
	}, lifecycle.Running.String()))
	r.Register(health.CountCheck("services", o.registry.Services.Len, 1))
}

// Run starts the system and blocks until it reached a terminal state and
// handed off to the platform, or until ctx is cancelled. Startup errors
// are returned after every started service was torn down.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx
	inbox, err := o.bus.Register(o.name)
	if err != nil {
		return err
	}
	o.inbox = inbox
	defer o.bus.Unregister(o.name)
	defer o.stopTimers()

	if err := o.startup(); err != nil {
		o.logger.Error("startup failed", "error", err)
		o.teardown()
		return err
	}
	if err := o.mainLoop(ctx); err != nil {
		o.teardown()
		return err
	}
	if err := o.shutdownLoop(ctx); err != nil {
		o.teardown()
		return err
	}

	state := o.machine.State()
	o.destroyApplications()
	o.finalRound(ctx)
	return o.handoff(state)
}

func (o *Orchestrator) startup() error {
	if err := o.opts.Platform.Init(); err != nil {
		return mserror.Wrap(err, "platform init failed").WithCode(mserror.CodeStartFailed)
	}

	order, err := graph.Order(o.opts.Services)
	if err != nil {
		return err
	}
	names := make([]string, len(order))
	for i, d := range order {
		names[i] = d.Name
	}
	o.logger.Info("starting system services", "order", names)

	for _, d := range order {
		if err := o.RunSystemService(d); err != nil {
			return err
		}
	}

	o.postStartWiring()

	for _, d := range o.opts.Applications {
		if err := o.RunApplication(d); err != nil {
			o.logger.Error("application failed to start", "application", d.Name, "error", err)
		}
	}
	o.observeState(lifecycle.Running)
	close(o.ready)
	o.logger.Info("system running", "services", o.registry.Services.Len(), "applications", o.registry.Applications.Len())
	return nil
}

func (o *Orchestrator) postStartWiring() {
	o.bus.Subscribe(o.name, bus.TopicBattery)
	o.bus.Subscribe(o.name, bus.TopicKeys)
	o.bus.Subscribe(o.name, bus.TopicCellular)
	o.policy.EnableLevelHandling()
	if err := o.opts.Platform.InitUserSpace(); err != nil {
		o.logger.Warn("user space init failed", "error", err)
	}
	o.cpuStats.Start()
}

func (o *Orchestrator) mainLoop(ctx context.Context) error {
	for o.machine.State() == lifecycle.Running {
		env, err := o.inbox.Pop(ctx)
		if err != nil {
			return err
		}
		o.dispatch(env)
		o.startDeferred()
	}
	return nil
}

// shutdownLoop waits for ShutdownReady or Reboot. Only the event manager
// and the orchestrator's own timers are heard.
func (o *Orchestrator) shutdownLoop(ctx context.Context) error {
	for o.machine.State() == lifecycle.Shutdown {
		if o.opts.Battery.State() == msg.BatteryDischarging {
			o.machine.Fire(lifecycle.BatteryDischarging)
			continue
		}
		env, err := o.inbox.Pop(ctx)
		if err != nil {
			return err
		}
		if env.Sender != o.opts.Names.EventManager && env.Sender != o.name {
			o.logger.Error("dropping message during shutdown",
				"sender", env.Sender, "message", messageName(env.Payload))
			env.Reply(msg.Response{Code: msg.ReturnFailure})
			continue
		}
		o.dispatchShutdown(env)
	}
	return nil
}

// finalRound closes every remaining service, whitelisted or not
func (o *Orchestrator) finalRound(ctx context.Context) {
	o.pending = closeRequest{kind: closeFinal}
	if err := o.coord.BeginClose(o.lastReason, shutdown.ScenarioPowerOff); err != nil {
		o.logger.Error("final close round not started", "error", err)
		o.teardown()
		return
	}
	for o.coord.Active() {
		env, err := o.inbox.Pop(ctx)
		if err != nil {
			o.logger.Warn("final close round abandoned", "pending", o.coord.Pending(), "error", err)
			o.teardown()
			return
		}
		switch m := env.Payload.(type) {
		case msg.ReadyToClose:
			o.coord.Acknowledge(m.Name)
		case msg.TimerFired:
			if o.watchdog.Deliver(m) {
				o.coord.OnWatchdogExpired()
			}
		default:
			env.Reply(msg.Response{Code: msg.ReturnFailure})
		}
	}
}

// handoff maps the terminal state to its platform primitive
func (o *Orchestrator) handoff(state lifecycle.State) error {
	action, err := lifecycle.Terminal(state)
	if err != nil {
		o.logger.WithExitFunc(func(int) { o.opts.Abort(err) }).
			Fatal("control loop ended in a non-terminal state", "state", state.String(), "error", err)
		return err
	}

	o.logger.Info("handing off to platform", "state", state.String(), "action", action.String())
	switch action {
	case lifecycle.ActionPowerOff:
		err = o.opts.Platform.PowerOff()
	case lifecycle.ActionReboot:
		err = o.opts.Platform.Reboot()
	case lifecycle.ActionRebootToUpdate:
		err = o.opts.Platform.RebootToUpdate(o.updateReason)
	}

	o.mu.Lock()
	o.action, o.done = action, true
	o.mu.Unlock()

	if err != nil {
		return mserror.Wrap(err, "platform power primitive failed").
			WithCode(mserror.CodeInternal).
			WithDetail("action", action.String())
	}
	return nil
}

// teardown closes everything still registered without a handshake,
// dependents before their dependencies
func (o *Orchestrator) teardown() {
	// exits are still answered after Run's context was cancelled
	o.ctx = context.WithoutCancel(o.ctx)
	o.destroyApplications()
	o.reverseServices()
	_, destroyed, killed := o.coord.DestroyServices(shutdown.ScenarioPowerOff)
	if len(destroyed) > 0 {
		o.logger.Warn("services torn down", "destroyed", destroyed, "killed", killed)
	}
	o.updateRegistered()
}

func (o *Orchestrator) stopTimers() {
	o.watchdog.Stop()
	o.lowBattery.Stop()
	o.cpuStats.Stop()
}

// deliverTimer is the sink of every orchestrator timer
func (o *Orchestrator) deliverTimer(f msg.TimerFired) {
	if err := o.bus.Send(o.name, o.name, f); err != nil {
		o.logger.Debug("timer expiry dropped", "timer", f.ID, "error", err)
	}
}

// beginRound starts a handshake round. While one is running, a regular
// close may still be taken over by queueClose; anything else is refused.
func (o *Orchestrator) beginRound(reason msg.CloseReason, scenario shutdown.Scenario, req closeRequest) bool {
	if o.coord.Active() {
		if scenario == shutdown.ScenarioRegularClose && o.queueClose(reason, req) {
			return true
		}
		o.logger.Warn("close already in progress", "reason", reason.String(), "scenario", scenario.String())
		if req.requester != nil {
			req.requester.Reply(msg.Response{Code: msg.ReturnFailure})
		}
		return false
	}
	o.reverseServices()
	o.pending = req
	o.lastReason = reason
	if err := o.coord.BeginClose(reason, scenario); err != nil {
		o.logger.Error("close round not started", "error", err)
		o.pending = closeRequest{}
		return false
	}
	return true
}

// queueClose handles a regular close arriving during a round and reports
// whether it is covered. Behind an update or restore round it is queued,
// a battery close taking precedence over any other queued close. A
// battery close turns a running reboot round into a power off.
func (o *Orchestrator) queueClose(reason msg.CloseReason, req closeRequest) bool {
	battery := batteryClose(reason)
	switch o.pending.kind {
	case closeUpdate, closeRestore:
		if o.deferred != nil && (!battery || batteryClose(o.deferred.reason)) {
			return battery
		}
		o.deferred = &deferredClose{reason: reason, req: req}
		o.logger.Info("close queued behind running round",
			"reason", reason.String(), "running", o.lastReason.String())
		return true
	case closeReboot, closeRebootToUpdate:
		if !battery {
			return false
		}
		o.logger.Warn("battery close replaces reboot", "reason", reason.String())
		o.pending.kind = closeRegular
		o.lastReason = reason
		return true
	case closeRegular:
		return battery
	}
	return false
}

// startDeferred starts a queued close once the round it waited for ended
func (o *Orchestrator) startDeferred() {
	if o.deferred == nil || o.coord.Active() {
		return
	}
	d := o.deferred
	o.deferred = nil
	o.logger.Info("starting queued close", "reason", d.reason.String())
	if !o.requestClose(d.reason, d.req) {
		o.logger.Warn("queued close not started", "reason", d.reason.String(), "state", o.machine.State().String())
	}
}

func (o *Orchestrator) reverseServices() {
	if !o.registry.Services.Reversed() {
		o.registry.Services.ReverseOrder()
	}
}

func (o *Orchestrator) closeSystem(reason msg.CloseReason) bool {
	return o.requestClose(reason, closeRequest{kind: closeRegular})
}

func (o *Orchestrator) roundCompleted(r shutdown.Round) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.CloseRound(r.Scenario.String(), r.Unresponsive, r.Killed)
	}
	o.updateRegistered()

	req := o.pending
	o.pending = closeRequest{}
	var event lifecycle.Event
	switch req.kind {
	case closeRegular:
		event = lifecycle.CloseCompleted
	case closeReboot:
		event = lifecycle.RebootRequested
	case closeRebootToUpdate:
		event = lifecycle.RebootToUpdateRequested
	case closeUpdate, closeRestore:
		if req.requester != nil {
			req.requester.Reply(msg.Response{Code: msg.ReturnSuccess})
		}
		return
	default:
		return
	}
	if _, ok := o.machine.Fire(event); !ok {
		o.logger.Warn("lifecycle event rejected", "event", event.String(), "state", o.machine.State().String())
	}
}

func (o *Orchestrator) stateChanged(t lifecycle.Transition) {
	o.logger.Info("system state changed",
		"from", t.From.String(), "to", t.To.String(), "event", t.Event.String())
	o.observeState(t.To)
}

func (o *Orchestrator) observeState(s lifecycle.State) {
	if o.opts.Metrics != nil {
		names := make([]string, len(lifecycle.States))
		for i, st := range lifecycle.States {
			names[i] = st.String()
		}
		o.opts.Metrics.SetState(s.String(), names)
	}
	if o.opts.Health != nil {
		o.opts.Health.Refresh(o.ctx)
	}
}

func (o *Orchestrator) updateRegistered() {
	if o.opts.Metrics == nil {
		return
	}
	o.opts.Metrics.SetRegistered(o.registry.Services.Name(), o.registry.Services.Len())
	o.opts.Metrics.SetRegistered(o.registry.Applications.Name(), o.registry.Applications.Len())
}

// notifier sends policy notifications from the system manager
type notifier struct{ o *Orchestrator }

func (n notifier) Notify(target string, m msg.Message) {
	if err := n.o.bus.Send(n.o.name, target, m); err != nil {
		n.o.logger.Warn("notification not delivered", "target", target, "message", messageName(m), "error", err)
	}
}

type closerFunc func(msg.CloseReason) bool

func (f closerFunc) CloseSystem(reason msg.CloseReason) bool { return f(reason) }

// messenger carries handshake traffic for the shutdown coordinator
type messenger struct{ o *Orchestrator }

func (m messenger) NotifyCloseReason(target string, reason msg.CloseReason) error {
	return m.o.bus.Send(m.o.name, target, msg.CloseReasonNotice{Reason: reason})
}

func (m messenger) RequestClose(target string, timeout time.Duration) bool {
	res := m.o.bus.SendSync(m.o.ctx, m.o.name, target, msg.Exit{}, timeout)
	if !res.Succeeded() {
		m.o.logger.Warn("graceful close failed", "service", target, "status", res.Status.String())
		return false
	}
	return true
}
