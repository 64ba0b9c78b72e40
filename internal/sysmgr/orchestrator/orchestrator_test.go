package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"go.uber.org/goleak"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/bus"
	"github.com/msto63/mSYS/internal/sysmgr/lifecycle"
	"github.com/msto63/mSYS/internal/sysmgr/metrics"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/internal/sysmgr/platform"
	"github.com/msto63/mSYS/internal/sysmgr/shutdown"
	"github.com/msto63/mSYS/internal/sysmgr/simulator"
	"github.com/msto63/mSYS/pkg/core/config"
	"github.com/msto63/mSYS/pkg/core/health"
	"github.com/msto63/mSYS/pkg/core/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type rig struct {
	o       *Orchestrator
	bus     *bus.Bus
	clk     *testclock.Clock
	fleet   *simulator.Fleet
	plat    *platform.Simulated
	battery *platform.Battery
	cpu     *platform.CPU
	disk    *platform.Disk
	aborted error
}

func svc(name string, mode simulator.Mode, deps ...string) config.ServiceConfig {
	return config.ServiceConfig{Name: name, Simulate: string(mode), Dependencies: deps}
}

func newRig(t *testing.T, services []config.ServiceConfig, mutate func(*Options)) *rig {
	t.Helper()
	r := &rig{
		bus:     bus.New(bus.WithLogger(logging.Discard("bus"))),
		clk:     testclock.NewClock(time.Now()),
		fleet:   simulator.NewFleet(),
		plat:    platform.NewSimulated(),
		battery: platform.NewBattery(msg.BatteryNormal, msg.BatteryDischarging),
		cpu:     platform.NewCPU(msg.Level1),
		disk:    &platform.Disk{},
	}
	opts := OptionsFromConfig(config.Default())
	opts.Whitelists = shutdown.Whitelists{}
	opts.Services, opts.Applications = r.fleet.Descriptors(services)
	opts.Bus = r.bus
	opts.Clock = r.clk
	opts.Platform = r.plat
	opts.Battery = r.battery
	opts.CPU = r.cpu
	opts.Disk = r.disk
	opts.Sampler = platform.FixedSampler(10)
	opts.Metrics = metrics.NewCollector()
	opts.Logger = logging.Discard("orchestrator")
	opts.Abort = func(err error) { r.aborted = err }
	if mutate != nil {
		mutate(&opts)
	}

	o, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.o = o
	return r
}

// run starts Run and waits for startup to finish
func (r *rig) run(t *testing.T) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- r.o.Run(context.Background()) }()
	select {
	case <-r.o.Ready():
	case err := <-errc:
		t.Fatalf("Run() returned during startup: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("startup did not finish")
	}
	return errc
}

func (r *rig) wait(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return")
		return nil
	}
}

func (r *rig) handler(t *testing.T, name string) *simulator.Handler {
	t.Helper()
	h, ok := r.fleet.Handler(name)
	if !ok {
		t.Fatalf("no handler for %s", name)
	}
	return h
}

// expireWatchdog waits for the pre-shutdown watchdog to be armed and
// lets it fire
func (r *rig) expireWatchdog(t *testing.T) {
	t.Helper()
	eventually(t, "watchdog armed", r.o.watchdog.IsActive)
	r.clk.Advance(r.o.opts.Timeouts.PreShutdown.Duration)
}

// fromEvents sends m as the event manager would
func (r *rig) fromEvents(m msg.Message) {
	_ = r.bus.Send(r.o.opts.Names.EventManager, r.o.Name(), m)
}

// flush returns once the orchestrator handled everything queued before
func (r *rig) flush(t *testing.T) {
	t.Helper()
	res := r.bus.SendSync(context.Background(), "tester", r.o.Name(), msg.CellularStartQuery{}, 2*time.Second)
	if !res.Ok() {
		t.Fatalf("orchestrator did not answer: %+v", res)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	if !mserror.HasCode(err, mserror.CodeInvalidInput) {
		t.Errorf("New(Options{}) = %v, want INVALID_INPUT", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := OptionsFromConfig(cfg)
	if !reflect.DeepEqual(opts.Whitelists[shutdown.ScenarioRegularClose], cfg.Whitelists.RegularClose) {
		t.Errorf("regular close whitelist = %v", opts.Whitelists[shutdown.ScenarioRegularClose])
	}
	if len(opts.Whitelists[shutdown.ScenarioPowerOff]) != 0 {
		t.Errorf("power off whitelist = %v, want empty", opts.Whitelists[shutdown.ScenarioPowerOff])
	}
	if opts.Timeouts.PreShutdown.Duration != 1500*time.Millisecond {
		t.Errorf("PreShutdown = %v, want 1.5s", opts.Timeouts.PreShutdown.Duration)
	}
}

func TestRun_SilentServiceDestroyedAfterWatchdog(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{
		svc("svcA", simulator.ModeNormal),
		svc("svcB", simulator.ModeSilent, "svcA"),
		svc("svcC", simulator.ModeNormal, "svcB"),
	}, nil)
	errc := r.run(t)

	if got := r.o.Registry().Services.Names(); !reflect.DeepEqual(got, []string{"svcA", "svcB", "svcC"}) {
		t.Fatalf("start order = %v", got)
	}
	if err := r.o.Client("tester").CloseSystem(msg.CloseRegularPowerDown); err != nil {
		t.Fatal(err)
	}
	r.expireWatchdog(t)

	if err := r.wait(t, errc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := r.plat.Action(); got != platform.ActionPowerOff {
		t.Errorf("platform action = %q, want power_off", got)
	}
	if action, done := r.o.Action(); !done || action != lifecycle.ActionPowerOff {
		t.Errorf("Action() = %v/%v", action, done)
	}
	if n := r.o.Registry().Services.Len(); n != 0 {
		t.Errorf("services left = %d", n)
	}
	hB := r.handler(t, "svcB")
	if !hB.Received("close:RegularPowerDown") || !hB.Received("deinit") {
		t.Errorf("svcB events = %v", hB.Events())
	}
	if r.o.State() != lifecycle.ShutdownReady {
		t.Errorf("State() = %v, want ShutdownReady", r.o.State())
	}
}

func TestRun_StuckServiceKilled(t *testing.T) {
	stuck := svc("svcB", simulator.ModeStuck, "svcA")
	stuck.CloseTimeout = config.Duration{Duration: 50 * time.Millisecond}
	r := newRig(t, []config.ServiceConfig{svc("svcA", simulator.ModeNormal), stuck}, nil)
	errc := r.run(t)

	_ = r.o.Client("tester").CloseSystem(msg.CloseLowBattery)
	if err := r.wait(t, errc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	hB := r.handler(t, "svcB")
	if !hB.Received("closed") {
		t.Errorf("svcB was not closed: %v", hB.Events())
	}
	if !r.handler(t, "svcA").Received("deinit") {
		t.Error("svcA was not deinitialized")
	}
}

func TestRun_StartFailure(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{
		svc("svcA", simulator.ModeNormal),
		svc("svcB", simulator.ModeFailStart, "svcA"),
	}, nil)

	err := r.o.Run(context.Background())
	if !mserror.HasCode(err, mserror.CodeStartFailed) {
		t.Fatalf("Run() = %v, want START_FAILED", err)
	}
	if !r.handler(t, "svcA").Received("deinit") {
		t.Error("started service was not torn down")
	}
	if n := r.o.Registry().Services.Len(); n != 0 {
		t.Errorf("services left = %d", n)
	}
	if got := r.plat.Action(); got != platform.ActionNone {
		t.Errorf("platform action = %q, want none", got)
	}
}

func TestRun_DependencyCycle(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{
		svc("svcA", simulator.ModeNormal, "svcB"),
		svc("svcB", simulator.ModeNormal, "svcA"),
	}, nil)

	err := r.o.Run(context.Background())
	if !mserror.HasCode(err, mserror.CodeDependencyCycle) {
		t.Errorf("Run() = %v, want DEPENDENCY_CYCLE", err)
	}
}

func TestRun_ApplicationStartFailureIsNotFatal(t *testing.T) {
	app := func(name string, mode simulator.Mode) config.ServiceConfig {
		c := svc(name, mode)
		c.Application = true
		return c
	}
	r := newRig(t, []config.ServiceConfig{
		svc("svcA", simulator.ModeNormal),
		app("notes", simulator.ModeFailStart),
		app("calendar", simulator.ModeNormal),
	}, nil)
	errc := r.run(t)

	if got := r.o.Registry().Applications.Names(); !reflect.DeepEqual(got, []string{"calendar"}) {
		t.Errorf("applications = %v, want [calendar]", got)
	}
	_ = r.o.Client("tester").UserPowerDown()
	if err := r.wait(t, errc); err != nil {
		t.Fatal(err)
	}
	if !r.handler(t, "calendar").Received("deinit") {
		t.Error("application was not closed")
	}
	if r.o.Registry().Applications.Len() != 0 {
		t.Error("applications left after shutdown")
	}
}

func TestRun_Reboot(t *testing.T) {
	tests := []struct {
		name       string
		send       func(*Client) error
		wantAction platform.Action
		wantState  lifecycle.State
	}{
		{"reboot", (*Client).Reboot, platform.ActionReboot, lifecycle.Reboot},
		{"reboot to update", func(c *Client) error { return c.RebootToUpdate(msg.UpdateRecovery) },
			platform.ActionRebootToUpdate, lifecycle.RebootToUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, []config.ServiceConfig{
				svc("svcA", simulator.ModeNormal),
				svc("svcB", simulator.ModeNormal, "svcA"),
			}, nil)
			errc := r.run(t)

			if err := tt.send(r.o.Client("tester")); err != nil {
				t.Fatal(err)
			}
			if err := r.wait(t, errc); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := r.plat.Action(); got != tt.wantAction {
				t.Errorf("platform action = %q, want %q", got, tt.wantAction)
			}
			if r.o.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", r.o.State(), tt.wantState)
			}
			if tt.wantAction == platform.ActionRebootToUpdate && r.plat.UpdateReason() != msg.UpdateRecovery {
				t.Errorf("update reason = %v", r.plat.UpdateReason())
			}
		})
	}
}

func TestRun_UpdateKeepsSilentWhitelistedService(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{
		svc("svcA", simulator.ModeNormal),
		svc("svcB", simulator.ModeSilent, "svcA"),
	}, func(o *Options) {
		o.Whitelists = shutdown.Whitelists{shutdown.ScenarioUpdate: {"svcB"}}
	})
	errc := r.run(t)

	done := make(chan error, 1)
	go func() { done <- r.o.Client("updater").Update(context.Background(), 5*time.Second) }()
	r.expireWatchdog(t)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Update() was not answered")
	}
	if got := r.o.Registry().Services.Names(); !reflect.DeepEqual(got, []string{"svcB"}) {
		t.Errorf("services after update = %v, want [svcB]", got)
	}
	if r.o.State() != lifecycle.Running {
		t.Errorf("State() = %v, want Running", r.o.State())
	}
	if !r.handler(t, "svcA").Received("deinit") {
		t.Error("svcA survived the update round")
	}

	_ = r.o.Client("tester").CloseSystem(msg.CloseRegularPowerDown)
	r.expireWatchdog(t)
	if err := r.wait(t, errc); err != nil {
		t.Fatal(err)
	}
	if r.o.Registry().Services.Len() != 0 {
		t.Error("whitelisted service survived the power off round")
	}
}

func TestRun_ShutdownLoop(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{svc("svcA", simulator.ModeNormal)}, nil)
	r.battery.Set(msg.BatteryNormal, msg.BatteryCharging)
	errc := r.run(t)
	events := r.o.opts.Names.EventManager

	_ = r.o.Client("tester").CloseSystem(msg.CloseRegularPowerDown)
	eventually(t, "shutdown state", func() bool { return r.o.State() == lifecycle.Shutdown })

	res := r.bus.SendSync(context.Background(), "intruder", r.o.Name(), msg.RebootSystem{}, time.Second)
	if !res.Ok() || res.Succeeded() {
		t.Errorf("intruder request = %+v, want a failure response", res)
	}

	_ = r.bus.Send(events, r.o.Name(), msg.KeyPressed{Key: msg.KeySliderUp})
	_ = r.bus.Send(events, r.o.Name(), msg.KeyPressed{Key: msg.KeyRed})
	if err := r.wait(t, errc); err != nil {
		t.Fatal(err)
	}
	if got := r.plat.Action(); got != platform.ActionReboot {
		t.Errorf("platform action = %q, want reboot", got)
	}
}

func TestRun_ShutdownReadyOnDischarge(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{svc("svcA", simulator.ModeNormal)}, nil)
	r.battery.Set(msg.BatteryNormal, msg.BatteryCharging)
	errc := r.run(t)

	_ = r.o.Client("tester").CloseSystem(msg.CloseRegularPowerDown)
	eventually(t, "shutdown state", func() bool { return r.o.State() == lifecycle.Shutdown })

	r.battery.Set(msg.BatteryNormal, msg.BatteryDischarging)
	_ = r.bus.Send(r.o.opts.Names.EventManager, r.o.Name(), msg.BatteryStatusChanged{State: msg.BatteryDischarging})
	if err := r.wait(t, errc); err != nil {
		t.Fatal(err)
	}
	if got := r.plat.Action(); got != platform.ActionPowerOff {
		t.Errorf("platform action = %q, want power_off", got)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{svc("svcA", simulator.ModeNormal)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.o.Run(ctx) }()
	<-r.o.Ready()
	cancel()

	if err := r.wait(t, errc); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if r.o.Registry().Services.Len() != 0 {
		t.Error("services left after cancellation")
	}
	if !r.handler(t, "svcA").Received("closed") {
		t.Error("svcA not closed")
	}
}

func TestRun_RegularCloseKeepsWhitelisted(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{
		svc("svcA", simulator.ModeNormal),
		svc("svcB", simulator.ModeNormal, "svcA"),
		svc("svcC", simulator.ModeNormal, "svcB"),
	}, func(o *Options) {
		o.Whitelists = shutdown.Whitelists{shutdown.ScenarioRegularClose: {"svcA"}}
	})
	r.battery.Set(msg.BatteryNormal, msg.BatteryCharging)
	errc := r.run(t)

	_ = r.o.Client("tester").CloseSystem(msg.CloseRegularPowerDown)
	eventually(t, "shutdown state", func() bool { return r.o.State() == lifecycle.Shutdown })

	for _, name := range []string{"svcA", "svcB", "svcC"} {
		if !r.handler(t, name).Received("close:RegularPowerDown") {
			t.Errorf("%s got no close notice", name)
		}
	}
	if got := r.o.Registry().Services.Names(); !reflect.DeepEqual(got, []string{"svcA"}) {
		t.Errorf("services after close = %v, want [svcA]", got)
	}
	if got := r.fleet.Journal("deinit"); !reflect.DeepEqual(got, []string{"svcC", "svcB"}) {
		t.Errorf("exit order = %v, want [svcC svcB]", got)
	}

	r.fromEvents(msg.KeyPressed{Key: msg.KeyRed})
	if err := r.wait(t, errc); err != nil {
		t.Fatal(err)
	}
	if got := r.fleet.Journal("deinit"); !reflect.DeepEqual(got, []string{"svcC", "svcB", "svcA"}) {
		t.Errorf("exit order = %v, want [svcC svcB svcA]", got)
	}
	if got := r.plat.Action(); got != platform.ActionReboot {
		t.Errorf("platform action = %q, want reboot", got)
	}
}

func TestRun_TeardownClosesDependentsFirst(t *testing.T) {
	tests := []struct {
		name   string
		last   simulator.Mode
		cancel bool
	}{
		{"context cancelled", simulator.ModeNormal, true},
		{"start failure", simulator.ModeFailStart, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, []config.ServiceConfig{
				svc("svcA", simulator.ModeNormal),
				svc("svcB", simulator.ModeNormal, "svcA"),
				svc("svcC", tt.last, "svcB"),
			}, nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			errc := make(chan error, 1)
			go func() { errc <- r.o.Run(ctx) }()
			if tt.cancel {
				<-r.o.Ready()
				cancel()
			}

			if err := r.wait(t, errc); err == nil {
				t.Fatal("Run() = nil, want an error")
			}
			if got := r.fleet.Journal("deinit"); !reflect.DeepEqual(got, []string{"svcC", "svcB", "svcA"}) {
				t.Errorf("deinit order = %v, want [svcC svcB svcA]", got)
			}
		})
	}
}

func TestRun_CloseQueuedBehindUpdateRound(t *testing.T) {
	tests := []struct {
		name       string
		send       func(*rig)
		wantAction platform.Action
	}{
		{"low battery level", func(r *rig) { r.fromEvents(msg.BatteryLevelChanged{Level: msg.BatteryShutdown}) }, platform.ActionPowerOff},
		{"brownout", func(r *rig) { r.fromEvents(msg.BatteryBrownout{}) }, platform.ActionPowerOff},
		{"close command", func(r *rig) { _ = r.o.Client("tester").CloseSystem(msg.CloseRegularPowerDown) }, platform.ActionPowerOff},
		{"reboot", func(r *rig) { _ = r.o.Client("tester").Reboot() }, platform.ActionReboot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, []config.ServiceConfig{
				svc("svcA", simulator.ModeNormal),
				svc("svcB", simulator.ModeSilent, "svcA"),
			}, nil)
			errc := r.run(t)

			done := make(chan error, 1)
			go func() { done <- r.o.Client("updater").Update(context.Background(), 5*time.Second) }()
			eventually(t, "update round", r.o.watchdog.IsActive)

			tt.send(r)
			r.flush(t)
			if r.o.State() != lifecycle.Running {
				t.Fatalf("State() = %v during the update round", r.o.State())
			}
			r.expireWatchdog(t)

			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("Update() error = %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Update() was not answered")
			}
			if err := r.wait(t, errc); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := r.plat.Action(); got != tt.wantAction {
				t.Errorf("platform action = %q, want %q", got, tt.wantAction)
			}
			if n := r.o.Registry().Services.Len(); n != 0 {
				t.Errorf("services left = %d", n)
			}
		})
	}
}

func TestRun_BatteryCloseOverridesReboot(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{
		svc("svcA", simulator.ModeNormal),
		svc("svcB", simulator.ModeSilent, "svcA"),
	}, nil)
	errc := r.run(t)

	_ = r.o.Client("tester").Reboot()
	eventually(t, "reboot round", r.o.watchdog.IsActive)
	r.fromEvents(msg.BatteryBrownout{})
	r.flush(t)
	r.expireWatchdog(t)

	if err := r.wait(t, errc); err != nil {
		t.Fatal(err)
	}
	if got := r.plat.Action(); got != platform.ActionPowerOff {
		t.Errorf("platform action = %q, want power_off", got)
	}
	if r.o.State() != lifecycle.ShutdownReady {
		t.Errorf("State() = %v, want ShutdownReady", r.o.State())
	}
}

func TestRun_RejectedRebootToUpdateKeepsReason(t *testing.T) {
	r := newRig(t, []config.ServiceConfig{
		svc("svcA", simulator.ModeNormal),
		svc("svcB", simulator.ModeSilent, "svcA"),
	}, nil)
	errc := r.run(t)

	_ = r.o.Client("tester").RebootToUpdate(msg.UpdateRecovery)
	eventually(t, "reboot round", r.o.watchdog.IsActive)

	res := r.bus.SendSync(context.Background(), "tester", r.o.Name(),
		msg.RebootToUpdate{Reason: msg.UpdateFactoryReset}, time.Second)
	if !res.Ok() || res.Succeeded() {
		t.Errorf("second request = %+v, want a failure response", res)
	}
	r.expireWatchdog(t)

	if err := r.wait(t, errc); err != nil {
		t.Fatal(err)
	}
	if got := r.plat.Action(); got != platform.ActionRebootToUpdate {
		t.Errorf("platform action = %q, want reboot_to_update", got)
	}
	if got := r.plat.UpdateReason(); got != msg.UpdateRecovery {
		t.Errorf("update reason = %v, want Recovery", got)
	}
}

func TestHandoff_NonTerminalStateAborts(t *testing.T) {
	r := newRig(t, nil, nil)
	err := r.o.handoff(lifecycle.Running)
	if !mserror.HasCode(err, mserror.CodeInvalidState) {
		t.Errorf("handoff(Running) = %v, want INVALID_STATE", err)
	}
	if r.aborted == nil {
		t.Error("abort was not called")
	}
	if got := r.plat.Action(); got != platform.ActionNone {
		t.Errorf("platform action = %q, want none", got)
	}
}

// foreign wraps a known kind so the type switch cannot match it
type foreign struct{ msg.Start }

func TestDispatch_EveryKind(t *testing.T) {
	r := newRig(t, nil, nil)
	for _, m := range msg.Kinds() {
		if !r.o.dispatch(&bus.Envelope{Sender: "tester", Payload: m}) {
			t.Errorf("dispatch(%s) = false", messageName(m))
		}
	}
	if r.o.dispatch(&bus.Envelope{Sender: "tester", Payload: foreign{}}) {
		t.Error("dispatch of an unknown kind = true")
	}
}

func TestDispatch_SliderKeys(t *testing.T) {
	tests := []struct {
		key  msg.KeyCode
		want msg.PhoneMode
	}{
		{msg.KeySliderDown, msg.PhoneOffline},
		{msg.KeySliderMid, msg.PhoneDoNotDisturb},
		{msg.KeyEnter, msg.PhoneDoNotDisturb},
		{msg.KeySliderUp, msg.PhoneConnected},
	}
	r := newRig(t, nil, nil)
	for _, tt := range tests {
		r.o.dispatch(&bus.Envelope{Sender: "keys", Payload: msg.KeyPressed{Key: tt.key}})
		if got := r.o.PhoneMode().Mode(); got != tt.want {
			t.Errorf("after %v mode = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestDispatch_LowBatteryTimerCloses(t *testing.T) {
	r := newRig(t, nil, nil)
	r.battery.Set(msg.BatteryShutdown, msg.BatteryDischarging)
	inbox, err := r.bus.Register(r.o.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer r.bus.Unregister(r.o.Name())

	r.o.dispatch(&bus.Envelope{Sender: "appmgr", Payload: msg.CheckIfStartAllowed{}})
	if !r.o.lowBattery.IsActive() {
		t.Fatal("low battery timer not armed")
	}
	r.clk.Advance(r.o.opts.Timeouts.LowBattery.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := inbox.Pop(ctx)
	if err != nil {
		t.Fatalf("no timer expiry: %v", err)
	}
	r.o.dispatch(env)

	if r.o.State() != lifecycle.Shutdown {
		t.Errorf("State() = %v, want Shutdown", r.o.State())
	}
	if r.o.lastReason != msg.CloseLowBattery {
		t.Errorf("close reason = %v, want LowBattery", r.o.lastReason)
	}
}

func TestDispatch_Sentinels(t *testing.T) {
	r := newRig(t, nil, nil)
	owner, err := r.bus.Register("gps")
	if err != nil {
		t.Fatal(err)
	}
	defer r.bus.Unregister("gps")
	if !r.disk.Suspended() {
		t.Fatal("disk not suspended at the lowest level")
	}

	r.o.dispatch(&bus.Envelope{Sender: "gps", Payload: msg.SentinelRegistration{Name: "gps"}})
	r.o.dispatch(&bus.Envelope{Sender: "gps", Payload: msg.HoldCpuFrequency{Sentinel: "gps", Level: msg.Level4}})

	if got := r.cpu.Level(); got != msg.Level4 {
		t.Errorf("cpu level = %v, want Level4", got)
	}
	if r.disk.Suspended() {
		t.Error("disk still suspended above the lowest level")
	}

	var levels []msg.FrequencyLevel
	for owner.Len() > 0 {
		env, _ := owner.Pop(context.Background())
		levels = append(levels, env.Payload.(msg.CpuFrequencyChanged).Level)
	}
	if !reflect.DeepEqual(levels, []msg.FrequencyLevel{msg.Level1, msg.Level4}) {
		t.Errorf("notified levels = %v", levels)
	}

	r.o.dispatch(&bus.Envelope{Sender: "gps", Payload: msg.ReleaseCpuFrequency{Sentinel: "gps"}})
	if got := r.cpu.Level(); got != msg.Level1 {
		t.Errorf("cpu level after release = %v, want Level1", got)
	}
}

func TestDispatch_DeviceRegistration(t *testing.T) {
	r := newRig(t, nil, nil)
	r.o.dispatch(&bus.Envelope{Sender: "usbd", Payload: msg.DeviceRegistration{Name: "usb0", Kind: "storage"}})

	d, err := r.o.devices.Lookup(context.Background(), "usb0")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if d.Owner != "usbd" || d.Kind != "storage" {
		t.Errorf("device = %+v", d)
	}
}

func TestServiceOperations(t *testing.T) {
	r := newRig(t, nil, nil)
	ctx := context.Background()

	if err := r.o.RunSystemService(r.fleet.Descriptor(svc("svcA", simulator.ModeNormal))); err != nil {
		t.Fatalf("RunSystemService() error = %v", err)
	}
	h := r.handler(t, "svcA")

	if err := r.o.SuspendService(ctx, "svcA"); err != nil {
		t.Errorf("SuspendService() error = %v", err)
	}
	if err := r.o.ResumeService(ctx, "svcA"); err != nil {
		t.Errorf("ResumeService() error = %v", err)
	}
	if !h.Received("power:SuspendToRAM") || !h.Received("power:Active") {
		t.Errorf("events = %v", h.Events())
	}
	if err := r.o.SuspendService(ctx, "ghost"); !mserror.HasCode(err, mserror.CodeNotFound) {
		t.Errorf("SuspendService(ghost) = %v, want NOT_FOUND", err)
	}

	if err := r.o.RunApplication(r.fleet.Descriptor(svc("notes", simulator.ModeNormal))); err != nil {
		t.Fatalf("RunApplication() error = %v", err)
	}
	err := r.o.RunApplication(r.fleet.Descriptor(svc("broken", simulator.ModeFailStart)))
	if !mserror.HasCode(err, mserror.CodeStartFailed) {
		t.Errorf("RunApplication(broken) = %v, want START_FAILED", err)
	}
	if got := r.o.Registry().Applications.Names(); !reflect.DeepEqual(got, []string{"notes"}) {
		t.Errorf("applications = %v", got)
	}

	if !r.o.DestroyApplication("notes") {
		t.Error("DestroyApplication(notes) = false")
	}
	if !r.o.DestroySystemService("svcA") {
		t.Error("DestroySystemService(svcA) = false")
	}
	if r.o.DestroySystemService("svcA") {
		t.Error("second DestroySystemService(svcA) = true")
	}
	if !h.Received("deinit") {
		t.Error("svcA not deinitialized")
	}
}

func TestRegisterHealthChecks(t *testing.T) {
	r := newRig(t, nil, nil)
	checks := health.NewRegistry("msys", "test")
	r.o.RegisterHealthChecks(checks)

	if checks.Check(context.Background()).Healthy() {
		t.Error("healthy without any service")
	}
	if err := r.o.RunSystemService(r.fleet.Descriptor(svc("svcA", simulator.ModeNormal))); err != nil {
		t.Fatal(err)
	}
	defer r.o.DestroySystemService("svcA")

	if report := checks.Check(context.Background()); !report.Healthy() {
		t.Errorf("report = %s, want healthy", report)
	}
}
