package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/bus"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/pkg/core/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeHandler struct {
	mu       sync.Mutex
	inits    int
	deinits  int
	modes    []msg.PowerMode
	closed   bool
	initCode msg.ReturnCode
}

func (h *fakeHandler) InitHandler() msg.ReturnCode {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inits++
	return h.initCode
}

func (h *fakeHandler) DeinitHandler() msg.ReturnCode {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deinits++
	return msg.ReturnSuccess
}

func (h *fakeHandler) SwitchPowerModeHandler(mode msg.PowerMode) msg.ReturnCode {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modes = append(h.modes, mode)
	return msg.ReturnSuccess
}

func (h *fakeHandler) DataReceivedHandler(*bus.Envelope) msg.Message { return nil }

func (h *fakeHandler) CloseHandler() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *fakeHandler) counts() (int, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inits, h.deinits, h.closed
}

const manager = "SystemManager"

func setup(t *testing.T, h Handler) (*bus.Bus, *bus.Inbox, *Service) {
	t.Helper()
	b := bus.New(bus.WithLogger(logging.Discard("bus")))
	mgr, err := b.Register(manager)
	if err != nil {
		t.Fatal(err)
	}
	s := New(Descriptor{Name: "svcA", Factory: func() Handler { return h }}, b, manager)
	if err := s.StartService(); err != nil {
		t.Fatalf("StartService() error = %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		<-s.Done()
	})
	return b, mgr, s
}

func TestDescriptorDefaults(t *testing.T) {
	d := Descriptor{Name: "gui", Dependencies: []string{"eink"}, Factory: func() Handler { return &fakeHandler{} }}
	if d.ID() != "gui" || len(d.Deps()) != 1 {
		t.Errorf("ID/Deps = %q/%v", d.ID(), d.Deps())
	}
	s := New(d, bus.New(bus.WithLogger(logging.Discard("bus"))), manager)
	if s.StartTimeout() != DefaultStartTimeout || s.CloseTimeout() != DefaultCloseTimeout {
		t.Errorf("timeouts = %v/%v", s.StartTimeout(), s.CloseTimeout())
	}
	s.Close()
	<-s.Done()
}

func TestStartHandshake(t *testing.T) {
	h := &fakeHandler{}
	b, _, _ := setup(t, h)

	res := b.SendSync(context.Background(), manager, "svcA", msg.Start{}, time.Second)
	if !res.Succeeded() {
		t.Fatalf("Start = %+v, want success", res)
	}
	if inits, _, _ := h.counts(); inits != 1 {
		t.Errorf("inits = %d, want 1", inits)
	}
}

func TestStartHandshake_Failure(t *testing.T) {
	h := &fakeHandler{initCode: msg.ReturnFailure}
	b, _, _ := setup(t, h)

	res := b.SendSync(context.Background(), manager, "svcA", msg.Start{}, time.Second)
	if !res.Ok() || res.Succeeded() {
		t.Errorf("Start = %+v, want an Ok result carrying Failure", res)
	}
}

func TestStartService_Twice(t *testing.T) {
	h := &fakeHandler{}
	b, _, s := setup(t, h)
	if err := s.StartService(); err != nil {
		t.Errorf("second StartService() = %v, want nil", err)
	}

	dup := New(Descriptor{Name: "svcA", Factory: func() Handler { return &fakeHandler{} }}, b, manager)
	err := dup.StartService()
	if !mserror.HasCode(err, mserror.CodeStartFailed) {
		t.Errorf("duplicate StartService() = %v, want START_FAILED", err)
	}
	<-dup.Done()
}

func TestCloseReasonAcknowledged(t *testing.T) {
	b, mgr, _ := setup(t, &fakeHandler{})

	if err := b.Send(manager, "svcA", msg.CloseReasonNotice{Reason: msg.CloseRegularPowerDown}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := mgr.Pop(ctx)
	if err != nil {
		t.Fatalf("no acknowledgment: %v", err)
	}
	ack, ok := env.Payload.(msg.ReadyToClose)
	if !ok || ack.Name != "svcA" || env.Sender != "svcA" {
		t.Errorf("ack = %#v from %q", env.Payload, env.Sender)
	}
}

type deferredCloser struct {
	fakeHandler
	ready chan func()
}

func (d *deferredCloser) ProcessCloseReason(_ msg.CloseReason, ready func()) {
	d.ready <- ready
}

func TestCloseReasonDeferred(t *testing.T) {
	h := &deferredCloser{ready: make(chan func(), 1)}
	b, mgr, _ := setup(t, h)

	_ = b.Send(manager, "svcA", msg.CloseReasonNotice{Reason: msg.CloseUpdate})
	ready := <-h.ready
	if mgr.Len() != 0 {
		t.Fatal("acknowledged before ready was called")
	}
	ready()
	ready()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := mgr.Pop(ctx); err != nil {
		t.Fatalf("no acknowledgment: %v", err)
	}
	if mgr.Len() != 0 {
		t.Error("ready() acknowledged twice")
	}
}

func TestExitStopsService(t *testing.T) {
	h := &fakeHandler{}
	b, _, s := setup(t, h)

	res := b.SendSync(context.Background(), manager, "svcA", msg.Exit{}, time.Second)
	if !res.Succeeded() {
		t.Fatalf("Exit = %+v, want success", res)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("service goroutine still running after Exit")
	}
	if b.Registered("svcA") {
		t.Error("inbox still registered after Exit")
	}
	if _, deinits, closed := h.counts(); deinits != 1 || !closed {
		t.Errorf("deinits = %d closed = %v, want 1/true", deinits, closed)
	}
}

func TestKill(t *testing.T) {
	h := &fakeHandler{}
	b, _, s := setup(t, h)

	s.Kill()
	<-s.Done()
	if _, deinits, closed := h.counts(); deinits != 1 || !closed {
		t.Errorf("deinits = %d closed = %v, want 1/true", deinits, closed)
	}
	res := b.SendSync(context.Background(), manager, "svcA", msg.Start{}, time.Second)
	if res.Status != bus.StatusChannelClosed {
		t.Errorf("request after Kill = %v, want ChannelClosed", res.Status)
	}
}

func TestSwitchPowerModeAndData(t *testing.T) {
	h := &fakeHandler{}
	b, _, _ := setup(t, h)

	res := b.SendSync(context.Background(), manager, "svcA", msg.SwitchPowerMode{Mode: msg.PowerSuspendToNVM}, time.Second)
	if !res.Succeeded() {
		t.Errorf("SwitchPowerMode = %+v", res)
	}
	h.mu.Lock()
	modes := append([]msg.PowerMode(nil), h.modes...)
	h.mu.Unlock()
	if len(modes) != 1 || modes[0] != msg.PowerSuspendToNVM {
		t.Errorf("modes = %v", modes)
	}

	res = b.SendSync(context.Background(), manager, "svcA", msg.CheckIfStartAllowed{}, time.Second)
	resp, ok := res.Response.(msg.Response)
	if !ok || resp.Code != msg.ReturnUnresolved {
		t.Errorf("unhandled sync request answered with %#v", res.Response)
	}
}
