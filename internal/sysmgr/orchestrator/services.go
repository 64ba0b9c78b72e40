package orchestrator

import (
	"context"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/internal/sysmgr/registry"
	"github.com/msto63/mSYS/internal/sysmgr/service"
)

// RunSystemService registers a system service, starts its goroutine and
// performs the Start handshake. Anything but a successful response tears
// the service down again and fails with CodeStartFailed.
func (o *Orchestrator) RunSystemService(d service.Descriptor) error {
	return o.run(o.registry.Services, d)
}

// RunApplication starts an application the same way as a system service
func (o *Orchestrator) RunApplication(d service.Descriptor) error {
	return o.run(o.registry.Applications, d)
}

// DestroySystemService closes one system service: a graceful Exit, then
// a kill when that does not succeed. It reports whether the service was
// registered.
func (o *Orchestrator) DestroySystemService(name string) bool {
	return o.destroy(o.registry.Services, name)
}

// DestroyApplication closes one application
func (o *Orchestrator) DestroyApplication(name string) bool {
	return o.destroy(o.registry.Applications, name)
}

// SuspendService puts a service to sleep
func (o *Orchestrator) SuspendService(ctx context.Context, name string) error {
	return o.switchPowerMode(ctx, name, msg.PowerSuspendToRAM)
}

// ResumeService wakes a suspended service
func (o *Orchestrator) ResumeService(ctx context.Context, name string) error {
	return o.switchPowerMode(ctx, name, msg.PowerActive)
}

func (o *Orchestrator) run(c *registry.Collection[service.Handle], d service.Descriptor) error {
	if d.StartTimeout <= 0 {
		d.StartTimeout = o.opts.Timeouts.ServiceStart.Duration
	}
	if d.CloseTimeout <= 0 {
		d.CloseTimeout = o.opts.Timeouts.ServiceClose.Duration
	}
	s := service.New(d, o.bus, o.name)
	if err := c.Register(s); err != nil {
		return mserror.Wrap(err, "service not registered").
			WithCode(mserror.CodeStartFailed).
			WithDetail("service", d.Name)
	}
	if err := s.StartService(); err != nil {
		c.Unregister(d.Name)
		return err
	}

	begin := o.opts.Clock.Now()
	res := o.bus.SendSync(o.ctx, o.name, d.Name, msg.Start{}, s.StartTimeout())
	if !res.Succeeded() {
		s.Kill()
		c.Unregister(d.Name)
		o.updateRegistered()
		return mserror.New("service failed to start").
			WithCode(mserror.CodeStartFailed).
			WithDetail("service", d.Name).
			WithDetail("status", res.Status.String())
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveStart(d.Name, o.opts.Clock.Now().Sub(begin))
	}
	o.updateRegistered()
	o.logger.Info("service started", "service", d.Name, "collection", c.Name())
	return nil
}

func (o *Orchestrator) destroy(c *registry.Collection[service.Handle], name string) bool {
	h, ok := c.Find(name)
	if !ok {
		return false
	}
	o.close(h)
	c.Unregister(name)
	o.updateRegistered()
	return true
}

// close sends a graceful Exit and kills the service if it fails
func (o *Orchestrator) close(h service.Handle) {
	if !(messenger{o}).RequestClose(h.Name(), h.CloseTimeout()) {
		h.Kill()
	}
}

func (o *Orchestrator) destroyApplications() {
	closed := o.registry.Applications.Sweep(func(h service.Handle) bool {
		o.close(h)
		return true
	})
	if len(closed) > 0 {
		o.logger.Info("applications closed", "count", len(closed))
		o.updateRegistered()
	}
}

func (o *Orchestrator) switchPowerMode(ctx context.Context, name string, mode msg.PowerMode) error {
	if _, ok := o.registry.Services.Find(name); !ok {
		return mserror.New("service not registered").
			WithCode(mserror.CodeNotFound).
			WithDetail("service", name)
	}
	res := o.bus.SendSync(ctx, o.name, name, msg.SwitchPowerMode{Mode: mode}, o.opts.Timeouts.PowerModeSwitch.Duration)
	if !res.Ok() {
		return mserror.Wrap(res.Err(), "power mode switch failed").
			WithDetail("service", name).
			WithDetail("mode", mode.String())
	}
	if !res.Succeeded() {
		return mserror.New("power mode switch rejected").
			WithCode(mserror.CodeInvalidState).
			WithDetail("service", name).
			WithDetail("mode", mode.String())
	}
	return nil
}
