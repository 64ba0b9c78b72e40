// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     service
// Description: Runtime of a single service: its own goroutine and inbox,
//              the start/exit/power-mode control protocol and the close
//              acknowledgment sent back to the system manager
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package service

import (
	"context"
	"sync"
	"time"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/bus"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// Default timeouts applied when a descriptor leaves them empty
const (
	DefaultStartTimeout = 5 * time.Second
	DefaultCloseTimeout = 1 * time.Second
)

// Handler holds the behavior of a service
type Handler interface {
	// InitHandler runs on the Start request
	InitHandler() msg.ReturnCode
	// DeinitHandler runs on the Exit request and as the first half of a kill
	DeinitHandler() msg.ReturnCode
	// SwitchPowerModeHandler runs on a power mode request
	SwitchPowerModeHandler(mode msg.PowerMode) msg.ReturnCode
	// DataReceivedHandler runs for every other message. For a synchronous
	// request a nil result is answered with ReturnUnresolved.
	DataReceivedHandler(env *bus.Envelope) msg.Message
}

// CloseReasonHandler is implemented by handlers that need to do work
// before acknowledging a close notice. They call ready once done; until
// then the service counts as pending in the handshake round.
type CloseReasonHandler interface {
	ProcessCloseReason(reason msg.CloseReason, ready func())
}

// CloseHandler is implemented by handlers owning resources that must be
// released when the service stops.
type CloseHandler interface {
	CloseHandler()
}

// Handle is the view the system manager has of a running service
type Handle interface {
	Name() string
	StartTimeout() time.Duration
	CloseTimeout() time.Duration
	StartService() error
	Kill()
}

// Descriptor declares a service: its identity, timeouts, dependencies
// and how to build its handler.
type Descriptor struct {
	Name         string
	StartTimeout time.Duration
	CloseTimeout time.Duration
	Dependencies []string
	Application  bool
	Factory      func() Handler
}

// ID implements graph.Node
func (d Descriptor) ID() string { return d.Name }

// Deps implements graph.Node
func (d Descriptor) Deps() []string { return d.Dependencies }

// Service runs a Handler on its own goroutine
type Service struct {
	name         string
	manager      string
	startTimeout time.Duration
	closeTimeout time.Duration
	handler      Handler
	bus          *bus.Bus
	logger       *logging.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	started   bool
	mu        sync.Mutex
}

// New builds a service from its descriptor. manager names the participant
// that receives close acknowledgments.
func New(d Descriptor, b *bus.Bus, manager string) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		name:         d.Name,
		manager:      manager,
		startTimeout: d.StartTimeout,
		closeTimeout: d.CloseTimeout,
		handler:      d.Factory(),
		bus:          b,
		logger:       logging.New("service").With("service", d.Name),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if s.startTimeout <= 0 {
		s.startTimeout = DefaultStartTimeout
	}
	if s.closeTimeout <= 0 {
		s.closeTimeout = DefaultCloseTimeout
	}
	return s
}

// Name returns the service name
func (s *Service) Name() string { return s.name }

// StartTimeout bounds the Start handshake
func (s *Service) StartTimeout() time.Duration { return s.startTimeout }

// CloseTimeout bounds the graceful Exit request
func (s *Service) CloseTimeout() time.Duration { return s.closeTimeout }

// Handler returns the service behavior
func (s *Service) Handler() Handler { return s.handler }

// Done is closed once the service goroutine has returned
func (s *Service) Done() <-chan struct{} { return s.done }

// StartService registers the inbox and starts the service goroutine. It
// does not wait for initialization; that is the Start handshake.
func (s *Service) StartService() error {
	var err error
	s.startOnce.Do(func() {
		var inbox *bus.Inbox
		inbox, err = s.bus.Register(s.name)
		if err != nil {
			err = mserror.Wrap(err, "failed to start service").
				WithCode(mserror.CodeStartFailed).
				WithDetail("service", s.name)
			close(s.done)
			return
		}
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.run(inbox)
	})
	return err
}

// Kill deinitializes and closes the service without waiting for its
// goroutine. It is the fallback when a graceful Exit did not succeed.
func (s *Service) Kill() {
	s.logger.Warn("killing service")
	s.handler.DeinitHandler()
	s.Close()
}

// Close stops the service goroutine and closes its inbox. Requests still
// queued observe a closed channel.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.bus.Unregister(s.name)
		if h, ok := s.handler.(CloseHandler); ok {
			h.CloseHandler()
		}
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			s.startOnce.Do(func() { close(s.done) })
		}
	})
}

func (s *Service) run(inbox *bus.Inbox) {
	defer close(s.done)
	for {
		env, err := inbox.Pop(s.ctx)
		if err != nil {
			return
		}
		if stop := s.handle(env); stop {
			s.Close()
			return
		}
	}
}

// handle processes one envelope and reports whether the service stops
func (s *Service) handle(env *bus.Envelope) bool {
	switch m := env.Payload.(type) {
	case msg.Start:
		env.Reply(msg.Response{Code: s.handler.InitHandler()})
	case msg.Exit:
		code := s.handler.DeinitHandler()
		env.Reply(msg.Response{Code: code})
		return true
	case msg.SwitchPowerMode:
		env.Reply(msg.Response{Code: s.handler.SwitchPowerModeHandler(m.Mode)})
	case msg.CloseReasonNotice:
		s.processCloseReason(m.Reason)
	default:
		resp := s.handler.DataReceivedHandler(env)
		if env.ExpectsReply() {
			if resp == nil {
				resp = msg.Response{Code: msg.ReturnUnresolved}
			}
			env.Reply(resp)
		}
	}
	return false
}

func (s *Service) processCloseReason(reason msg.CloseReason) {
	var once sync.Once
	ready := func() {
		once.Do(func() {
			if err := s.bus.Send(s.name, s.manager, msg.ReadyToClose{Name: s.name}); err != nil {
				s.logger.Warn("failed to acknowledge close", "error", err)
			}
		})
	}
	if h, ok := s.handler.(CloseReasonHandler); ok {
		h.ProcessCloseReason(reason, ready)
		return
	}
	ready()
}
