// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     bus
// Description: In-process message bus. Each registered participant owns an
//              inbox; sends are fire-and-forget unless made through SendSync,
//              which blocks for a reply or a deadline.
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package bus

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// Topic names a broadcast channel
type Topic string

const (
	TopicBattery   Topic = "battery"
	TopicKeys      Topic = "keys"
	TopicCellular  Topic = "cellular"
	TopicPhoneMode Topic = "phonemode"
)

// Bus routes envelopes between registered participants
type Bus struct {
	mu          sync.RWMutex
	inboxes     map[string]*Inbox
	subscribers map[Topic][]string
	clock       clock.Clock
	logger      *logging.Logger
}

// Option configures a Bus
type Option func(*Bus)

// WithClock sets the clock used for request deadlines
func WithClock(c clock.Clock) Option {
	return func(b *Bus) { b.clock = c }
}

// WithLogger sets the bus logger
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an empty bus
func New(opts ...Option) *Bus {
	b := &Bus{
		inboxes:     make(map[string]*Inbox),
		subscribers: make(map[Topic][]string),
		clock:       clock.WallClock,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.New("bus")
	}
	return b
}

// Register creates the inbox of a participant
func (b *Bus) Register(name string) (*Inbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.inboxes[name]; exists {
		return nil, mserror.New("participant already registered").
			WithCode(mserror.CodeDuplicateService).
			WithDetail("name", name)
	}
	in := NewInbox()
	b.inboxes[name] = in
	return in, nil
}

// Unregister closes and removes the inbox of a participant and drops its
// subscriptions.
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	in, ok := b.inboxes[name]
	delete(b.inboxes, name)
	for topic, subs := range b.subscribers {
		b.subscribers[topic] = without(subs, name)
	}
	b.mu.Unlock()

	if ok {
		in.Close()
	}
}

// Registered reports whether a participant has an inbox
func (b *Bus) Registered(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.inboxes[name]
	return ok
}

func (b *Bus) inbox(name string) (*Inbox, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	in, ok := b.inboxes[name]
	return in, ok
}

// Send delivers a message without waiting for it to be handled
func (b *Bus) Send(from, to string, m msg.Message) error {
	in, ok := b.inbox(to)
	if !ok {
		return mserror.New("unknown target").
			WithCode(mserror.CodeChannelClosed).
			WithDetail("target", to)
	}
	if err := in.Push(newEnvelope(from, to, m, false)); err != nil {
		return mserror.Wrap(err, "send failed").WithCode(mserror.CodeChannelClosed)
	}
	return nil
}

// SendSync delivers a message and blocks until the target replies, the
// timeout elapses or the target's inbox is closed. Cancelling ctx counts
// as a closed channel.
func (b *Bus) SendSync(ctx context.Context, from, to string, m msg.Message, timeout time.Duration) Result {
	in, ok := b.inbox(to)
	if !ok {
		return Result{Status: StatusChannelClosed}
	}
	env := newEnvelope(from, to, m, true)
	if err := in.Push(env); err != nil {
		return Result{Status: StatusChannelClosed}
	}

	timer := b.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-env.reply:
		if !ok {
			return Result{Status: StatusChannelClosed}
		}
		return Result{Status: StatusOk, Response: resp}
	case <-timer.Chan():
		b.logger.Warn("sync request timed out", "from", from, "to", to, "timeout", timeout)
		return Result{Status: StatusTimedOut}
	case <-ctx.Done():
		return Result{Status: StatusChannelClosed}
	}
}

// Subscribe adds a participant to a topic. Subscribing twice is a no-op.
func (b *Bus) Subscribe(name string, topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subscribers[topic] {
		if s == name {
			return
		}
	}
	b.subscribers[topic] = append(b.subscribers[topic], name)
}

// Unsubscribe removes a participant from a topic
func (b *Bus) Unsubscribe(name string, topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = without(b.subscribers[topic], name)
}

// Publish sends a message to every subscriber of a topic and returns the
// number of deliveries.
func (b *Bus) Publish(from string, topic Topic, m msg.Message) int {
	b.mu.RLock()
	subs := append([]string(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	delivered := 0
	for _, to := range subs {
		if err := b.Send(from, to, m); err == nil {
			delivered++
		}
	}
	return delivered
}

func without(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
