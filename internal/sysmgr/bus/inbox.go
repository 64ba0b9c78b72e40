// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     bus
// Description: Per-service FIFO inbox
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrInboxClosed is returned by Push and Pop on a closed inbox
var ErrInboxClosed = errors.New("inbox closed")

// Inbox is an unbounded FIFO queue of envelopes with a single consumer.
// Push never blocks.
type Inbox struct {
	mu     sync.Mutex
	items  []*Envelope
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// NewInbox creates an empty inbox
func NewInbox() *Inbox {
	return &Inbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends an envelope
func (in *Inbox) Push(env *Envelope) error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrInboxClosed
	}
	in.items = append(in.items, env)
	in.mu.Unlock()

	select {
	case in.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes the oldest envelope, blocking until one arrives, the inbox
// is closed or ctx is done.
func (in *Inbox) Pop(ctx context.Context) (*Envelope, error) {
	for {
		in.mu.Lock()
		if len(in.items) > 0 {
			env := in.items[0]
			in.items[0] = nil
			in.items = in.items[1:]
			in.mu.Unlock()
			return env, nil
		}
		closed := in.closed
		in.mu.Unlock()
		if closed {
			return nil, ErrInboxClosed
		}

		select {
		case <-in.signal:
		case <-in.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued envelopes
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}

// Close closes the inbox. Queued envelopes waiting for a reply are
// released so their senders observe a closed channel.
func (in *Inbox) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	pending := in.items
	in.items = nil
	in.mu.Unlock()

	close(in.done)
	for _, env := range pending {
		env.abandon()
	}
}
