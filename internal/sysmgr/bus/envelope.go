// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     bus
// Description: Message envelope and synchronous request results
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package bus

import (
	"sync"

	"github.com/google/uuid"

	mserror "github.com/msto63/mSYS/foundation/core/error"
	"github.com/msto63/mSYS/internal/sysmgr/msg"
)

// Envelope carries one message from a sender to a target
type Envelope struct {
	ID      uuid.UUID
	Sender  string
	Target  string
	Payload msg.Message

	reply chan msg.Message
	once  sync.Once
}

func newEnvelope(from, to string, m msg.Message, sync bool) *Envelope {
	env := &Envelope{ID: uuid.New(), Sender: from, Target: to, Payload: m}
	if sync {
		env.reply = make(chan msg.Message, 1)
	}
	return env
}

// ExpectsReply reports whether the sender is waiting for a response
func (e *Envelope) ExpectsReply() bool {
	return e.reply != nil
}

// Reply answers a synchronous request. Only the first reply counts;
// replies to asynchronous envelopes are dropped.
func (e *Envelope) Reply(m msg.Message) bool {
	if e.reply == nil {
		return false
	}
	sent := false
	e.once.Do(func() {
		e.reply <- m
		sent = true
	})
	return sent
}

func (e *Envelope) abandon() {
	if e.reply == nil {
		return
	}
	e.once.Do(func() { close(e.reply) })
}

// Status is the outcome class of a synchronous request
type Status int

const (
	StatusOk Status = iota
	StatusTimedOut
	StatusChannelClosed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusTimedOut:
		return "TimedOut"
	case StatusChannelClosed:
		return "ChannelClosed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a synchronous request
type Result struct {
	Status   Status
	Response msg.Message
}

// Ok reports whether a response arrived
func (r Result) Ok() bool {
	return r.Status == StatusOk
}

// Succeeded reports whether the response is a Response carrying Success
func (r Result) Succeeded() bool {
	if r.Status != StatusOk {
		return false
	}
	resp, ok := r.Response.(msg.Response)
	return ok && resp.Code == msg.ReturnSuccess
}

// Err converts a failed result into a coded error
func (r Result) Err() error {
	switch r.Status {
	case StatusTimedOut:
		return mserror.New("request timed out").WithCode(mserror.CodeTimeout)
	case StatusChannelClosed:
		return mserror.New("channel closed").WithCode(mserror.CodeChannelClosed)
	default:
		return nil
	}
}
