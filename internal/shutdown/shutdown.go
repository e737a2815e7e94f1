// Copyright 2026 VQ Technologies Ltd
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package shutdown carries the process-wide stop signal shared between the
// job loop, the heartbeat goroutine and the OS signal handler.
package shutdown

import (
	"log/slog"
	"sync/atomic"
)

// Reason identifies why a shutdown was requested.
type Reason int32

const (
	ReasonNone Reason = iota
	// ReasonInterrupt - the host asked the process to stop (SIGINT/SIGTERM)
	ReasonInterrupt
	// ReasonJobCancelled - the jobs system cancelled the task we hold
	ReasonJobCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInterrupt:
		return "interrupt"
	case ReasonJobCancelled:
		return "job cancelled"
	default:
		return "unknown"
	}
}

type state struct {
	reason  Reason
	message string
}

// Coordinator is a one-shot, resettable stop flag with a reason attached.
//
// Signal is safe to call from any goroutine, including the one draining the
// OS signal channel: it performs a single compare-and-swap and closes a
// channel, nothing else. The first reason to arrive wins; later Signal calls
// are no-ops so a cancellation racing an interrupt can never mask it.
//
// Reset must only be called by the job loop between jobs, never concurrently
// with Signal.
type Coordinator struct {
	st   atomic.Pointer[state]
	done atomic.Pointer[chan struct{}]
}

func NewCoordinator() *Coordinator {
	c := &Coordinator{}
	ch := make(chan struct{})
	c.done.Store(&ch)
	return c
}

// Signal records the shutdown reason if none is set yet. A second call with
// a different reason only logs a warning; the stored reason is kept.
func (c *Coordinator) Signal(reason Reason, message string) {
	if !c.st.CompareAndSwap(nil, &state{reason: reason, message: message}) {
		prev := c.st.Load()
		slog.Warn("shutdown already signalled, keeping first reason",
			"new", reason, "old", prev.reason)
		return
	}

	slog.Info("shutting down", "reason", reason, "message", message)
	close(*c.done.Load())
}

// Signaled reports whether a shutdown has been requested.
func (c *Coordinator) Signaled() bool {
	return c.st.Load() != nil
}

// CurrentReason returns the stored reason, or ReasonNone.
func (c *Coordinator) CurrentReason() Reason {
	if st := c.st.Load(); st != nil {
		return st.reason
	}
	return ReasonNone
}

// Message returns the message recorded with the first Signal call.
func (c *Coordinator) Message() string {
	if st := c.st.Load(); st != nil {
		return st.message
	}
	return ""
}

// Done returns a channel closed once a shutdown has been signalled. The
// channel is replaced by Reset, so callers should re-fetch it per wait.
func (c *Coordinator) Done() <-chan struct{} {
	return *c.done.Load()
}

// Reset clears the signalled state so the loop can keep consuming jobs after
// a single-job cancellation.
func (c *Coordinator) Reset() {
	ch := make(chan struct{})
	c.done.Store(&ch)
	c.st.Store(nil)
}
