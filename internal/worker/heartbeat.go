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

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/vqhq/mergeworker/internal/queue"
	"github.com/vqhq/mergeworker/internal/shutdown"
)

const (
	hbStopped int32 = iota
	hbRunning
	hbStopping
)

// A heartbeat that misses this many consecutive extensions has lost the
// lease for all practical purposes.
const maxHeartbeatFailures = 5

var (
	// ErrHeartbeatRunning - Wait called without Stop first.
	ErrHeartbeatRunning = errors.New("heartbeat must be stopped before waiting for it")

	// ErrHeartbeatStuck - the renewal goroutine failed to exit within the
	// wait budget. The lease may still be serviced by a goroutine we no
	// longer control, so this is fatal to the worker.
	ErrHeartbeatStuck = errors.New("heartbeat goroutine stuck alive")
)

// Heartbeat keeps one claim alive by periodically extending it, and notices
// when the jobs system cancels the task out from under us.
//
// Lifecycle: Stopped -> Running (Start) -> Stopping (Stop) -> Stopped, with
// two controlled self-stops out of Running: task cancellation and the
// consecutive-failure limit.
type Heartbeat struct {
	client JobsClient
	coord  *shutdown.Coordinator

	workerID uuid.UUID
	taskID   uuid.UUID
	claimID  uuid.UUID

	interval  time.Duration
	extension time.Duration

	state atomic.Int32
	done  chan struct{}

	// fatal is written by the loop goroutine before done is closed and
	// read only after done is observed closed.
	fatal error

	log *slog.Logger
}

func NewHeartbeat(client JobsClient, coord *shutdown.Coordinator, workerID uuid.UUID,
	claim *queue.Claim, interval, extension time.Duration) *Heartbeat {
	return &Heartbeat{
		client:    client,
		coord:     coord,
		workerID:  workerID,
		taskID:    claim.TaskUUID,
		claimID:   claim.ClaimUUID,
		interval:  interval,
		extension: extension,
		done:      make(chan struct{}),
		log: slog.With(
			"task", claim.TaskUUID,
			"claim", claim.ClaimUUID,
		),
	}
}

// Start launches the renewal goroutine.
func (h *Heartbeat) Start() error {
	if !h.state.CompareAndSwap(hbStopped, hbRunning) {
		return errors.New("heartbeat already started")
	}
	go h.loop()
	return nil
}

// Stop requests the loop to exit at its next tick boundary. Safe to call
// more than once and after a self-stop.
func (h *Heartbeat) Stop() {
	h.state.CompareAndSwap(hbRunning, hbStopping)
}

// Wait blocks until the renewal goroutine has fully exited, then returns any
// fatal error it recorded. Stop must have been called first. A loop still
// alive after the timeout is reported as ErrHeartbeatStuck; the caller must
// treat that as fatal, not shrug it off.
func (h *Heartbeat) Wait(timeout time.Duration) error {
	if h.state.Load() == hbRunning {
		return ErrHeartbeatRunning
	}

	select {
	case <-h.done:
		return h.fatal
	case <-time.After(timeout):
		return ErrHeartbeatStuck
	}
}

func (h *Heartbeat) loop() {
	defer func() {
		h.state.Store(hbStopped)
		close(h.done)
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	failures := 0
	for range ticker.C {
		if h.state.Load() == hbStopping {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.interval)
		status, err := h.client.ExtendClaim(ctx, h.taskID, h.workerID, h.claimID, h.extension)
		cancel()

		if err != nil {
			failures++
			h.log.Error("a heartbeat failed", "error", err, "consecutive", failures)
			if failures >= maxHeartbeatFailures {
				h.log.Error("heartbeats failing successively, stopping loop")
				h.fatal = fmt.Errorf("lease extension failed %d times in a row: %w", failures, err)
				return
			}
			continue
		}
		failures = 0

		switch status {
		case queue.StatusInProgress:
			// lease extended, carry on
		case queue.StatusCancelled:
			h.coord.Signal(shutdown.ReasonJobCancelled, "cancelled by jobs system")
			return
		default:
			h.log.Warn("unexpected status from heartbeat", "status", string(status))
		}
	}
}
