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

// Package worker implements the job lease lifecycle: claim acquisition,
// background lease renewal, disposition resolution and the surrounding
// register/poll/deactivate loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/gofrs/uuid/v5"

	"github.com/vqhq/mergeworker/internal/job"
	"github.com/vqhq/mergeworker/internal/kube"
	"github.com/vqhq/mergeworker/internal/queue"
	"github.com/vqhq/mergeworker/internal/shutdown"
)

// JobsClient is the slice of the jobs-system API the lease lifecycle needs.
// *queue.Client implements it; tests substitute fakes.
type JobsClient interface {
	Register(ctx context.Context, reg queue.WorkerRegistration) (*queue.Worker, error)
	Deactivate(ctx context.Context, workerID uuid.UUID) error
	Poll(ctx context.Context, workerID uuid.UUID, claimDuration time.Duration) (*queue.Claim, error)
	ExtendClaim(ctx context.Context, taskID, workerID, claimID uuid.UUID, extension time.Duration) (queue.ClaimStatus, error)
	Complete(ctx context.Context, workerID, taskID, claimID uuid.UUID) error
	Return(ctx context.Context, workerID, taskID, claimID uuid.UUID) error
}

var _ JobsClient = (*queue.Client)(nil)

// WorkFn is the caller-supplied job body. It must check the shutdown
// coordinator at safe points and bail out early; nothing preempts it.
type WorkFn func(ctx context.Context, j *job.Job) error

// Disposition is the single terminal classification of one lease session.
type Disposition int

const (
	// NoJob - the poll came back empty.
	NoJob Disposition = iota
	// Completed - work finished and success was reported.
	Completed
	// Failed - the work errored; the task was returned to the pool.
	Failed
	// Interrupted - the host asked us to stop mid-job; the task was
	// returned to the pool with the interrupt message.
	Interrupted
	// CancelledByQueue - the jobs system cancelled the task. It already
	// knows; notifying it would be a protocol violation.
	CancelledByQueue
)

func (d Disposition) String() string {
	switch d {
	case NoJob:
		return "no job"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Interrupted:
		return "interrupted"
	case CancelledByQueue:
		return "cancelled by queue"
	default:
		return "unknown"
	}
}

// Outcome describes how one AcquireAndRun call ended.
type Outcome struct {
	Disposition Disposition
	TaskUUID    uuid.UUID

	// WorkErr is the cause behind a Failed disposition.
	WorkErr error

	// Message is what was reported to the return endpoint, if anything.
	Message string

	// HeartbeatErr is a fatal renewal fault (repeated failures or a stuck
	// goroutine). Set even when the work itself succeeded: it means the
	// lease may have lapsed mid-work, which the caller must not swallow.
	HeartbeatErr error
}

// ErrSessionOpen - a second AcquireAndRun while one is in flight.
var ErrSessionOpen = errors.New("a lease session is already open for this worker")

// How many times the return call is retried before the failure propagates
// to the loop's budget.
const returnAttempts = 3

var returnRetryDelay = time.Second

// Sessions drives one lease session at a time: poll, claim, heartbeat, run,
// resolve.
type Sessions struct {
	client JobsClient
	coord  *shutdown.Coordinator
	hint   kube.CostHinter

	heartbeatInterval time.Duration
	claimDuration     time.Duration

	open atomic.Bool
}

func NewSessions(client JobsClient, coord *shutdown.Coordinator, hint kube.CostHinter,
	heartbeatInterval, claimDuration time.Duration) *Sessions {
	if hint == nil {
		hint = kube.NopHinter{}
	}
	return &Sessions{
		client:            client,
		coord:             coord,
		hint:              hint,
		heartbeatInterval: heartbeatInterval,
		claimDuration:     claimDuration,
	}
}

// AcquireAndRun polls for a claim on behalf of identity and, if one is
// granted, runs fn under a live lease. It returns a non-nil Outcome unless
// the claim fetch itself failed; that error is the caller's to budget.
//
// The heartbeat is stopped and joined before any terminal call is made, so
// an extension can never race with (and overwrite the effect of) a
// complete or return.
func (s *Sessions) AcquireAndRun(ctx context.Context, identity *queue.Worker, fn WorkFn) (*Outcome, error) {
	if !s.open.CompareAndSwap(false, true) {
		return nil, ErrSessionOpen
	}
	defer s.open.Store(false)

	claim, err := s.client.Poll(ctx, identity.UUID, s.claimDuration)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		slog.Info("job poll returned no job")
		return &Outcome{Disposition: NoJob}, nil
	}

	log := slog.With("task", claim.TaskUUID, "claim", claim.ClaimUUID)
	log.Info("claim granted", "expires", claim.ClaimExpires, "retry", claim.TaskRetryCount)

	s.hint.SetDeletionCost(ctx, kube.CostBusy)
	defer s.hint.SetDeletionCost(ctx, kube.CostIdle)

	lease := HoldLease(claim.TaskUUID, claim.ClaimUUID)

	hb := NewHeartbeat(s.client, s.coord, identity.UUID, claim, s.heartbeatInterval, s.claimDuration)
	if err := hb.Start(); err != nil {
		return nil, err
	}

	var workErr error
	if j, jerr := job.FromClaim(claim); jerr != nil {
		workErr = jerr
	} else {
		workErr = runWork(ctx, fn, j)
	}

	// Join the renewal goroutine before touching the terminal endpoints.
	hb.Stop()
	hbErr := hb.Wait(10 * s.heartbeatInterval)

	out := &Outcome{TaskUUID: claim.TaskUUID, HeartbeatErr: hbErr}

	var notifyErr error
	switch {
	case s.coord.CurrentReason() == shutdown.ReasonJobCancelled:
		out.Disposition = CancelledByQueue
		// The claim is already void on the jobs system's side.
		_ = lease.Void()
		log.Info("task cancelled by jobs system, no notification sent")

	case s.coord.Signaled():
		out.Disposition = Interrupted
		out.Message = s.coord.Message()
		notifyErr = s.returnTask(ctx, identity, lease, out.Message, log)

	case workErr != nil:
		out.Disposition = Failed
		out.WorkErr = workErr
		out.Message = failureMessage(workErr)
		notifyErr = s.returnTask(ctx, identity, lease, out.Message, log)

	default:
		out.Disposition = Completed
		if err := lease.Complete(); err != nil {
			notifyErr = err
			break
		}
		notifyErr = s.client.Complete(notifyContext(ctx), identity.UUID, lease.TaskID(), lease.ClaimID())
		if notifyErr == nil {
			log.Info("task completed")
		}
	}

	if hbErr != nil {
		log.Error("lease renewal fault during session", "error", hbErr)
	}
	return out, notifyErr
}

// returnTask reports a failed or interrupted task back to the pool. The call
// is retried a few times; a still-failing return propagates to the loop's
// failure budget so it cannot be silently lost.
func (s *Sessions) returnTask(ctx context.Context, identity *queue.Worker, lease *Lease, message string, log *slog.Logger) error {
	log.Error("returning task", "error", message)

	if err := lease.Return(); err != nil {
		return err
	}

	return retry.Do(
		func() error {
			return s.client.Return(notifyContext(ctx), identity.UUID, lease.TaskID(), lease.ClaimID())
		},
		retry.Attempts(returnAttempts),
		retry.Delay(returnRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// notifyContext detaches terminal notifications from the work context: a
// shutdown that cancelled ctx must not also suppress the return call.
func notifyContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// runWork invokes fn exactly once, converting a panic into an error carrying
// the originating location.
func runWork(ctx context.Context, fn WorkFn, j *job.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Location: panicLocation()}
		}
	}()
	return fn(ctx, j)
}

// PanicError wraps a recovered panic from the work function.
type PanicError struct {
	Value    any
	Location string
}

func (e *PanicError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s: panic: %v", e.Location, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// panicLocation walks the stack from inside the deferred recover and picks
// the first frame outside the runtime and this package.
func panicLocation() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") &&
			!strings.Contains(frame.Function, "internal/worker.runWork") {
			return fmt.Sprintf("%s line %d", frame.File, frame.Line)
		}
		if !more {
			return ""
		}
	}
}

func failureMessage(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return err.Error()
}
