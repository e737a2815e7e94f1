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
	"time"

	"github.com/vqhq/mergeworker/internal/config"
	"github.com/vqhq/mergeworker/internal/kube"
	"github.com/vqhq/mergeworker/internal/queue"
	"github.com/vqhq/mergeworker/internal/shutdown"
	"github.com/vqhq/mergeworker/internal/version"
)

// Both poll errors and job-run errors draw on this single budget; the loop
// gives up once they come this many times in a row.
const maxConsecutiveErrors = 5

// ErrFailureBudget - the loop hit maxConsecutiveErrors and stopped even
// though more jobs might exist.
var ErrFailureBudget = errors.New("successive errors, shutting down")

// Worker registers with the jobs system, consumes lease sessions until told
// to stop, and deregisters on the way out.
type Worker struct {
	client   JobsClient
	coord    *shutdown.Coordinator
	hint     kube.CostHinter
	service  string
	cfg      config.JobsConfig
	sessions *Sessions

	identity *queue.Worker
}

func New(client JobsClient, coord *shutdown.Coordinator, hint kube.CostHinter,
	service string, cfg config.JobsConfig) *Worker {
	if hint == nil {
		hint = kube.NopHinter{}
	}
	return &Worker{
		client:   client,
		coord:    coord,
		hint:     hint,
		service:  service,
		cfg:      cfg,
		sessions: NewSessions(client, coord, hint, cfg.HeartbeatInterval, cfg.ClaimDuration),
	}
}

// Identity returns the registered worker identity, nil before Open.
func (w *Worker) Identity() *queue.Worker { return w.identity }

// Open registers the worker and marks the pod cheap to evict while idle.
func (w *Worker) Open(ctx context.Context) error {
	identity, err := w.client.Register(ctx, queue.WorkerRegistration{
		ServiceName:  w.service,
		MajorVersion: version.Major,
		MinorVersion: version.Minor,
		PatchVersion: version.Patch,
	})
	if err != nil {
		return fmt.Errorf("registering worker: %w", err)
	}
	w.identity = identity
	slog.Info("worker registered", "worker", identity.UUID)

	w.hint.SetDeletionCost(ctx, kube.CostIdle)
	return nil
}

// Close deregisters the worker. It must run on every exit path, error or
// not, so the jobs system never keeps routing work at a dead worker.
func (w *Worker) Close(ctx context.Context) error {
	if w.identity == nil {
		return nil
	}
	slog.Info("deactivating worker", "worker", w.identity.UUID)
	return w.client.Deactivate(ctx, w.identity.UUID)
}

// Run consumes lease sessions until a terminal shutdown, the failure budget
// runs dry, or (in one-shot mode) the first job concludes. A clean exit
// returns nil; budget exhaustion and lease-renewal faults return an error.
func (w *Worker) Run(ctx context.Context, fn WorkFn) error {
	if w.identity == nil {
		return errors.New("worker not registered, call Open first")
	}

	failures := 0
	for {
		if w.coord.Signaled() {
			if !w.cfg.Continuous || w.coord.CurrentReason() != shutdown.ReasonJobCancelled {
				slog.Info("worker loop exiting", "reason", w.coord.CurrentReason())
				return nil
			}
			// One cancelled job must not take down a continuous worker;
			// clear the flag and keep consuming.
			w.coord.Reset()
		}

		out, err := w.sessions.AcquireAndRun(ctx, w.identity, fn)
		if err != nil {
			failures++
			slog.Error("error running job session", "error", err, "consecutive", failures)
			if failures >= maxConsecutiveErrors {
				return fmt.Errorf("%w (%d in a row): %w", ErrFailureBudget, failures, err)
			}
			if !w.cfg.Continuous {
				return nil
			}
			continue
		}
		failures = 0

		// A renewal fault means we may have worked past lease expiry;
		// operating on is riskier than restarting the worker.
		if out.HeartbeatErr != nil {
			return fmt.Errorf("lease renewal fault on task %s: %w", out.TaskUUID, out.HeartbeatErr)
		}

		if out.Disposition == NoJob {
			if !w.cfg.Continuous {
				slog.Info("no jobs found, shutting down")
				return nil
			}
			slog.Info("no jobs found, waiting...", "sleep", w.cfg.PollSleep)
			w.wait(w.cfg.PollSleep)
			continue
		}

		slog.Info("job session concluded",
			"task", out.TaskUUID, "disposition", out.Disposition.String())

		if !w.cfg.Continuous {
			return nil
		}
		slog.Info("checking for new job...")
	}
}

// wait sleeps for d but returns early on a shutdown signal.
func (w *Worker) wait(d time.Duration) {
	select {
	case <-w.coord.Done():
	case <-time.After(d):
	}
}
