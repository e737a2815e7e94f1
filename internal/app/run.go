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

// Package app wires configuration, logging, signals and the jobs-system
// clients into a running worker process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vqhq/mergeworker/internal/config"
	"github.com/vqhq/mergeworker/internal/files"
	"github.com/vqhq/mergeworker/internal/job"
	"github.com/vqhq/mergeworker/internal/kube"
	"github.com/vqhq/mergeworker/internal/logger"
	"github.com/vqhq/mergeworker/internal/merge"
	"github.com/vqhq/mergeworker/internal/queue"
	"github.com/vqhq/mergeworker/internal/shutdown"
	"github.com/vqhq/mergeworker/internal/version"
	"github.com/vqhq/mergeworker/internal/worker"
)

type Options struct {
	// Continuous forces continuous mode regardless of the CONTINUOUS env
	// variable.
	Continuous bool
}

func Run(ctx context.Context, opts Options) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if opts.Continuous {
		cfg.Jobs.Continuous = true
	}

	log, err := logger.NewLogger(ctx, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(log.Slogger)
	defer func() {
		if log.LoggerProvider != nil {
			if err := log.LoggerProvider.Shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.Error("failed to shut down logger provider", "error", err)
			}
		}
	}()

	slog.Info("starting worker",
		"service", cfg.ServiceName(),
		"build", version.Build(),
		"continuous", cfg.Jobs.Continuous,
	)

	coord := shutdown.NewCoordinator()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			coord.Signal(shutdown.ReasonInterrupt, interruptMessage(sig))
		}
	}()

	ua := version.UserAgent()
	jobsClient := queue.NewClient(cfg.API.URL, cfg.API.Key, ua, cfg.API.RequestTimeout)
	filesClient := files.NewClient(cfg.API.URL, cfg.API.Key, ua, cfg.API.Organisation, cfg.API.RequestTimeout)

	var hint kube.CostHinter = kube.NopHinter{}
	if p := kube.NewPodPatcher(); p != nil {
		hint = p
	}

	w := worker.New(jobsClient, coord, hint, cfg.ServiceName(), cfg.Jobs)
	if err := w.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := w.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Error("failed to deactivate worker", "error", err)
		}
	}()

	err = w.Run(ctx, mergeJob(filesClient, coord))
	slog.Info("exiting")
	return err
}

// mergeJob is the job body: fetch the inputs, merge, upload the result. It
// checks the coordinator between phases and aborts early on shutdown; the
// session resolves the disposition from the coordinator, not from here.
func mergeJob(fc *files.Client, coord *shutdown.Coordinator) worker.WorkFn {
	return func(ctx context.Context, j *job.Job) error {
		log := slog.With("task", j.TaskUUID)

		dir, err := os.MkdirTemp("", "pdf-merge-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		err = func() error {
			inputs, err := fc.FetchAll(ctx, coord, j.FilesToMerge, dir)
			if err != nil {
				return err
			}
			if inputs == nil {
				// interrupted mid-download
				return nil
			}

			output := filepath.Join(dir, j.OutputName)
			if err := merge.Merge(inputs, output); err != nil {
				return err
			}

			if coord.Signaled() {
				return nil
			}
			return fc.Upload(ctx, j.DestinationFolder, []string{output})
		}()

		if err != nil {
			// Leave a visible trace next to where the output would have
			// landed; the task is still returned as failed.
			log.Info("attempting to write error log to files folder")
			if uerr := fc.UploadErrorReport(context.WithoutCancel(ctx), j.DestinationFolder, j.TaskUUID, err); uerr != nil {
				log.Error("could not upload error report", "error", uerr)
			}
			return err
		}

		log.Info("cleaned up")
		return nil
	}
}

func interruptMessage(sig os.Signal) string {
	name := sig.String()
	switch sig {
	case syscall.SIGINT:
		name = "SIGINT"
	case syscall.SIGTERM:
		name = "SIGTERM"
	}
	if num, ok := sig.(syscall.Signal); ok {
		return fmt.Sprintf("interrupted by host with %s (%d)", name, int(num))
	}
	return fmt.Sprintf("interrupted by host with %s", name)
}
