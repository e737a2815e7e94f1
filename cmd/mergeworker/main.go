package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/vqhq/mergeworker/internal/app"
	"github.com/vqhq/mergeworker/internal/worker"
)

func main() {
	var (
		continuous = flag.Bool("continuous", false, "keep polling for jobs instead of exiting after one")
	)
	flag.Parse()

	ctx := context.Background()
	err := app.Run(ctx, app.Options{Continuous: *continuous})
	if err == nil {
		return
	}

	slog.Error("worker exited with error", "error", err)
	if errors.Is(err, worker.ErrFailureBudget) || errors.Is(err, worker.ErrHeartbeatStuck) {
		os.Exit(2)
	}
	os.Exit(1)
}
