// Command docworker parses documents for the loader. It reads load requests as
// JSON lines on stdin and writes results to stdout; logs go to stderr.
//
//	WORKER_SRC=/usr/local/bin/docworker
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/docloader/internal/config"
	"github.com/markdave123-py/docloader/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("pid", os.Getpid())

	srv := worker.NewFromConfig(ctx, cfg, logger)
	logger.Info("worker ready", "concurrency", cfg.WorkerConcurrency)

	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("input closed, exiting")
}
