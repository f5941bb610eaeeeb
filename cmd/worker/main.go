package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"campusgate/internal/app"
	"campusgate/internal/config"
	"campusgate/internal/logging"
)

// Worker drains the redis sync queue and runs each manual job.
func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.QueueBackend != "redis" {
		logging.Fatal().Str("queue", cfg.QueueBackend).Msg("worker needs QUEUE_BACKEND=redis; the memory queue is consumed inside the api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.Build(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		logging.Fatal().Err(err).Msg("worker init failed")
	}
	defer svc.Close()

	if err := svc.Biostar.Ping(ctx); err != nil {
		logging.Warn().Err(err).Msg("biostar not reachable, jobs will retry on upload")
	}

	if err := svc.Orchestrator.Consume(ctx, svc.Queue); err != nil {
		logging.Error().Err(err).Msg("worker stopped")
		return
	}
	logging.Info().Msg("worker stopped")
}
