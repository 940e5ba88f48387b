// Package main provides the batch back-end's job-runner process: it drains
// dispatched workflow runs from asynq and replays each through a Capture
// Worker, the same logic the low-latency back-end runs per item.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/queue/asynq"
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/hybrid-capture/internal/capture"
	"github.com/fairyhunter13/hybrid-capture/internal/config"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/forgeclient"
	"github.com/fairyhunter13/hybrid-capture/internal/governor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9091", mux); err != nil {
			slog.Error("batchrunner metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepo(pool)
	progressRepo := postgres.NewProgressRepo(pool)
	storeRepo := postgres.NewStoreRepo(pool)

	gov := governor.New()
	gov.SetBackend(string(domain.BackendBatch))
	defer gov.Close()

	maxElapsed, initialInterval, maxInterval, multiplier := cfg.GetForgeBackoffConfig()
	forge := forgeclient.New(forgeclient.Config{
		ForgeBaseURL:           cfg.ForgeBaseURL,
		ForgeGraphQLURL:        cfg.ForgeGraphQLURL,
		Token:                  cfg.GitHubToken,
		CallTimeout:            cfg.ForgeCallTimeout,
		BackoffMaxElapsedTime:  maxElapsed,
		BackoffInitialInterval: initialInterval,
		BackoffMaxInterval:     maxInterval,
		BackoffMultiplier:      multiplier,
	}, gov, logger)
	forge.SetCompoundEnabled(cfg.UseCompoundQueries)

	captureWorker := capture.New(forge, storeRepo, gov, progressRepo, logger)

	worker, err := asynq.NewWorker(cfg.AsynqRedisAddr, jobRepo, captureWorker, cfg.ConsumerMaxConcurrency)
	if err != nil {
		slog.Error("asynq worker init failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting batch workflow runner", slog.Int("concurrency", cfg.ConsumerMaxConcurrency))
	if err := worker.Start(); err != nil {
		slog.Error("batchrunner error", slog.Any("error", err))
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("signal received, shutting down batchrunner")
	worker.Stop()
	slog.Info("batchrunner stopped")
}
