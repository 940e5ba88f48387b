// Package main provides the low-latency back-end's worker process: it
// drains the jobs topic and runs each Job through a Capture Worker.
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
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/hybrid-capture/internal/capture"
	"github.com/fairyhunter13/hybrid-capture/internal/config"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/forgeclient"
	"github.com/fairyhunter13/hybrid-capture/internal/governor"
	"github.com/fairyhunter13/hybrid-capture/internal/health"
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
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
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

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

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
	gov.SetBackend(string(domain.BackendLowLatency))
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

	retryProducer, err := redpanda.NewProducerWithTransactionalID(cfg.KafkaBrokers, "hybrid-capture-worker-retry", redpanda.TopicJobs)
	if err != nil {
		slog.Error("retry producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer retryProducer.Close()

	dlqProducer, err := redpanda.NewProducerWithTransactionalID(cfg.KafkaBrokers, "hybrid-capture-worker-dlq", redpanda.TopicJobsDLQ)
	if err != nil {
		slog.Error("dlq producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer dlqProducer.Close()

	retryManager := redpanda.NewRetryManager(retryProducer, dlqProducer)

	minWorkers := cfg.WorkerPoolSize / 2
	if minWorkers < 2 {
		minWorkers = 2
	}
	maxWorkers := cfg.WorkerPoolSize
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}

	handler := func(ctx domain.Context, job domain.Job) (domain.JobStatus, string) {
		if err := jobRepo.UpdateStatus(ctx, job.ID, domain.JobProcessing, "", ""); err != nil {
			slog.Warn("failed to mark low-latency job processing", slog.String("job_id", job.ID), slog.Any("error", err))
		}
		status, lastErr := captureWorker.Run(ctx, job)
		if err := jobRepo.UpdateStatus(ctx, job.ID, status, "", lastErr); err != nil {
			slog.Error("failed to persist low-latency job terminal status", slog.String("job_id", job.ID), slog.Any("error", err))
		}
		return status, lastErr
	}

	consumer, err := redpanda.NewConsumerWithConfig(cfg.KafkaBrokers, "hybrid-capture-workers", handler, retryManager, minWorkers, maxWorkers)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	sweeper := health.NewStuckJobSweeper(jobRepo, cfg.StuckJobMaxAge, cfg.StuckJobSweepInterval, logger)
	go sweeper.Run(ctx)

	slog.Info("starting redpanda consumer",
		slog.Int("min_workers", minWorkers),
		slog.Int("max_workers", maxWorkers))
	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		slog.Error("worker error", slog.Any("error", err))
	}

	slog.Info("worker stopped")
}
