// Package main runs one health check: it samples the in-flight Job error
// rate, rolls the feature rollout back automatically when the critical
// threshold is exceeded (or FORCE_CHECK is set), and writes an incident
// report artifact.
package main

import (
	"context"
	"log"
	"os"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/hybrid-capture/internal/config"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/health"
	"github.com/fairyhunter13/hybrid-capture/internal/rollout"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := observability.SetupLogger(cfg)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepo(pool)
	controller := rollout.New(postgres.NewRolloutRepo(pool), logger)

	monitor := health.NewMonitor(jobRepo, controller, domain.DefaultFeature, cfg.CriticalErrorRatePercent, cfg.ArtifactDir, logger)

	report, err := monitor.Check(ctx, health.CheckType(cfg.CheckType), cfg.ForceCheck)
	if err != nil {
		log.Fatal(err)
	}

	logger.Info("health check complete",
		"check_type", report.CheckType,
		"sampled_jobs", report.SampledJobs,
		"failed_jobs", report.FailedJobs,
		"error_rate_percent", report.ErrorRatePercent,
		"rolled_back", report.RolledBack)

	if report.RolledBack {
		os.Exit(2)
	}
}
