// Package main is the one-shot capture entry point: it classifies a single
// capture request from the process environment, enqueues it through the
// Hybrid Router, and exits without waiting for the Job to finish.
package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/queue/asynq"
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/hybrid-capture/internal/config"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/rollout"
	"github.com/fairyhunter13/hybrid-capture/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := observability.SetupLogger(cfg)

	if cfg.RepositoryID == "" || cfg.RepositoryName == "" {
		log.Fatal("REPOSITORY_ID and REPOSITORY_NAME are required")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Fatal(err)
	}
	defer producer.Close()

	dispatcher, err := asynq.NewDispatcher(cfg.AsynqRedisAddr)
	if err != nil {
		log.Fatal(err)
	}
	defer dispatcher.Close()

	jobRepo := postgres.NewJobRepo(pool)
	rolloutRepo := postgres.NewRolloutRepo(pool)
	controller := rollout.New(rolloutRepo, logger)
	r := router.New(jobRepo, producer, dispatcher, controller, logger)

	job, err := r.Enqueue(ctx, resolveKind(), buildJobData(cfg))
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("enqueued job %s on backend %s", job.ID, job.Backend)
}

// resolveKind reads the job kind from the JOB_KIND environment variable,
// defaulting to "details" for a bare repository capture.
func resolveKind() domain.JobKind {
	if v := os.Getenv("JOB_KIND"); v != "" {
		return domain.JobKind(v)
	}
	return domain.JobKindDetails
}

func buildJobData(cfg config.Config) domain.JobData {
	data := domain.JobData{
		RepositoryID:   cfg.RepositoryID,
		RepositoryName: cfg.RepositoryName,
		TriggerSource:  domain.TriggerManual,
	}
	if cfg.TimeRange > 0 {
		data.TimeRangeDays = &cfg.TimeRange
	}
	if cfg.MaxItems > 0 {
		data.MaxItems = &cfg.MaxItems
	}
	if cfg.PRNumbers != "" {
		for _, s := range strings.Split(cfg.PRNumbers, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if n, err := strconv.Atoi(s); err == nil {
				data.PRNumbers = append(data.PRNumbers, n)
			}
		}
	}
	return data
}
