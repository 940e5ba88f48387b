// Package health implements the stuck-job sweeper and the health
// collaborator that triggers automated rollback when in-flight error rates
// exceed a critical threshold (spec §6, §9 "Health Monitor --(reads)-->
// Rollout Controller --(triggers)--> Rollback").
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// StuckJobSweeper periodically marks Jobs that have been stuck in
// `processing` past maxProcessingAge as failed. Directly grounded on the
// teacher's own stuck-job sweeper: same ticker-driven sweep, here reading
// one page of at most sweepPageSize jobs per tick.
type StuckJobSweeper struct {
	jobs             domain.JobRepository
	maxProcessingAge time.Duration
	interval         time.Duration
	log              *slog.Logger
}

// NewStuckJobSweeper builds a sweeper; zero durations fall back to sane
// defaults so misconfiguration cannot disable sweeping silently.
func NewStuckJobSweeper(jobs domain.JobRepository, maxProcessingAge, interval time.Duration, log *slog.Logger) *StuckJobSweeper {
	if maxProcessingAge <= 0 {
		maxProcessingAge = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StuckJobSweeper{jobs: jobs, maxProcessingAge: maxProcessingAge, interval: interval, log: log}
}

// Run sweeps immediately, then on every tick, until ctx is cancelled.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			if s.log != nil {
				s.log.Info("stuck job sweeper stopping")
			}
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

const sweepPageSize = 100

// sweepOnce marks jobs still `processing` whose start time is older than
// maxProcessingAge as failed. It reads a single ListByStatus page of
// sweepPageSize jobs; any further stuck jobs are left for later sweeps.
func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxProcessingAge)
	markedFailed := 0

	jobs, err := s.jobs.ListByStatus(ctx, domain.JobProcessing, cutoff, sweepPageSize)
	if err != nil {
		if s.log != nil {
			s.log.Error("stuck job sweep failed to list jobs", "error", err)
		}
		return
	}

	for _, j := range jobs {
		msg := "job processing exceeded maximum age; marked failed by sweeper"
		if err := s.jobs.UpdateStatus(ctx, j.ID, domain.JobFailed, "", msg); err != nil {
			if s.log != nil {
				s.log.Error("stuck job sweep failed to update job status", "job_id", j.ID, "error", err)
			}
			continue
		}
		markedFailed++
	}

	if s.log != nil && markedFailed > 0 {
		s.log.Info("stuck job sweep marked jobs failed", "count", markedFailed)
	}
}
