package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// RolloutGate is the narrow capability the Router needs from the Rollout
// Controller: whether hybrid (batch) routing is currently admitted for a
// repository. Declared here, consumer-side, rather than importing the
// rollout package directly, to avoid a router<->rollout import cycle.
type RolloutGate interface {
	IsAllowed(ctx context.Context, feature, repositoryID string) (bool, error)
}

// backendRetryWait is the short bounded wait before retrying a refused
// dispatch against the same back-end (spec §4.1).
const backendRetryWait = 500 * time.Millisecond

// Router implements the Hybrid Router (spec §4.1).
type Router struct {
	jobs       domain.JobRepository
	lowLatency domain.LowLatencyQueue
	batch      domain.BatchRunner
	gate       RolloutGate
	feature    string
	log        *slog.Logger
}

// New constructs a Router. gate may be nil, in which case the rollout check
// is skipped and classification alone decides the back-end — used by
// callers that run with hybrid routing permanently enabled.
func New(jobs domain.JobRepository, lowLatency domain.LowLatencyQueue, batch domain.BatchRunner, gate RolloutGate, log *slog.Logger) *Router {
	return &Router{
		jobs:       jobs,
		lowLatency: lowLatency,
		batch:      batch,
		gate:       gate,
		feature:    domain.DefaultFeature,
		log:        log,
	}
}

// Enqueue classifies the request, consults the rollout gate, creates the
// Job row, and dispatches to the chosen back-end. It returns once the back-
// end has accepted dispatch, not after the work completes (spec §4.1).
func (r *Router) Enqueue(ctx context.Context, kind domain.JobKind, data domain.JobData) (*domain.Job, error) {
	if data.RepositoryID == "" || data.RepositoryName == "" {
		return nil, fmt.Errorf("op=router.Enqueue: %w", domain.ErrInvalidArgument)
	}

	backend := Classify(data)

	if backend == domain.BackendBatch && r.gate != nil {
		allowed, err := r.gate.IsAllowed(ctx, r.feature, data.RepositoryID)
		if err != nil {
			return nil, fmt.Errorf("op=router.Enqueue rollout check: %w", domain.ErrRolloutGated)
		}
		if !allowed {
			// Hybrid routing disabled for this repository: every request
			// goes to the low-latency back-end (spec §4.1).
			backend = domain.BackendLowLatency
		}
	}

	if backend == domain.BackendLowLatency && len(data.PRNumbers) > domain.MaxLowLatencyItems {
		return nil, fmt.Errorf("op=router.Enqueue: %w: %d items exceeds low-latency cap of %d",
			domain.ErrInvalidArgument, len(data.PRNumbers), domain.MaxLowLatencyItems)
	}

	timeRangeDays := 0
	if data.TimeRangeDays != nil {
		timeRangeDays = *data.TimeRangeDays
	}

	job := &domain.Job{
		ID:             uuid.NewString(),
		Kind:           kind,
		RepositoryID:   data.RepositoryID,
		RepositoryName: data.RepositoryName,
		Backend:        backend,
		Status:         domain.JobPending,
		TimeRangeDays:  timeRangeDays,
		PRNumbers:      data.PRNumbers,
		CreatedAt:      time.Now(),
	}

	if err := r.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("op=router.Enqueue create job: %w", err)
	}

	if err := r.dispatchWithRetry(ctx, job, data); err != nil {
		return nil, err
	}

	observability.EnqueueJob(string(job.Backend), string(job.Kind))

	return job, nil
}

// dispatchWithRetry sends job to its chosen back-end, retrying once against
// the same back-end after a short bounded wait on refusal, then surfacing
// BackendUnavailable (spec §4.1: "The Router does not automatically
// cross-dispatch between back-ends").
func (r *Router) dispatchWithRetry(ctx context.Context, job *domain.Job, data domain.JobData) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backendRetryWait):
			case <-ctx.Done():
				return fmt.Errorf("op=router.dispatch: %w", ctx.Err())
			}
		}

		var err error
		switch job.Backend {
		case domain.BackendLowLatency:
			err = r.lowLatency.Publish(ctx, *job)
		case domain.BackendBatch:
			err = r.dispatchBatch(ctx, job, data)
		default:
			err = fmt.Errorf("unknown backend %q", job.Backend)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if r.log != nil {
			r.log.Warn("backend dispatch refused",
				slog.String("job_id", job.ID),
				slog.String("backend", string(job.Backend)),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))
		}
	}
	return fmt.Errorf("op=router.dispatch job_id=%s backend=%s: %w: %v", job.ID, job.Backend, domain.ErrBackendUnavailable, lastErr)
}

func (r *Router) dispatchBatch(ctx context.Context, job *domain.Job, data domain.JobData) error {
	inputs := map[string]string{
		"repository_id":   data.RepositoryID,
		"repository_name": data.RepositoryName,
		"job_id":          job.ID,
		"job_kind":        string(job.Kind),
	}
	if data.TimeRangeDays != nil {
		inputs["time_range_days"] = fmt.Sprintf("%d", *data.TimeRangeDays)
	}
	if data.MaxItems != nil {
		inputs["max_items"] = fmt.Sprintf("%d", *data.MaxItems)
	}
	if len(data.PRNumbers) > 0 {
		numbers := make([]string, len(data.PRNumbers))
		for i, n := range data.PRNumbers {
			numbers[i] = fmt.Sprintf("%d", n)
		}
		inputs["pr_numbers"] = strings.Join(numbers, ",")
	}

	runID, err := r.batch.Dispatch(ctx, batchWorkflowFor(job.Kind), inputs)
	if err != nil {
		return err
	}
	job.ExternalRunID = runID
	return nil
}

// batchWorkflowFor names the external workflow per job kind.
func batchWorkflowFor(kind domain.JobKind) string {
	return "progressive_capture_" + string(kind)
}
