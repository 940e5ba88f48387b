package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/fairyhunter13/hybrid-capture/internal/capture"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// Worker runs batch-dispatched workflow runs via an asynq server, replaying
// each one through the same capture.Worker logic the low-latency back-end
// runs per item.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker constructs a Worker draining batchQueue at the given concurrency.
func NewWorker(redisURL string, jobs domain.JobRepository, cw *capture.Worker, concurrency int) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=asynq.NewWorker redis: %w", err)
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{batchQueue: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskWorkflow, func(ctx context.Context, t *asynq.Task) error {
		return handleWorkflowTask(ctx, jobs, cw, t)
	})

	return &Worker{server: srv, mux: mux}, nil
}

// Start blocks, serving tasks until Stop is called.
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

// Stop gracefully shuts down the worker server.
func (w *Worker) Stop() {
	w.server.Shutdown()
}

// handleWorkflowTask decodes one batch workflow run and drives it to
// completion through cw, persisting the terminal status on jobs.
func handleWorkflowTask(ctx context.Context, jobs domain.JobRepository, cw *capture.Worker, t *asynq.Task) error {
	var payload WorkflowPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("op=asynq.handleWorkflowTask unmarshal: %w", err)
	}

	job, err := jobFromInputs(payload)
	if err != nil {
		return fmt.Errorf("op=asynq.handleWorkflowTask: %w", err)
	}

	if err := jobs.UpdateStatus(ctx, job.ID, domain.JobProcessing, "", ""); err != nil {
		slog.Warn("failed to mark batch job processing", slog.String("job_id", job.ID), slog.Any("error", err))
	}

	status, lastErr := cw.Run(ctx, job)
	if err := jobs.UpdateStatus(ctx, job.ID, status, "", lastErr); err != nil {
		slog.Error("failed to persist batch job terminal status", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	if status == domain.JobFailed {
		return fmt.Errorf("batch job %s failed: %s", job.ID, lastErr)
	}
	return nil
}

// jobFromInputs reconstructs the domain.Job a Router handed to Dispatch from
// the flattened string map asynq carries as a task payload.
func jobFromInputs(payload WorkflowPayload) (domain.Job, error) {
	in := payload.Inputs
	jobID := in["job_id"]
	if jobID == "" {
		return domain.Job{}, fmt.Errorf("%w: missing job_id", domain.ErrInvalidArgument)
	}

	job := domain.Job{
		ID:             jobID,
		Kind:           domain.JobKind(in["job_kind"]),
		RepositoryID:   in["repository_id"],
		RepositoryName: in["repository_name"],
		Backend:        domain.BackendBatch,
	}
	if v := in["time_range_days"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.TimeRangeDays = n
		}
	}
	if v := in["pr_numbers"]; v != "" {
		for _, s := range strings.Split(v, ",") {
			if n, err := strconv.Atoi(s); err == nil {
				job.PRNumbers = append(job.PRNumbers, n)
			}
		}
	}
	return job, nil
}
