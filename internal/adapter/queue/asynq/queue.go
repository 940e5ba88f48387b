// Package asynq implements the Batch back-end's BatchRunner against a
// Redis-backed asynq queue: Dispatch enqueues a workflow run and returns
// immediately, and Worker drains that queue by replaying the run through
// the same Capture Worker logic the low-latency back-end uses per item.
package asynq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// TaskWorkflow is the asynq task type a dispatched batch workflow run is
// enqueued under.
const TaskWorkflow = "batch_workflow_run"

// batchQueue is the asynq queue Dispatch enqueues onto and Worker drains.
const batchQueue = "batch"

// WorkflowPayload is the task payload carrying one batch dispatch request.
type WorkflowPayload struct {
	WorkflowName string
	Inputs       map[string]string
}

// Dispatcher implements domain.BatchRunner.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher connects a Dispatcher to the Redis instance at redisURL.
func NewDispatcher(redisURL string) (*Dispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=asynq.NewDispatcher redis: %w", err)
	}
	return &Dispatcher{client: asynq.NewClient(opt)}, nil
}

// Dispatch enqueues workflowName and returns immediately with the enqueued
// task's ID as the run identifier; it never blocks waiting for the run to
// complete.
func (d *Dispatcher) Dispatch(ctx domain.Context, workflowName string, inputs map[string]string) (string, error) {
	b, err := json.Marshal(WorkflowPayload{WorkflowName: workflowName, Inputs: inputs})
	if err != nil {
		return "", fmt.Errorf("op=asynq.Dispatch marshal: %w", err)
	}

	task := asynq.NewTask(TaskWorkflow, b)
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(batchQueue),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("op=asynq.Dispatch enqueue: %w: %w", domain.ErrBackendUnavailable, err)
	}
	return info.ID, nil
}

// Close releases the Dispatcher's Redis connection.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}
