package redpanda

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// attemptHeader carries the zero-based delivery attempt count on a Job
// record, incremented by RetryManager each time a Job is requeued after a
// retryable failure.
const attemptHeader = "attempt"

// maxDeliveryAttempts bounds how many times RetryManager requeues a Job
// before routing it to the dead-letter topic. This is independent of
// domain.ConsecutiveFailureLimit, which bounds item failures within a
// single Capture Worker run rather than redeliveries of the whole Job.
const maxDeliveryAttempts = 5

// RetryManager decides whether a Job that failed processing gets requeued
// onto the jobs topic or routed to the dead-letter topic, and performs that
// routing.
type RetryManager struct {
	retryProducer *Producer
	dlqProducer   *Producer
}

// NewRetryManager wires a RetryManager against the producers it requeues
// through: retryProducer republishes to the jobs topic, dlqProducer
// publishes to the dead-letter topic.
func NewRetryManager(retryProducer, dlqProducer *Producer) *RetryManager {
	return &RetryManager{retryProducer: retryProducer, dlqProducer: dlqProducer}
}

// Handle routes job after a failed processing attempt: retryable failures
// under maxDeliveryAttempts are republished with an incremented attempt
// count; everything else is sent to the dead-letter topic.
func (rm *RetryManager) Handle(ctx context.Context, job domain.Job, attempt int, cause error) error {
	code := classifyFailureCode(cause)
	if !shouldRetry(code, attempt) {
		slog.Info("routing job to dead-letter topic",
			slog.String("job_id", job.ID),
			slog.String("failure_code", code),
			slog.Int("attempt", attempt))
		return rm.moveToDLQ(ctx, job, attempt, cause)
	}

	slog.Info("requeueing job after retryable failure",
		slog.String("job_id", job.ID),
		slog.String("failure_code", code),
		slog.Int("next_attempt", attempt+1))
	if err := rm.retryProducer.publishWithAttempt(ctx, job, attempt+1); err != nil {
		return fmt.Errorf("op=redpanda.RetryManager.Handle requeue: %w", err)
	}
	return nil
}

// moveToDLQ publishes job, annotated with its failure, to the dead-letter
// topic for manual or automated reprocessing.
func (rm *RetryManager) moveToDLQ(ctx context.Context, job domain.Job, attempt int, cause error) error {
	if rm.dlqProducer == nil {
		return fmt.Errorf("op=redpanda.RetryManager.moveToDLQ: no dlq producer configured")
	}
	job.Status = domain.JobFailed
	job.LastError = cause.Error()
	if err := rm.dlqProducer.publishWithAttempt(ctx, job, attempt); err != nil {
		return fmt.Errorf("op=redpanda.RetryManager.moveToDLQ: %w", err)
	}
	return nil
}

// shouldRetry reports whether a Job that failed with the given code on its
// attempt-th delivery should be requeued rather than dead-lettered.
func shouldRetry(code string, attempt int) bool {
	return retryable(code) && attempt+1 < maxDeliveryAttempts
}

// attemptFromHeaders extracts the delivery-attempt count from a record's
// headers, defaulting to 0 for records that lack the header.
func attemptFromHeaders(headers []kgo.RecordHeader) int {
	for _, h := range headers {
		if h.Key == attemptHeader {
			n, err := strconv.Atoi(string(h.Value))
			if err != nil {
				return 0
			}
			return n
		}
	}
	return 0
}
