// Package capture implements the pluggable Capture Workers: one handler per
// job-kind, each transforming a Hybrid Forge Client record into store row
// upserts while maintaining a Progress row (spec §4, §7).
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/governor"
)

// rateExhaustedWait bounds how long a worker sleeps on a governor-refused
// call before retrying once (spec §7: "one minute, whichever is sooner").
const rateExhaustedWait = time.Minute

// Worker executes one Job by iterating its items, calling the forge for
// each, and upserting the normalised result into the store.
type Worker struct {
	forge    domain.ForgeClient
	store    domain.StoreRows
	gov      *governor.Governor
	progress domain.ProgressRepository
	log      *slog.Logger
}

// New builds a Worker wired against its forge client, store and governor.
func New(forge domain.ForgeClient, store domain.StoreRows, gov *governor.Governor, progress domain.ProgressRepository, log *slog.Logger) *Worker {
	return &Worker{forge: forge, store: store, gov: gov, progress: progress, log: log}
}

// itemHandler processes one item (a PR number) against the forge and store,
// returning an error classified per the §7 taxonomy.
type itemHandler func(ctx context.Context, job domain.Job, prNumber int) error

// Run executes job to completion, returning the terminal status and, if
// failed, a human-readable error summary. It never returns a Go error for
// item-level failures — those are recorded in Progress and only escalate to
// a failed Job per the §7 propagation policy.
func (w *Worker) Run(ctx context.Context, job domain.Job) (domain.JobStatus, string) {
	backend, kind := string(job.Backend), string(job.Kind)
	observability.StartProcessingJob(backend, kind)

	handler, err := w.handlerFor(job.Kind)
	if err != nil {
		observability.FailJob(backend, kind)
		return domain.JobFailed, err.Error()
	}

	items, err := w.resolveItems(ctx, job)
	if err != nil {
		observability.FailJob(backend, kind)
		return domain.JobFailed, err.Error()
	}

	progress := &domain.Progress{JobID: job.ID, Total: len(items)}
	consecutiveFailures := 0

	for _, prNumber := range items {
		if err := ctx.Err(); err != nil {
			w.saveProgress(ctx, progress)
			observability.FailJob(backend, kind)
			return domain.JobFailed, fmt.Sprintf("job cancelled: %v", err)
		}

		itemID := fmt.Sprintf("%d", prNumber)
		err := w.processItemWithPolicy(ctx, job, prNumber, handler)
		if err == nil {
			progress.RecordSuccess(itemID)
			consecutiveFailures = 0
		} else {
			progress.RecordFailure(itemID, err.Error(), time.Now())
			consecutiveFailures++
			if w.log != nil {
				w.log.Warn("capture item failed", "job_id", job.ID, "item", itemID, "error", err)
			}
			if consecutiveFailures >= domain.ConsecutiveFailureLimit {
				w.saveProgress(ctx, progress)
				observability.FailJob(backend, kind)
				return domain.JobFailed, fmt.Sprintf("aborted after %d consecutive item failures", consecutiveFailures)
			}
		}
		w.saveProgress(ctx, progress)
	}

	observability.CompleteJob(backend, kind)
	return domain.JobCompleted, ""
}

// processItemWithPolicy applies the §7 error taxonomy around one handler
// call: StoreConflict is success, RateExhausted sleeps and retries once,
// everything else is the item's terminal error.
func (w *Worker) processItemWithPolicy(ctx context.Context, job domain.Job, prNumber int, handler itemHandler) error {
	if w.gov != nil && w.gov.IsBelowCritical() {
		wait := rateExhaustedWait
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	err := handler(ctx, job, prNumber)
	if errors.Is(err, domain.ErrRateExhausted) {
		retryTimer := time.NewTimer(rateExhaustedWait)
		select {
		case <-ctx.Done():
			retryTimer.Stop()
			return ctx.Err()
		case <-retryTimer.C:
		}
		err = handler(ctx, job, prNumber)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStoreConflict) {
		return nil
	}
	return err
}

func (w *Worker) saveProgress(ctx context.Context, progress *domain.Progress) {
	if w.progress == nil {
		return
	}
	if err := w.progress.Upsert(ctx, progress); err != nil && w.log != nil {
		w.log.Error("failed to persist progress", "job_id", progress.JobID, "error", err)
	}
}

// resolveItems returns the PR numbers a Job must process. historical-sync
// jobs fetch the working set from the forge; all other kinds use the
// caller-supplied PRNumbers directly (spec §8: "an empty PR_NUMBERS with a
// non-empty time-range fetches work from the store, not from the forge
// directly" — historical-sync is the one kind that legitimately discovers
// its own item list, since it exists to backfill a time window).
func (w *Worker) resolveItems(ctx context.Context, job domain.Job) ([]int, error) {
	if job.Kind != domain.JobKindHistoricalSync {
		return job.PRNumbers, nil
	}

	days := job.TimeRangeDays
	if days <= 0 {
		days = 1
	}
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	prs, err := w.forge.GetRecentPRs(ctx, job.RepositoryID, job.RepositoryName, since, len(job.PRNumbers)+1000)
	if err != nil {
		return nil, fmt.Errorf("op=capture.resolveItems: %w", err)
	}

	numbers := make([]int, 0, len(prs))
	for _, pr := range prs {
		numbers = append(numbers, pr.Number)
	}
	return numbers, nil
}

func (w *Worker) handlerFor(kind domain.JobKind) (itemHandler, error) {
	switch kind {
	case domain.JobKindDetails, domain.JobKindHistoricalSync:
		return w.captureDetails, nil
	case domain.JobKindReviews:
		return w.captureReviews, nil
	case domain.JobKindComments:
		return w.captureComments, nil
	case domain.JobKindFileChanges:
		return w.captureFileChanges, nil
	default:
		return nil, fmt.Errorf("op=capture.handlerFor: %w: unknown job kind %q", domain.ErrInvalidArgument, kind)
	}
}

func (w *Worker) captureDetails(ctx context.Context, job domain.Job, prNumber int) error {
	record, err := w.forge.GetPRCompleteData(ctx, job.RepositoryID, job.RepositoryName, prNumber)
	if err != nil {
		return err
	}
	if err := w.store.UpsertRepository(ctx, job.RepositoryID, job.RepositoryName); err != nil {
		return err
	}
	return w.store.UpsertPullRequest(ctx, job.RepositoryID, record.PullRequest)
}

func (w *Worker) captureReviews(ctx context.Context, job domain.Job, prNumber int) error {
	reviews, err := w.forge.GetPRReviews(ctx, job.RepositoryID, job.RepositoryName, prNumber)
	if err != nil {
		return err
	}
	for _, r := range reviews {
		if err := w.store.UpsertReview(ctx, job.RepositoryID, prNumber, r); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) captureComments(ctx context.Context, job domain.Job, prNumber int) error {
	issueComments, reviewComments, err := w.forge.GetPRComments(ctx, job.RepositoryID, job.RepositoryName, prNumber)
	if err != nil {
		return err
	}
	for _, c := range issueComments {
		if err := w.store.UpsertComment(ctx, job.RepositoryID, prNumber, c, false); err != nil {
			return err
		}
	}
	for _, c := range reviewComments {
		if err := w.store.UpsertComment(ctx, job.RepositoryID, prNumber, c, true); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) captureFileChanges(ctx context.Context, job domain.Job, prNumber int) error {
	record, err := w.forge.GetPRCompleteData(ctx, job.RepositoryID, job.RepositoryName, prNumber)
	if err != nil {
		return err
	}
	return w.store.UpsertFileChanges(ctx, job.RepositoryID, prNumber, record.Files)
}
