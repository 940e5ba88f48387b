package forgeclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/governor"
	"github.com/fairyhunter13/hybrid-capture/internal/resilience"
)

// Config is the subset of wiring HybridClient needs from the process config.
type Config struct {
	ForgeBaseURL    string
	ForgeGraphQLURL string
	Token           string
	CallTimeout     time.Duration

	BackoffMaxElapsedTime  time.Duration
	BackoffInitialInterval time.Duration
	BackoffMaxInterval     time.Duration
	BackoffMultiplier      float64
}

// HybridClient implements domain.ForgeClient: it prefers the compound path
// and falls back to the fine-grained path on any failure other than
// domain.ErrNotFound (spec §4.2). Both paths share one cost budget via gov.
type HybridClient struct {
	compound    *compoundPath
	finegrained *finegrainedPath
	gov         *governor.Governor
	log         *slog.Logger

	compoundCB *resilience.CircuitBreaker
	fineCB     *resilience.CircuitBreaker
	compoundAT *resilience.AdaptiveTimeout
	fineAT     *resilience.AdaptiveTimeout

	backoffCfg Config

	mu               sync.Mutex
	compoundEnabled  bool
	compoundQueries  int
	fineGrainedCount int
	fallbacks        int
	totalPointsSaved int
}

// New builds a HybridClient wired against cfg, tracking cost against gov.
func New(cfg Config, gov *governor.Governor, log *slog.Logger) *HybridClient {
	client := newTracedClient()
	return &HybridClient{
		compound:        newCompoundPath(client, cfg.ForgeGraphQLURL, cfg.Token),
		finegrained:     newFinegrainedPath(client, cfg.ForgeBaseURL, cfg.Token),
		gov:             gov,
		log:             log,
		compoundCB:      resilience.NewCircuitBreaker("compound"),
		fineCB:          resilience.NewCircuitBreaker("fine_grained"),
		compoundAT:      resilience.NewAdaptiveTimeout(cfg.CallTimeout, cfg.CallTimeout/5),
		fineAT:          resilience.NewAdaptiveTimeout(cfg.CallTimeout, cfg.CallTimeout/5),
		backoffCfg:      cfg,
		compoundEnabled: true,
	}
}

// SetCompoundEnabled toggles whether the compound path is attempted at all;
// disabling it forces every call through the fine-grained path (spec §4.2).
func (h *HybridClient) SetCompoundEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.compoundEnabled = enabled
}

func (h *HybridClient) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.backoffCfg.BackoffInitialInterval
	b.MaxInterval = h.backoffCfg.BackoffMaxInterval
	b.MaxElapsedTime = h.backoffCfg.BackoffMaxElapsedTime
	b.Multiplier = h.backoffCfg.BackoffMultiplier
	return backoff.WithContext(b, ctx)
}

// GetPRCompleteData tries the compound path first, falling back to the
// fine-grained path on any non-NotFound failure (spec §4.2).
func (h *HybridClient) GetPRCompleteData(ctx context.Context, owner, repo string, prNumber int) (domain.PRCompleteData, error) {
	h.mu.Lock()
	tryCompound := h.compoundEnabled && h.compoundCB.ShouldAttempt()
	h.mu.Unlock()

	if tryCompound {
		record, rl, err := h.callCompound(ctx, owner, repo, prNumber)
		if err == nil {
			h.recordCompoundSuccess(rl)
			return record, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PRCompleteData{}, err
		}
		h.recordFallback(err, owner, repo, prNumber)
	}

	record, rl, err := h.callFinegrained(ctx, owner, repo, prNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PRCompleteData{}, err
		}
		return domain.PRCompleteData{}, err
	}
	h.recordFineGrainedSuccess(rl)
	return record, nil
}

func (h *HybridClient) callCompound(ctx context.Context, owner, repo string, prNumber int) (domain.PRCompleteData, domain.RateLimitInfo, error) {
	callCtx, cancel := h.compoundAT.WithTimeout(ctx)
	defer cancel()

	var record domain.PRCompleteData
	var rl domain.RateLimitInfo
	start := time.Now()

	op := func() error {
		r, limit, err := h.compound.getPRCompleteData(callCtx, owner, repo, prNumber)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		record, rl = r, limit
		return nil
	}

	err := backoff.Retry(op, h.newBackOff(callCtx))
	observability.RecordForgeRequest("compound", "GetPRCompleteData", time.Since(start))
	if err != nil {
		h.compoundCB.RecordFailure()
		h.compoundAT.RecordFailure()
		observability.RecordCircuitBreakerStatus("forge", "compound", int(h.compoundCB.State()))
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, err
	}
	h.compoundCB.RecordSuccess()
	h.compoundAT.RecordSuccess(time.Since(start))
	observability.RecordCircuitBreakerStatus("forge", "compound", int(h.compoundCB.State()))
	return record, rl, nil
}

func (h *HybridClient) callFinegrained(ctx context.Context, owner, repo string, prNumber int) (domain.PRCompleteData, domain.RateLimitInfo, error) {
	callCtx, cancel := h.fineAT.WithTimeout(ctx)
	defer cancel()

	var record domain.PRCompleteData
	var rl domain.RateLimitInfo
	start := time.Now()

	op := func() error {
		r, limit, err := h.finegrained.getPRCompleteData(callCtx, owner, repo, prNumber)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		record, rl = r, limit
		return nil
	}

	err := backoff.Retry(op, h.newBackOff(callCtx))
	observability.RecordForgeRequest("fine-grained", "GetPRCompleteData", time.Since(start))
	if err != nil {
		h.fineCB.RecordFailure()
		h.fineAT.RecordFailure()
		observability.RecordCircuitBreakerStatus("forge", "fine_grained", int(h.fineCB.State()))
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, err
	}
	h.fineCB.RecordSuccess()
	h.fineAT.RecordSuccess(time.Since(start))
	observability.RecordCircuitBreakerStatus("forge", "fine_grained", int(h.fineCB.State()))
	return record, rl, nil
}

func (h *HybridClient) recordCompoundSuccess(rl domain.RateLimitInfo) {
	h.mu.Lock()
	h.compoundQueries++
	saved := 5 - rl.Cost
	if saved < 0 {
		saved = 0
	}
	h.totalPointsSaved += saved
	h.mu.Unlock()

	observability.RecordForgePointsSaved(saved)

	if h.gov != nil {
		h.gov.Track(domain.RateSample{
			Timestamp: time.Now(),
			Remaining: rl.Remaining,
			Limit:     rl.Limit,
			Cost:      rl.Cost,
			QueryType: domain.QueryTypePRCompleteData,
		}, domain.QueryTypePRCompleteData, 1)
	}
}

// fineGrainedCallsPerPRCompleteData is the number of independent REST calls
// finegrainedPath.getPRCompleteData issues (spec §4.2: "+1 per underlying
// call", and §8 scenario 3: "five fineGrainedQueries increments").
const fineGrainedCallsPerPRCompleteData = 5

func (h *HybridClient) recordFineGrainedSuccess(rl domain.RateLimitInfo) {
	h.mu.Lock()
	h.fineGrainedCount += fineGrainedCallsPerPRCompleteData
	h.mu.Unlock()

	if h.gov != nil {
		h.gov.Track(domain.RateSample{
			Timestamp: time.Now(),
			Remaining: rl.Remaining,
			Limit:     rl.Limit,
			Cost:      rl.Cost,
			QueryType: domain.QueryTypePRCompleteData,
		}, domain.QueryTypePRCompleteData, 1)
	}
}

func (h *HybridClient) recordFallback(err error, owner, repo string, prNumber int) {
	h.mu.Lock()
	h.fallbacks++
	h.mu.Unlock()

	observability.RecordForgeFallback(fallbackReason(err))

	if h.log != nil {
		h.log.Warn("compound query failed, falling back to fine-grained path",
			"owner", owner, "repo", repo, "pr_number", prNumber, "error", err)
	}
}

// GetPRReviews fetches reviews alone via the fine-grained path; there is no
// standalone compound form for a partial read.
func (h *HybridClient) GetPRReviews(ctx context.Context, owner, repo string, prNumber int) ([]domain.Review, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, prNumber)
	var reviews []domain.Review
	if err := h.fineGet(ctx, path, &reviews, domain.QueryTypeReviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// GetPRComments fetches issue comments and review comments via the
// fine-grained path, returned as (issueComments, reviewComments).
func (h *HybridClient) GetPRComments(ctx context.Context, owner, repo string, prNumber int) ([]domain.Comment, []domain.Comment, error) {
	issuePath := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, prNumber)
	var issueComments []domain.Comment
	if err := h.fineGet(ctx, issuePath, &issueComments, domain.QueryTypeComments); err != nil {
		return nil, nil, err
	}

	reviewPath := fmt.Sprintf("/repos/%s/%s/pulls/%d/comments", owner, repo, prNumber)
	var reviewComments []domain.Comment
	if err := h.fineGet(ctx, reviewPath, &reviewComments, domain.QueryTypeComments); err != nil {
		return nil, nil, err
	}
	return issueComments, reviewComments, nil
}

// GetRecentPRs lists PRs updated since a point in time, used by historical
// sync jobs. Always fine-grained: there is no single-PR compound shape for
// a list operation.
func (h *HybridClient) GetRecentPRs(ctx context.Context, owner, repo string, since time.Time, limit int) ([]domain.PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=all&sort=updated&direction=desc&since=%s&per_page=%d",
		owner, repo, since.UTC().Format(time.RFC3339), limit)
	var prs []domain.PullRequest
	if err := h.fineGet(ctx, path, &prs, domain.QueryTypeRecentPRs); err != nil {
		return nil, err
	}
	return prs, nil
}

func (h *HybridClient) fineGet(ctx context.Context, path string, out interface{}, qt domain.QueryType) error {
	callCtx, cancel := h.fineAT.WithTimeout(ctx)
	defer cancel()

	op := func() error {
		req, err := h.finegrained.newRequest(callCtx, path)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := doJSON(callCtx, h.finegrained.client, req, out); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, h.newBackOff(callCtx)); err != nil {
		h.fineCB.RecordFailure()
		return err
	}
	h.fineCB.RecordSuccess()

	h.mu.Lock()
	h.fineGrainedCount++
	h.mu.Unlock()

	if h.gov != nil {
		h.gov.Track(domain.RateSample{
			Timestamp: time.Now(),
			Cost:      fineGrainedCallCost,
			QueryType: qt,
		}, qt, 1)
	}
	return nil
}

// fallbackReason buckets a compound-path failure for the fallback-reason
// metric label, keeping cardinality low.
func fallbackReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateExhausted):
		return "rate_exhausted"
	case errors.Is(err, domain.ErrTransport):
		return "transport_error"
	default:
		return "compound_error"
	}
}

// GetMetrics returns a snapshot of the counters this client has accumulated.
func (h *HybridClient) GetMetrics() domain.ForgeMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return domain.ForgeMetrics{
		CompoundQueries:    h.compoundQueries,
		FineGrainedQueries: h.fineGrainedCount,
		Fallbacks:          h.fallbacks,
		TotalPointsSaved:   h.totalPointsSaved,
	}
}
