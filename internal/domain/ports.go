package domain

import "time"

// Ports are declared small and consumer-shaped, following the teacher's own
// domain.Queue/domain.AIClient style: each describes exactly what one
// component needs from its collaborator, nothing more.

// JobRepository persists Job rows (table progressive_capture_jobs).
type JobRepository interface {
	Create(ctx Context, job *Job) error
	UpdateStatus(ctx Context, id string, status JobStatus, externalRunID, lastError string) error
	Get(ctx Context, id string) (*Job, error)
	ListByStatus(ctx Context, status JobStatus, startedBefore time.Time, limit int) ([]Job, error)
}

// ProgressRepository persists Progress rows (table progressive_capture_progress).
type ProgressRepository interface {
	Upsert(ctx Context, p *Progress) error
	Get(ctx Context, jobID string) (*Progress, error)
}

// RolloutRepository persists Rollout Configuration and History rows, and
// MUST make Update+history-append atomic (spec §5).
type RolloutRepository interface {
	Get(ctx Context, feature string) (*RolloutConfig, error)
	Update(ctx Context, cfg RolloutConfig, entry RolloutHistoryEntry) error
	History(ctx Context, feature string, limit int) ([]RolloutHistoryEntry, error)
	RepositoryCategory(ctx Context, repositoryID string) (RepositoryCategory, error)
	Whitelist(ctx Context, feature string) (map[string]struct{}, error)
}

// StoreRows is the narrow store surface Capture Workers upsert into.
type StoreRows interface {
	UpsertRepository(ctx Context, id, name string) error
	UpsertPullRequest(ctx Context, repositoryID string, pr PullRequest) error
	UpsertReview(ctx Context, repositoryID string, prNumber int, r Review) error
	UpsertComment(ctx Context, repositoryID string, prNumber int, c Comment, isReviewComment bool) error
	UpsertFileChanges(ctx Context, repositoryID string, prNumber int, files []FileChange) error
}

// LowLatencyQueue is what the low-latency back-end publishes job events to.
type LowLatencyQueue interface {
	Publish(ctx Context, job Job) error
	Close() error
}

// BatchRunner is the external job-runner the batch back-end dispatches to.
// It MUST NOT block waiting for completion (spec §4.1, §6).
type BatchRunner interface {
	Dispatch(ctx Context, workflowName string, inputs map[string]string) (runID string, err error)
}

// ForgeClient is the capability set consumed by Capture Workers (spec §9:
// "model ForgeClient as a capability set"). forgeclient.HybridClient
// satisfies it; SetCompoundEnabled(false) restricts that client to its
// fine-grained path.
type ForgeClient interface {
	GetPRCompleteData(ctx Context, owner, repo string, prNumber int) (PRCompleteData, error)
	GetPRReviews(ctx Context, owner, repo string, prNumber int) ([]Review, error)
	GetPRComments(ctx Context, owner, repo string, prNumber int) ([]Comment, []Comment, error)
	GetRecentPRs(ctx Context, owner, repo string, since time.Time, limit int) ([]PullRequest, error)
	SetCompoundEnabled(enabled bool)
	GetMetrics() ForgeMetrics
}

// ForgeMetrics mirrors the counters maintained by the Hybrid Forge Client (§4.2).
type ForgeMetrics struct {
	CompoundQueries    int
	FineGrainedQueries int
	Fallbacks          int
	TotalPointsSaved   int
}

// FallbackRate is fallbacks / (compoundQueries + fallbacks), 0 when no calls made.
func (m ForgeMetrics) FallbackRate() float64 {
	denom := m.CompoundQueries + m.Fallbacks
	if denom == 0 {
		return 0
	}
	return float64(m.Fallbacks) / float64(denom)
}

// Efficiency is totalPointsSaved / totalQueries, 0 when no calls made.
func (m ForgeMetrics) Efficiency() float64 {
	total := m.CompoundQueries + m.FineGrainedQueries
	if total == 0 {
		return 0
	}
	return float64(m.TotalPointsSaved) / float64(total)
}
