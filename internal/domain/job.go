package domain

import (
	"context"
	"time"
)

// Context is an alias kept for parity with the teacher's port signatures;
// it lets domain ports read as forge/store-agnostic without importing
// "context" at every call site that merely forwards it.
type Context = context.Context

// JobKind enumerates the unit of work a Job represents.
type JobKind string

const (
	JobKindDetails         JobKind = "details"
	JobKindReviews         JobKind = "reviews"
	JobKindComments        JobKind = "comments"
	JobKindHistoricalSync  JobKind = "historical-sync"
	JobKindFileChanges     JobKind = "file-changes"
)

// Backend enumerates the two back-ends a Job can be dispatched to.
type Backend string

const (
	BackendLowLatency Backend = "lowlatency"
	BackendBatch      Backend = "batch"
)

// MaxLowLatencyItems is the per-job item cap the low-latency back-end
// enforces (spec §4.1: "the low-latency back-end dispatches with a
// per-job item cap ≤ 50").
const MaxLowLatencyItems = 50

// JobStatus enumerates the monotonic lifecycle of a Job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// TriggerSource records what caused a capture request to be enqueued.
type TriggerSource string

const (
	TriggerManual    TriggerSource = "manual"
	TriggerScheduled TriggerSource = "scheduled"
)

// JobData is the caller-supplied payload for Router.Enqueue. It is also the
// classifier's sole input — see router.Classify. TimeRangeDays and MaxItems
// are pointers because the classifier must distinguish "not supplied" from
// an explicit zero.
type JobData struct {
	RepositoryID   string
	RepositoryName string
	PRNumbers      []int
	TimeRangeDays  *int
	MaxItems       *int
	TriggerSource  TriggerSource
}

// Job is a unit of work created by the Router.
type Job struct {
	ID             string
	Kind           JobKind
	RepositoryID   string
	RepositoryName string
	Backend        Backend
	Status         JobStatus
	ExternalRunID  string // batch only
	TimeRangeDays  int
	PRNumbers      []int
	Metadata       map[string]string
	LastError      string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Validate checks the structural invariants a Job must uphold regardless of
// lifecycle stage: started is non-nil iff status has reached processing,
// completed is non-nil iff status is terminal, and timestamps are ordered.
func (j Job) Validate() error {
	switch j.Status {
	case JobPending:
		if j.StartedAt != nil || j.CompletedAt != nil {
			return ErrInvalidArgument
		}
	case JobProcessing:
		if j.StartedAt == nil || j.CompletedAt != nil {
			return ErrInvalidArgument
		}
	case JobCompleted, JobFailed:
		if j.StartedAt == nil || j.CompletedAt == nil {
			return ErrInvalidArgument
		}
	default:
		return ErrInvalidArgument
	}
	if j.StartedAt != nil && j.StartedAt.Before(j.CreatedAt) {
		return ErrInvalidArgument
	}
	if j.CompletedAt != nil && j.StartedAt != nil && j.CompletedAt.Before(*j.StartedAt) {
		return ErrInvalidArgument
	}
	return nil
}

// ItemError is a single recent-error record kept on a Progress row.
type ItemError struct {
	ItemID    string
	Message   string
	Timestamp time.Time
}

// Progress is the one-row-per-Job tracker of counts and recent errors.
type Progress struct {
	JobID       string
	Total       int
	Processed   int
	Failed      int
	CurrentItem string
	RecentErrors []ItemError
}

// maxRecentErrors bounds the recent-error list kept on a Progress row.
const maxRecentErrors = 50

// RecordSuccess increments processed and sets CurrentItem to itemID.
func (p *Progress) RecordSuccess(itemID string) {
	p.Processed++
	p.CurrentItem = itemID
}

// RecordFailure increments failed and appends a bounded recent-error record.
func (p *Progress) RecordFailure(itemID, message string, at time.Time) {
	p.Failed++
	p.CurrentItem = itemID
	p.RecentErrors = append(p.RecentErrors, ItemError{ItemID: itemID, Message: message, Timestamp: at})
	if len(p.RecentErrors) > maxRecentErrors {
		p.RecentErrors = p.RecentErrors[len(p.RecentErrors)-maxRecentErrors:]
	}
}

// ConsecutiveFailureLimit is the threshold at which a Job aborts per §7.
const ConsecutiveFailureLimit = 10
