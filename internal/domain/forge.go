package domain

import "time"

// Actor is the normalised shape of any forge user reference.
type Actor struct {
	ID     string
	Login  string
	Avatar string
}

// PullRequestTimestamps holds the four lifecycle moments a PR may carry.
type PullRequestTimestamps struct {
	Created time.Time
	Updated time.Time
	Closed  *time.Time
	Merged  *time.Time
}

// PullRequest is the normalised shape both forge paths must produce (§4.2).
type PullRequest struct {
	ID            string
	Number        int
	Title         string
	Body          string
	State         string // "open" | "closed"
	Draft         bool
	Additions     int
	Deletions     int
	ChangedFiles  int
	CommitCount   int
	Author        Actor
	MergedBy      *Actor
	Timestamps    PullRequestTimestamps
	Merged        bool
	Mergeable     *bool
	BaseRef       string
	HeadRef       string
}

// FileChange is one entry of PullRequest.files[].
type FileChange struct {
	Filename  string
	Additions int
	Deletions int
	Changes   int
	Status    string
}

// Review is one entry of PullRequest.reviews[].
type Review struct {
	ID        string
	State     string
	Body      string
	Author    Actor
	SubmittedAt time.Time
	CommitID  string
}

// Comment is one entry of issueComments[] or reviewComments[]. Review
// comments additionally populate the Path/Position/... fields; issue
// comments leave them zero-valued.
type Comment struct {
	ID        string
	Body      string
	Author    Actor
	CreatedAt time.Time
	UpdatedAt time.Time

	// Review-comment-only fields.
	Path              string
	Position          *int
	OriginalPosition  *int
	DiffHunk          string
	InReplyToID       string
	ReviewID          string
}

// PRCompleteData is the normalised record both the compound and
// fine-grained forge paths must produce (§4.2). Downstream workers never
// branch on which path produced it.
type PRCompleteData struct {
	PullRequest    PullRequest
	Files          []FileChange
	IssueComments  []Comment
	ReviewComments []Comment
}

// QueryType tags a forge call for metrics/governor attribution.
type QueryType string

const (
	QueryTypePRCompleteData QueryType = "pr_complete_data"
	QueryTypeReviews        QueryType = "reviews"
	QueryTypeComments       QueryType = "comments"
	QueryTypeRecentPRs      QueryType = "recent_prs"
)

// RateLimitInfo is the rate-limit envelope the forge reports on every call.
type RateLimitInfo struct {
	Cost      int
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RateSample is one in-memory Rate-Limit Governor observation (spec §3).
// Samples are process-local and never persisted across restarts.
type RateSample struct {
	Timestamp      time.Time
	Remaining      int
	Limit          int
	Cost           int
	QueryType      QueryType
	ItemsProcessed int
}

// AlertSeverity classifies a governor alert.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is one governor-generated alert (spec §4.3).
type Alert struct {
	Severity  AlertSeverity
	Message   string
	Timestamp time.Time
}

// RecommendationPriority ranks a governor recommendation.
type RecommendationPriority string

const (
	PriorityMedium   RecommendationPriority = "medium"
	PriorityHigh     RecommendationPriority = "high"
	PriorityCritical RecommendationPriority = "critical"
)

// Recommendation is one governor-derived operator suggestion.
type Recommendation struct {
	Message  string
	Priority RecommendationPriority
}

// Prediction is the result of Governor.Predict (spec §4.3).
type Prediction struct {
	AverageCost      float64
	PredictedCost    float64
	CurrentRemaining int
	WillExceedLimit  bool
	SafeQueries       int
}

// Report is the result of Governor.GenerateReport (spec §4.3).
type Report struct {
	Summary         string
	Efficiency      float64
	Alerts          []Alert
	Recommendations []Recommendation
}
