package forgeclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// finegrainedPath executes a PRCompleteData read as five independent REST
// calls (spec §4.2, path 2), each charged a flat cost of 1 point regardless
// of what the forge actually attributes to it. This is the fallback path
// exercised whenever the compound path fails.
type finegrainedPath struct {
	client  httpDoer
	baseURL string
	token   string
}

func newFinegrainedPath(client httpDoer, baseURL, token string) *finegrainedPath {
	return &finegrainedPath{client: client, baseURL: baseURL, token: token}
}

const fineGrainedCallCost = 1

func (f *finegrainedPath) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("op=forgeclient.finegrained request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	return req, nil
}

// getPRCompleteData issues the five fine-grained calls in sequence and
// assembles the same normalised shape the compound path produces. Total
// cost is the flat five-point sum (spec §4.2: "each fine-grained call costs
// a flat 1 point").
func (f *finegrainedPath) getPRCompleteData(ctx context.Context, owner, repo string, prNumber int) (domain.PRCompleteData, domain.RateLimitInfo, error) {
	base := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, prNumber)

	var pr domain.PullRequest
	if err := f.get(ctx, base, &pr); err != nil {
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, err
	}

	var files []domain.FileChange
	if err := f.get(ctx, base+"/files", &files); err != nil {
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, err
	}

	var reviews []domain.Review
	if err := f.get(ctx, base+"/reviews", &reviews); err != nil {
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, err
	}

	var issueComments []domain.Comment
	issuePath := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, prNumber)
	if err := f.get(ctx, issuePath, &issueComments); err != nil {
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, err
	}

	var reviewComments []domain.Comment
	if err := f.get(ctx, base+"/comments", &reviewComments); err != nil {
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, err
	}

	record := domain.PRCompleteData{
		PullRequest:    pr,
		Files:          files,
		IssueComments:  issueComments,
		ReviewComments: reviewComments,
	}
	rl := domain.RateLimitInfo{Cost: fineGrainedCallCost * 5}
	return record, rl, nil
}

func (f *finegrainedPath) get(ctx context.Context, path string, out interface{}) error {
	req, err := f.newRequest(ctx, path)
	if err != nil {
		return err
	}
	return doJSON(ctx, f.client, req, out)
}
