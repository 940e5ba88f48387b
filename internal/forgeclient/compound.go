package forgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// compoundPath executes one logical read as a single compound query (spec
// §4.2, path 1). The response includes an authoritative cost value
// attributed by the forge, returned alongside the normalised record so the
// caller can feed the governor.
type compoundPath struct {
	client      httpDoer
	graphqlURL  string
	token       string
}

func newCompoundPath(client httpDoer, graphqlURL, token string) *compoundPath {
	return &compoundPath{client: client, graphqlURL: graphqlURL, token: token}
}

// compoundEnvelope is the shape of a compound-query response (spec §6:
// "the response carries {data, rateLimit{cost, remaining, limit, resetAt}}").
type compoundEnvelope struct {
	Data      compoundData `json:"data"`
	RateLimit struct {
		Cost      int       `json:"cost"`
		Remaining int       `json:"remaining"`
		Limit     int       `json:"limit"`
		ResetAt   time.Time `json:"resetAt"`
	} `json:"rateLimit"`
}

type compoundData struct {
	PullRequest    domain.PullRequest  `json:"pullRequest"`
	Files          []domain.FileChange `json:"files"`
	Reviews        []domain.Review     `json:"reviews"`
	IssueComments  []domain.Comment    `json:"issueComments"`
	ReviewComments []domain.Comment    `json:"reviewComments"`
}

func (c *compoundPath) getPRCompleteData(ctx context.Context, owner, repo string, prNumber int) (domain.PRCompleteData, domain.RateLimitInfo, error) {
	query := map[string]interface{}{
		"query": compoundPRQuery,
		"variables": map[string]interface{}{
			"owner":  owner,
			"repo":   repo,
			"number": prNumber,
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, fmt.Errorf("op=forgeclient.compound marshal: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, fmt.Errorf("op=forgeclient.compound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var env compoundEnvelope
	if err := doJSON(ctx, c.client, req, &env); err != nil {
		return domain.PRCompleteData{}, domain.RateLimitInfo{}, err
	}

	record := domain.PRCompleteData{
		PullRequest:    env.Data.PullRequest,
		Files:          env.Data.Files,
		IssueComments:  env.Data.IssueComments,
		ReviewComments: env.Data.ReviewComments,
	}
	rl := domain.RateLimitInfo{
		Cost:      env.RateLimit.Cost,
		Remaining: env.RateLimit.Remaining,
		Limit:     env.RateLimit.Limit,
		ResetAt:   env.RateLimit.ResetAt,
	}
	return record, rl, nil
}

// compoundPRQuery is illustrative; field names mirror spec §4.2's
// normalised shape so the decoded JSON lines up with domain.PRCompleteData.
const compoundPRQuery = `
query PRCompleteData($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    pullRequest(number: $number) {
      id number title body state isDraft additions deletions changedFiles
      author { id login avatarUrl }
      createdAt updatedAt closedAt mergedAt merged mergeable baseRefName headRefName
      files(first: 100) { nodes { path additions deletions changeType } }
      reviews(first: 100) { nodes { id state body author { id login } submittedAt commit { oid } } }
      comments(first: 100) { nodes { id body author { id login } createdAt updatedAt } }
      reviewThreads(first: 100) { nodes { comments(first: 50) { nodes { id body author { id login } createdAt updatedAt path originalPosition diffHunk } } } }
    }
  }
  rateLimit { cost remaining limit resetAt }
}`
