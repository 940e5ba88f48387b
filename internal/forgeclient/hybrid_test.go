package forgeclient

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceDoer returns one canned response per call, in order, looping on
// the last entry once exhausted.
type sequenceDoer struct {
	mu        sync.Mutex
	responses []*http.Response
	calls     int
}

func newSequenceDoer(bodies ...string) *sequenceDoer {
	resps := make([]*http.Response, len(bodies))
	for i, b := range bodies {
		resps[i] = jsonResponse(200, b)
	}
	return &sequenceDoer{responses: resps}
}

func (s *sequenceDoer) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

func testConfig() Config {
	return Config{
		ForgeBaseURL:           "https://example.invalid",
		ForgeGraphQLURL:        "https://example.invalid/graphql",
		CallTimeout:            50 * time.Millisecond,
		BackoffMaxElapsedTime:  2 * time.Millisecond,
		BackoffInitialInterval: 1 * time.Millisecond,
		BackoffMaxInterval:     1 * time.Millisecond,
		BackoffMultiplier:      1.0,
	}
}

func TestHybridClientCompoundSuccess(t *testing.T) {
	h := New(testConfig(), nil, nil)
	h.compound.client = newSequenceDoer(`{"data":{"pullRequest":{"Number":7}},"rateLimit":{"cost":1,"remaining":99,"limit":100}}`)

	record, err := h.GetPRCompleteData(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, record.PullRequest.Number)

	metrics := h.GetMetrics()
	assert.Equal(t, 1, metrics.CompoundQueries)
	assert.Equal(t, 0, metrics.Fallbacks)
	assert.Equal(t, 4, metrics.TotalPointsSaved)
}

func TestHybridClientFallbackOnCompoundFailure(t *testing.T) {
	h := New(testConfig(), nil, nil)
	h.compound.client = &fakeDoer{resp: jsonResponse(500, `{}`)}
	h.finegrained.client = newSequenceDoer(
		`{"Number":7}`,
		`[]`,
		`[]`,
		`[]`,
		`[]`,
	)

	record, err := h.GetPRCompleteData(context.Background(), "acme", "widgets", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, record.PullRequest.Number)

	metrics := h.GetMetrics()
	assert.Equal(t, 0, metrics.CompoundQueries)
	assert.Equal(t, 1, metrics.Fallbacks)
	assert.Equal(t, 5, metrics.FineGrainedQueries)
}

func TestHybridClientNotFoundPropagatesWithoutFallback(t *testing.T) {
	h := New(testConfig(), nil, nil)
	h.compound.client = &fakeDoer{resp: jsonResponse(404, `{}`)}
	h.finegrained.client = &fakeDoer{resp: jsonResponse(200, `{}`)}

	_, err := h.GetPRCompleteData(context.Background(), "acme", "widgets", 7)
	require.Error(t, err)

	metrics := h.GetMetrics()
	assert.Equal(t, 0, metrics.Fallbacks)
	assert.Equal(t, 0, metrics.FineGrainedQueries)
}

func TestHybridClientCompoundDisabledSkipsToFinegrained(t *testing.T) {
	h := New(testConfig(), nil, nil)
	h.SetCompoundEnabled(false)
	h.compound.client = &fakeDoer{err: assert.AnError}
	h.finegrained.client = newSequenceDoer(
		`{"Number":3}`,
		`[]`,
		`[]`,
		`[]`,
		`[]`,
	)

	record, err := h.GetPRCompleteData(context.Background(), "acme", "widgets", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, record.PullRequest.Number)

	metrics := h.GetMetrics()
	assert.Equal(t, 0, metrics.CompoundQueries)
	assert.Equal(t, 0, metrics.Fallbacks)
	assert.Equal(t, 5, metrics.FineGrainedQueries)
}
