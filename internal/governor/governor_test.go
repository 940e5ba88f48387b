package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

func TestTrackAndPredict(t *testing.T) {
	g := New()
	defer g.Close()

	now := time.Now()
	for i := 0; i < 5; i++ {
		g.Track(domain.RateSample{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Remaining: 5000 - i*100,
			Limit:     5000,
			Cost:      10,
		}, domain.QueryTypePRCompleteData, 5)
	}

	pred := g.Predict(100)
	assert.InDelta(t, 10.0, pred.AverageCost, 0.001)
	assert.InDelta(t, 1000.0, pred.PredictedCost, 0.001)
	assert.Equal(t, 4600, pred.CurrentRemaining)
	assert.False(t, pred.WillExceedLimit)
	assert.Equal(t, 460, pred.SafeQueries)
}

func TestTrackGeneratesCriticalAlert(t *testing.T) {
	g := New()
	defer g.Close()

	g.Track(domain.RateSample{Remaining: 50, Limit: 5000, Cost: 1}, domain.QueryTypeReviews, 1)

	report := g.GenerateReport()
	assert.True(t, g.IsBelowCritical())
	found := false
	for _, a := range report.Alerts {
		if a.Severity == domain.AlertCritical {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTrackGeneratesWarningAlert(t *testing.T) {
	g := New()
	defer g.Close()

	g.Track(domain.RateSample{Remaining: 500, Limit: 5000, Cost: 1}, domain.QueryTypeReviews, 1)

	report := g.GenerateReport()
	require := assert.New(t)
	found := false
	for _, a := range report.Alerts {
		if a.Severity == domain.AlertWarning {
			found = true
		}
	}
	require.True(found)
	require.False(g.IsBelowCritical())
}

func TestGenerateReportRecommendations(t *testing.T) {
	g := New()
	defer g.Close()

	// High average cost per item (efficiency > 3) and per-type cost > 10.
	g.Track(domain.RateSample{Remaining: 4000, Limit: 5000, Cost: 20}, domain.QueryTypePRCompleteData, 1)
	g.Track(domain.RateSample{Remaining: 300, Limit: 5000, Cost: 15}, domain.QueryTypePRCompleteData, 1)

	report := g.GenerateReport()
	assert.Greater(t, report.Efficiency, 3.0)

	var priorities []domain.RecommendationPriority
	for _, r := range report.Recommendations {
		priorities = append(priorities, r.Priority)
	}
	assert.Contains(t, priorities, domain.PriorityHigh)
	assert.Contains(t, priorities, domain.PriorityMedium)
	assert.Contains(t, priorities, domain.PriorityCritical)
}

func TestSetThresholds(t *testing.T) {
	g := New()
	defer g.Close()

	g.SetThresholds(Thresholds{Warning: 10, Critical: 5, Efficiency: 100})
	g.Track(domain.RateSample{Remaining: 8, Limit: 100, Cost: 1}, domain.QueryTypeComments, 1)

	report := g.GenerateReport()
	foundWarning := false
	for _, a := range report.Alerts {
		if a.Severity == domain.AlertWarning {
			foundWarning = true
		}
	}
	assert.True(t, foundWarning)
}
