// Package governor implements the Rate-Limit Governor: an in-memory,
// mutex-protected time series of forge budget observations with prediction
// and reporting. Grounded on the teacher's RateLimitCache
// (mutex-protected map + periodic cleanup goroutine), generalized from a
// per-model block cache into an ordered sample sequence.
package governor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// sampleWindow is how long samples are kept before eviction (spec §3).
const sampleWindow = 24 * time.Hour

// predictionWindow is how many of the most recent samples form the
// reference window for Predict (spec §4.3).
const predictionWindow = 10

// maxAlerts bounds the retained alert history (spec §4.3).
const maxAlerts = 50

// Thresholds holds the governor's mutable alerting thresholds (spec §4.3).
type Thresholds struct {
	Warning    int // remaining budget below this triggers a warning alert
	Critical   int // remaining budget below this triggers a critical alert
	Efficiency int // cost/item above this triggers an info alert
}

// DefaultThresholds are the values named by spec §4.3.
var DefaultThresholds = Thresholds{Warning: 1000, Critical: 100, Efficiency: 5}

// Governor is a per-process shared object. It requires mutual exclusion on
// writes and allows read-only access on reads (spec §5). It is advisory:
// it records and reports, it does not itself block calls (spec §4.3).
type Governor struct {
	mu          sync.RWMutex
	samples     []domain.RateSample
	alerts      []domain.Alert
	thresholds  Thresholds
	stopCleanup chan struct{}
	backend     string
}

// New constructs a Governor and starts its periodic eviction goroutine.
func New() *Governor {
	g := &Governor{
		thresholds:  DefaultThresholds,
		stopCleanup: make(chan struct{}),
		backend:     "unknown",
	}
	go g.cleanupRoutine()
	return g
}

// SetBackend labels this governor's rate-limit metrics with backend, one of
// domain.BackendLowLatency or domain.BackendBatch. Each process owns a
// single Governor instance so this is set once at startup.
func (g *Governor) SetBackend(backend string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backend = backend
}

// Close stops the background eviction goroutine.
func (g *Governor) Close() {
	close(g.stopCleanup)
}

// SetThresholds replaces the governor's alerting thresholds.
func (g *Governor) SetThresholds(t Thresholds) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thresholds = t
}

// Track appends sample to the in-memory sequence, evaluates thresholds, and
// emits alerts accordingly (spec §4.3). Track is non-suspending (spec §5):
// it touches memory only.
func (g *Governor) Track(sample domain.RateSample, queryType domain.QueryType, itemsProcessed int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sample.QueryType = queryType
	sample.ItemsProcessed = itemsProcessed
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	g.samples = append(g.samples, sample)
	g.evictLocked(sample.Timestamp)

	observability.RecordRateLimitRemaining(g.backend, sample.Remaining)

	switch {
	case sample.Remaining < g.thresholds.Critical:
		g.appendAlertLocked(domain.AlertCritical, fmt.Sprintf("remaining budget %d below critical threshold %d", sample.Remaining, g.thresholds.Critical), sample.Timestamp)
		observability.RecordRateLimitExhausted(g.backend)
	case sample.Remaining < g.thresholds.Warning:
		g.appendAlertLocked(domain.AlertWarning, fmt.Sprintf("remaining budget %d below warning threshold %d", sample.Remaining, g.thresholds.Warning), sample.Timestamp)
	}

	if itemsProcessed > 0 {
		perItem := float64(sample.Cost) / float64(itemsProcessed)
		if perItem > float64(g.thresholds.Efficiency) {
			g.appendAlertLocked(domain.AlertInfo, fmt.Sprintf("query type %s cost %.2f points/item exceeds efficiency threshold %d", queryType, perItem, g.thresholds.Efficiency), sample.Timestamp)
		}
	}
}

// appendAlertLocked must be called with g.mu held.
func (g *Governor) appendAlertLocked(severity domain.AlertSeverity, message string, at time.Time) {
	g.alerts = append(g.alerts, domain.Alert{Severity: severity, Message: message, Timestamp: at})
	if len(g.alerts) > maxAlerts {
		g.alerts = g.alerts[len(g.alerts)-maxAlerts:]
	}
}

// evictLocked drops samples older than sampleWindow relative to now. Must
// be called with g.mu held.
func (g *Governor) evictLocked(now time.Time) {
	cutoff := now.Add(-sampleWindow)
	i := 0
	for ; i < len(g.samples); i++ {
		if g.samples[i].Timestamp.After(cutoff) {
			break
		}
	}
	if i > 0 {
		g.samples = g.samples[i:]
	}
}

// Predict implements the algorithm of spec §4.3 over the last 10 samples.
func (g *Governor) Predict(queriesRemaining int) domain.Prediction {
	g.mu.RLock()
	defer g.mu.RUnlock()

	window := g.samples
	if len(window) > predictionWindow {
		window = window[len(window)-predictionWindow:]
	}

	var totalCost float64
	var currentRemaining int
	if len(window) > 0 {
		currentRemaining = window[len(window)-1].Remaining
		for _, s := range window {
			totalCost += float64(s.Cost)
		}
	}

	avgCost := 0.0
	if len(window) > 0 {
		avgCost = totalCost / float64(len(window))
	}
	predictedCost := float64(queriesRemaining) * avgCost

	safeQueries := 0
	if avgCost > 0 {
		safeQueries = int(float64(currentRemaining) / avgCost)
	}

	return domain.Prediction{
		AverageCost:      avgCost,
		PredictedCost:    predictedCost,
		CurrentRemaining: currentRemaining,
		WillExceedLimit:  predictedCost > float64(currentRemaining),
		SafeQueries:      safeQueries,
	}
}

// IsBelowCritical reports whether the most recent sample's remaining budget
// is below the critical threshold. The client MAY use this to refuse a
// call (spec §4.3: "the client MAY refuse to issue a call when the
// governor's latest sample shows remaining < critical").
func (g *Governor) IsBelowCritical() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.samples) == 0 {
		return false
	}
	return g.samples[len(g.samples)-1].Remaining < g.thresholds.Critical
}

// GenerateReport implements spec §4.3's derived recommendation rules.
func (g *Governor) GenerateReport() domain.Report {
	g.mu.RLock()
	defer g.mu.RUnlock()

	byType := map[domain.QueryType][]domain.RateSample{}
	var totalCost, totalItems float64
	for _, s := range g.samples {
		byType[s.QueryType] = append(byType[s.QueryType], s)
		totalCost += float64(s.Cost)
		totalItems += float64(s.ItemsProcessed)
	}

	efficiency := 0.0
	if totalItems > 0 {
		efficiency = totalCost / totalItems
	}

	var recs []domain.Recommendation
	if efficiency > 3 {
		recs = append(recs, domain.Recommendation{
			Message:  "prefer compound queries to reduce points",
			Priority: domain.PriorityHigh,
		})
	}

	var highCostTypes []string
	for qt, samples := range byType {
		var sum float64
		for _, s := range samples {
			sum += float64(s.Cost)
		}
		avg := sum / float64(len(samples))
		if avg > 10 {
			highCostTypes = append(highCostTypes, string(qt))
		}
	}
	if len(highCostTypes) > 0 {
		sort.Strings(highCostTypes)
		recs = append(recs, domain.Recommendation{
			Message:  fmt.Sprintf("high-cost queries: %v", highCostTypes),
			Priority: domain.PriorityMedium,
		})
	}

	var currentRemaining int
	if len(g.samples) > 0 {
		currentRemaining = g.samples[len(g.samples)-1].Remaining
	}
	if currentRemaining < 500 {
		recs = append(recs, domain.Recommendation{
			Message:  "throttle or switch to fine-grained path",
			Priority: domain.PriorityCritical,
		})
	}

	alertsCopy := make([]domain.Alert, len(g.alerts))
	copy(alertsCopy, g.alerts)

	return domain.Report{
		Summary:         fmt.Sprintf("%d samples tracked, %d query types observed", len(g.samples), len(byType)),
		Efficiency:      efficiency,
		Alerts:          alertsCopy,
		Recommendations: recs,
	}
}

func (g *Governor) cleanupRoutine() {
	ticker := time.NewTicker(sampleWindow / 24)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.mu.Lock()
			g.evictLocked(time.Now())
			g.mu.Unlock()
		case <-g.stopCleanup:
			return
		}
	}
}
