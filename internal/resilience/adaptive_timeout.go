package resilience

import (
	"context"
	"sync"
	"time"
)

// AdaptiveTimeout bounds a forge call's effective per-call timeout within a
// fixed ceiling (spec §5: "every forge call has a bounded timeout,
// recommended ceiling 15s"). Observed latency nudges the effective timeout
// within that ceiling rather than replacing it.
type AdaptiveTimeout struct {
	mu sync.RWMutex

	ceiling        time.Duration
	floor          time.Duration
	current        time.Duration
	successFactor  float64
	failureFactor  float64
	successCount   int64
	failureCount   int64
}

// NewAdaptiveTimeout constructs an AdaptiveTimeout bounded by [floor, ceiling].
func NewAdaptiveTimeout(ceiling, floor time.Duration) *AdaptiveTimeout {
	return &AdaptiveTimeout{
		ceiling:       ceiling,
		floor:         floor,
		current:       ceiling,
		successFactor: 0.95,
		failureFactor: 1.05,
	}
}

// Timeout returns the current effective timeout.
func (a *AdaptiveTimeout) Timeout() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// WithTimeout wraps ctx with the current adaptive timeout.
func (a *AdaptiveTimeout) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.Timeout())
}

// RecordSuccess narrows the effective timeout when a call finishes well
// within it, never below floor.
func (a *AdaptiveTimeout) RecordSuccess(duration time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	if duration < a.current/2 {
		next := time.Duration(float64(a.current) * a.successFactor)
		if next >= a.floor {
			a.current = next
		}
	}
}

// RecordFailure widens the effective timeout, never above ceiling.
func (a *AdaptiveTimeout) RecordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.failureCount++
	next := time.Duration(float64(a.current) * a.failureFactor)
	if next <= a.ceiling {
		a.current = next
	}
}
