// Package resilience provides circuit breaking and adaptive timeouts for
// the Hybrid Forge Client's two call paths, generalized from the teacher's
// per-model AI circuit breaker and adaptive timeout manager.
package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState is the state of a forge-path circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker trips per forge path (compound/fine-grained) after
// repeated Transport failures, shedding load before the governor's own
// thresholds are reached.
type CircuitBreaker struct {
	mu               sync.RWMutex
	path             string
	failureThreshold int
	recoveryTimeout  time.Duration
	state            CircuitState
	failureCount     int
	lastFailureTime  time.Time
	totalRequests    int
	totalFailures    int
}

// NewCircuitBreaker creates a circuit breaker for a named forge path.
func NewCircuitBreaker(path string) *CircuitBreaker {
	return &CircuitBreaker{
		path:             path,
		failureThreshold: 3,
		recoveryTimeout:  30 * time.Second,
		state:            CircuitClosed,
	}
}

// ShouldAttempt reports whether a call should be attempted given the
// breaker's current state.
func (cb *CircuitBreaker) ShouldAttempt() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		return time.Since(cb.lastFailureTime) > cb.recoveryTimeout
	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes the circuit if it was
// probing recovery.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.failureCount = 0

	if cb.state != CircuitClosed {
		cb.state = CircuitClosed
		slog.Info("circuit breaker closed after successful recovery",
			slog.String("forge_path", cb.path))
	}
}

// RecordFailure records a failed call and opens the circuit once
// failureCount reaches the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.totalFailures++
	cb.totalRequests++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.failureThreshold {
		cb.state = CircuitOpen
		slog.Warn("circuit breaker opened due to consecutive failures",
			slog.String("forge_path", cb.path),
			slog.Int("failure_count", cb.failureCount))
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// FailureRate returns totalFailures/totalRequests, 0 when no calls made.
func (cb *CircuitBreaker) FailureRate() float64 {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if cb.totalRequests == 0 {
		return 0
	}
	return float64(cb.totalFailures) / float64(cb.totalRequests)
}
