package redpanda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdaptivePollerSpeedsUpOnConsecutiveSuccesses(t *testing.T) {
	p := NewAdaptivePoller(200 * time.Millisecond)

	first := p.GetNextInterval()
	p.RecordSuccess()
	p.RecordSuccess()
	p.RecordSuccess()
	later := p.GetNextInterval()

	assert.True(t, later <= first)
	assert.True(t, p.IsHealthy())
}

func TestAdaptivePollerBacksOffOnFailures(t *testing.T) {
	p := NewAdaptivePoller(100 * time.Millisecond)

	p.RecordFailure()
	p.RecordFailure()
	interval := p.GetNextInterval()

	assert.True(t, interval >= 100*time.Millisecond)
	assert.False(t, p.IsHealthy())
}

func TestAdaptivePollerCircuitBreaksAfterExcessiveFailures(t *testing.T) {
	p := NewAdaptivePoller(100 * time.Millisecond)

	for i := 0; i < 10; i++ {
		p.RecordFailure()
	}

	assert.Equal(t, 10*time.Second, p.GetNextInterval())
}

func TestAdaptivePollerReset(t *testing.T) {
	p := NewAdaptivePoller(100 * time.Millisecond)
	p.RecordFailure()
	p.RecordFailure()

	p.Reset()

	stats := p.GetStats()
	assert.Equal(t, 0, stats["failure_count"])
	assert.True(t, p.IsHealthy())
}

func TestAdaptivePollingManagerReusesPollerPerTopic(t *testing.T) {
	m := NewAdaptivePollingManager(time.Hour)
	defer m.Stop()

	a := m.GetPoller("jobs", 100*time.Millisecond)
	b := m.GetPoller("jobs", 100*time.Millisecond)

	assert.Same(t, a, b)
}
