package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdaptiveTimeoutNarrowsOnFastSuccess(t *testing.T) {
	at := NewAdaptiveTimeout(15*time.Second, 2*time.Second)
	assert.Equal(t, 15*time.Second, at.Timeout())

	at.RecordSuccess(1 * time.Second)
	assert.Less(t, at.Timeout(), 15*time.Second)
	assert.GreaterOrEqual(t, at.Timeout(), 2*time.Second)
}

func TestAdaptiveTimeoutNeverExceedsCeiling(t *testing.T) {
	at := NewAdaptiveTimeout(5*time.Second, 1*time.Second)
	for i := 0; i < 50; i++ {
		at.RecordFailure()
	}
	assert.LessOrEqual(t, at.Timeout(), 5*time.Second)
}

func TestAdaptiveTimeoutNeverBelowFloor(t *testing.T) {
	at := NewAdaptiveTimeout(5*time.Second, 3*time.Second)
	for i := 0; i < 50; i++ {
		at.RecordSuccess(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, at.Timeout(), 3*time.Second)
}
