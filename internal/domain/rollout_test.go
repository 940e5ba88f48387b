package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolloutConfigEffectivePercentage(t *testing.T) {
	tests := []struct {
		name string
		cfg  RolloutConfig
		want int
	}{
		{"normal", RolloutConfig{Percentage: 50}, 50},
		{"emergency stop forces zero", RolloutConfig{Percentage: 50, EmergencyStop: true}, 0},
		{"zero percentage stays zero", RolloutConfig{Percentage: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.EffectivePercentage())
		})
	}
}

func TestForgeMetricsDerived(t *testing.T) {
	m := ForgeMetrics{CompoundQueries: 8, FineGrainedQueries: 5, Fallbacks: 2, TotalPointsSaved: 24}
	assert.InDelta(t, 0.2, m.FallbackRate(), 0.0001)
	assert.InDelta(t, float64(24)/13, m.Efficiency(), 0.0001)

	var zero ForgeMetrics
	assert.Equal(t, float64(0), zero.FallbackRate())
	assert.Equal(t, float64(0), zero.Efficiency())
}
