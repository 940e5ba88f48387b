package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRetryConfigDefaults(t *testing.T) {
	rc, err := GetRetryConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, rc.MaxRetries)
	assert.True(t, rc.Jitter)
	assert.Equal(t, 2.0, rc.Multiplier)
}
