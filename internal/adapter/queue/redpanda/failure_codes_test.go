package redpanda

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

func TestClassifyFailureCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "NONE"},
		{"rate_exhausted", fmt.Errorf("op=x: %w", domain.ErrRateExhausted), "RATE_EXHAUSTED"},
		{"transport", fmt.Errorf("op=x: %w", domain.ErrTransport), "TRANSPORT"},
		{"not_found", fmt.Errorf("op=x: %w", domain.ErrNotFound), "NOT_FOUND"},
		{"invalid_argument", fmt.Errorf("op=x: %w", domain.ErrInvalidArgument), "INVALID_ARGUMENT"},
		{"store_error", fmt.Errorf("op=x: %w", domain.ErrStoreError), "STORE_ERROR"},
		{"store_conflict", fmt.Errorf("op=x: %w", domain.ErrStoreConflict), "STORE_ERROR"},
		{"backend_unavailable", fmt.Errorf("op=x: %w", domain.ErrBackendUnavailable), "BACKEND_UNAVAILABLE"},
		{"unknown", errors.New("boom"), "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyFailureCode(tc.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable("RATE_EXHAUSTED"))
	assert.True(t, retryable("TRANSPORT"))
	assert.True(t, retryable("BACKEND_UNAVAILABLE"))
	assert.True(t, retryable("INTERNAL"))
	assert.False(t, retryable("NOT_FOUND"))
	assert.False(t, retryable("INVALID_ARGUMENT"))
	assert.False(t, retryable("STORE_ERROR"))
}
