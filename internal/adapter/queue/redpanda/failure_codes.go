package redpanda

import (
	"errors"

	"github.com/fairyhunter13/hybrid-capture/internal/domain"
)

// classifyFailureCode maps a Job processing error to a stable code used as a
// Prometheus label and as the RetryManager's retry-vs-DLQ signal. It walks
// the sentinel taxonomy with errors.Is rather than string-matching the
// message. Consumer.processRecord passes in an error rebuilt from the
// Handler's string summary, which carries no sentinel and so classifies as
// "INTERNAL".
func classifyFailureCode(err error) string {
	if err == nil {
		return "NONE"
	}
	switch {
	case errors.Is(err, domain.ErrRateExhausted):
		return "RATE_EXHAUSTED"
	case errors.Is(err, domain.ErrTransport):
		return "TRANSPORT"
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrStoreError), errors.Is(err, domain.ErrStoreConflict):
		return "STORE_ERROR"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "BACKEND_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// retryable reports whether code warrants another delivery attempt.
// Rate-exhaustion and transport failures are expected to clear on their own;
// invalid-argument and not-found errors will never succeed on retry.
func retryable(code string) bool {
	switch code {
	case "RATE_EXHAUSTED", "TRANSPORT", "BACKEND_UNAVAILABLE", "INTERNAL":
		return true
	default:
		return false
	}
}
