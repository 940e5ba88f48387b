// Package config defines retry and DLQ configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// RetryConfig holds retry and DLQ settings parsed from the environment.
// The low-latency event bus does not read it: redpanda.RetryManager uses its
// own fixed maxDeliveryAttempts. Forge-call Transport retries are governed
// separately by Config.GetForgeBackoffConfig.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int `env:"QUEUE_RETRY_MAX_RETRIES" envDefault:"3"`
	// InitialDelay is the initial delay before first retry.
	InitialDelay time.Duration `env:"QUEUE_RETRY_INITIAL_DELAY" envDefault:"2s"`
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration `env:"QUEUE_RETRY_MAX_DELAY" envDefault:"30s"`
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64 `env:"QUEUE_RETRY_MULTIPLIER" envDefault:"2.0"`
	// Jitter adds randomness to prevent thundering herd.
	Jitter bool `env:"QUEUE_RETRY_JITTER" envDefault:"true"`
	// DLQMaxAge is the maximum age for DLQ jobs before cleanup.
	DLQMaxAge time.Duration `env:"DLQ_MAX_AGE" envDefault:"168h"`
	// DLQCleanupInterval is the interval for DLQ cleanup.
	DLQCleanupInterval time.Duration `env:"DLQ_CLEANUP_INTERVAL" envDefault:"24h"`
}

// GetRetryConfig parses RetryConfig fields from the environment,
// independently of the main Config struct.
func GetRetryConfig() (RetryConfig, error) {
	var rc RetryConfig
	if err := env.Parse(&rc); err != nil {
		return RetryConfig{}, fmt.Errorf("op=config.GetRetryConfig: %w", err)
	}
	return rc, nil
}
