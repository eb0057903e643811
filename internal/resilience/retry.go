package resilience

import (
	"context"
	"fmt"
	"time"
)

// Backoff strategy between attempts.
type Strategy int

const (
	// Linear grows the wait by the initial backoff each attempt (1x, 2x, 3x...).
	// Used for the upstream realtime connect sequence.
	Linear Strategy = iota
	// Exponential multiplies the wait by Multiplier each attempt.
	Exponential
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts
	Backoff     time.Duration // Initial backoff duration
	Strategy    Strategy      // Backoff growth strategy
	Multiplier  float64       // Growth factor for Exponential
	MaxBackoff  time.Duration // Cap on a single wait
}

// DefaultRetryConfig returns a default exponential retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		Backoff:     100 * time.Millisecond,
		Strategy:    Exponential,
		Multiplier:  2.0,
		MaxBackoff:  5 * time.Second,
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// Retry executes fn up to MaxAttempts times, waiting between attempts per
// the configured strategy. The context cancels waiting, not an in-flight
// attempt. Returns nil on the first success, otherwise the last error.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == config.MaxAttempts {
			break
		}

		wait := WaitFor(config, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", config.MaxAttempts, lastErr)
}

// WaitFor returns the wait duration after the given 1-based attempt.
func WaitFor(config *RetryConfig, attempt int) time.Duration {
	var wait time.Duration
	switch config.Strategy {
	case Linear:
		wait = config.Backoff * time.Duration(attempt)
	default:
		wait = config.Backoff
		for i := 1; i < attempt; i++ {
			wait = time.Duration(float64(wait) * config.Multiplier)
			if config.MaxBackoff > 0 && wait > config.MaxBackoff {
				break
			}
		}
	}
	if config.MaxBackoff > 0 && wait > config.MaxBackoff {
		wait = config.MaxBackoff
	}
	return wait
}
