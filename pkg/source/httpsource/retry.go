package httpsource

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, the initial request
	// included. 1 or less disables retrying.
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry of a server error.
	// Network errors wait twice as long and rate limit errors five times.
	InitialBackoff time.Duration

	// MaxBackoff caps every backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// NoRetry returns a configuration with a single attempt.
func NoRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

// initialBackoff returns the first backoff for a class.
func (c RetryConfig) initialBackoff(class ErrorClass) time.Duration {
	var d time.Duration
	switch class {
	case ErrorClassRateLimit:
		d = 5 * c.InitialBackoff
	case ErrorClassNetwork:
		d = 2 * c.InitialBackoff
	default:
		d = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		d = min(d, c.MaxBackoff)
	}
	return d
}

func (c RetryConfig) nextBackoff(d time.Duration) time.Duration {
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d = time.Duration(float64(d) * mult)
	if c.MaxBackoff > 0 {
		d = min(d, c.MaxBackoff)
	}
	return d
}

// jitter spreads d by ±20%.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}

// retryWithBackoff runs fn until it succeeds, fails with an error that is not
// worth retrying, or cfg.MaxAttempts is reached. The backoff starts from the
// class of the first failure and grows exponentially with jitter.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() error) error {
	if cfg.MaxAttempts <= 1 {
		return fn()
	}

	var (
		lastErr error
		class   ErrorClass
		backoff time.Duration
	)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(class)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		class = classOf(err)
		if !shouldRetry(class) || ctx.Err() != nil {
			return err
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		if backoff == 0 {
			backoff = cfg.initialBackoff(class)
		} else {
			backoff = cfg.nextBackoff(backoff)
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		wait := jitter(backoff)
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
