// Package retry wraps upstream calls with a capped number of attempts and a
// fixed backoff between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qepting91/wb-harvester/internal/domain"
)

// ErrMaxAttemptsExceeded is returned when every attempt failed with a retryable error.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Config configures retry behavior
type Config struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts int
	// Backoff is the pause between attempts.
	Backoff time.Duration
	// IsRetryable decides whether an error deserves another attempt.
	IsRetryable func(error) bool
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     2 * time.Second,
		IsRetryable: DefaultIsRetryable,
	}
}

// DefaultIsRetryable retries transport failures and 5xx responses. Rate
// limits, 4xx and malformed payloads are final.
func DefaultIsRetryable(err error) bool {
	if err == nil || errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Temporary()
	}
	return false
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func Do(ctx context.Context, config Config, fn func(ctx context.Context) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.IsRetryable == nil {
		config.IsRetryable = DefaultIsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.IsRetryable(err) {
			return err
		}

		if attempt < config.MaxAttempts && config.Backoff > 0 {
			timer := time.NewTimer(config.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}

	if config.MaxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, config.MaxAttempts, lastErr)
}
