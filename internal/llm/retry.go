package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	maxAPIAttempts = 4
	initialBackoff = 1 * time.Second
	maxBackoff     = 10 * time.Second
)

// retryWithBackoff executes fn with exponential backoff. Fatal API errors
// and context cancellation stop the retry loop immediately.
func retryWithBackoff[T any](ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAPIAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if isFatalAPIError(err) {
			return zero, wrapFatalError(err)
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err

		if attempt < maxAPIAttempts {
			logger.Warn("api call failed, retrying",
				"op", op,
				"attempt", attempt,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, maxAPIAttempts, lastErr)
}
