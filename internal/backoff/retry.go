package backoff

import (
	"context"
	"time"
)

// Retry runs fn up to maxAttempts times, sleeping between attempts according
// to the policy. Errors for which retryable returns false end the loop
// immediately. The last error is returned when attempts run out, and
// ctx.Err() is returned if the context ends while waiting.
func Retry[T any](
	ctx context.Context,
	policy Policy,
	maxAttempts int,
	retryable func(error) bool,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn(ctx, attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if attempt < maxAttempts {
			if err := Sleep(ctx, policy.Delay(attempt)); err != nil {
				return zero, err
			}
		}
	}
	return zero, lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
