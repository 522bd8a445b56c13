package places

import (
	"context"
	"errors"

	"github.com/Ramsey-B/poppy/pkg/ratelimit"
)

// RetryPolicy decides how often and how long to wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     ratelimit.Backoff
}

// DefaultRetryPolicy makes three attempts with 1s and 2s waits between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     ratelimit.DefaultBackoff,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or runs out
// of attempts. fn receives the 1-based attempt number.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last *APIError
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := ratelimit.Sleep(ctx, p.Backoff.Delay(attempt-1)); err != nil {
				return &APIError{Kind: KindUnknown, Message: "cancelled while waiting to retry", Err: err}
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return err
		}
		if !apiErr.Retryable() || ctx.Err() != nil {
			return apiErr
		}
		last = apiErr
	}

	return &ExhaustedError{Attempts: attempts, Last: last}
}
