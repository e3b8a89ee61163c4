package fetcher

import (
	"context"
	"time"
)

// RetryPolicy defines how transient per-page failures are retried. One
// policy object is injected into the Fetcher so retry semantics live in a
// single place instead of ad hoc loops at every call site.
type RetryPolicy struct {
	// MaxAttempts bounds tries for a single page, including the first.
	MaxAttempts int
	// Backoff is the base delay between attempts, multiplied by the
	// attempt number.
	Backoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     2 * time.Second,
	}
}

// Wait sleeps the backoff for the given (1-based) failed attempt, or
// returns early when the context is cancelled.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	return sleepCtx(ctx, p.Backoff*time.Duration(attempt))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
