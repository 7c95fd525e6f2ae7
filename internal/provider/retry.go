package provider

import (
	"context"
	"time"
)

const (
	maxAttempts    = 4
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// WithRetry runs fn up to maxAttempts times with exponential backoff,
// stopping early on success, on a non-retryable error, or when ctx is done.
// A context timeout inside fn counts as retryable: the call may in fact have
// succeeded server-side, and only a later read can tell.
func WithRetry(ctx context.Context, fn func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return NewError(KindRetryable, "retry", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
	}
	return err
}
