package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
)

// WithRetry runs op, retrying only when it returns an
// *errs.UpstreamTransientError, with backoff min(1000*2^attempt, 10000)ms,
// following the teacher's retry shape but parameterized per spec §4.1.
// Permanent errors and context cancellation are returned immediately.
func WithRetry(ctx context.Context, maxAttempts int, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: false,
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		var transient *errs.UpstreamTransientError
		if !errors.As(lastErr, &transient) {
			return lastErr
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return lastErr
}
