package oracle

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 3, func() error {
		attempts++
		if attempts < 3 {
			return &errs.UpstreamTransientError{Protocol: "chainlink", Cause: errors.New("timeout")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetryNeverRetriesPermanentError(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 3, func() error {
		attempts++
		return &errs.UpstreamPermanentError{Protocol: "chainlink", Cause: errors.New("bad request")}
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 2, func() error {
		attempts++
		return &errs.UpstreamTransientError{Protocol: "pyth", Cause: errors.New("still failing")}
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := WithRetry(ctx, 5, func() error {
		attempts++
		cancel()
		return &errs.UpstreamTransientError{Protocol: "band", Cause: errors.New("timeout")}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}
