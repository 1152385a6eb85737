package concurrency

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRunPositionalResults(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := Run(context.Background(), items, 2, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	require.Equal(t, []int{1, 4, 9, 16, 25}, results)
}

func TestRunBoundsConcurrency(t *testing.T) {
	items := make([]int, 20)
	var current, peak int32

	Run(context.Background(), items, 3, func(_ context.Context, n int) (int, error) {
		c := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if c <= p || atomic.CompareAndSwapInt32(&peak, p, c) {
				break
			}
		}
		atomic.AddInt32(&current, -1)
		return n, nil
	})

	require.LessOrEqual(t, int(peak), 3)
}

func TestRunFailingItemYieldsZeroValue(t *testing.T) {
	items := []string{"a", "fail", "c"}
	results := Run(context.Background(), items, 2, func(_ context.Context, s string) (string, error) {
		if s == "fail" {
			return "", errors.New("boom")
		}
		return s, nil
	})
	require.Equal(t, []string{"a", "", "c"}, results)
}

func TestRunErrReportsPositionalErrors(t *testing.T) {
	items := []string{"a", "fail", "c"}
	results, errsOut := RunErr(context.Background(), items, 2, func(_ context.Context, s string) (string, error) {
		if s == "fail" {
			return "", errors.New("boom")
		}
		return s, nil
	})
	require.Equal(t, []string{"a", "", "c"}, results)
	require.NoError(t, errsOut[0])
	require.Error(t, errsOut[1])
	require.NoError(t, errsOut[2])
}

func TestRunEmptyInput(t *testing.T) {
	results := Run(context.Background(), []int{}, 4, func(_ context.Context, n int) (int, error) {
		t.Fatal("fn should not be called for empty input")
		return n, nil
	})
	require.Empty(t, results)
}

func TestRunContextCancelledStopsLaunching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	items := make([]int, 100)
	Run(ctx, items, 1, func(_ context.Context, n int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return n, nil
	})

	require.Less(t, int(atomic.LoadInt32(&calls)), len(items))
}
