package oracle

import (
	"context"
	"time"

	"github.com/InjectiveLabs/oracle-aggregator/concurrency"
)

// fetchBatch runs fetchOne for every symbol bounded by maxParallel, and
// assembles the {prices[], failed[], duration_ms} shape spec §4.1
// requires: partial failures are reported inline, never raised as a
// batch-level error.
func fetchBatch(ctx context.Context, symbols []string, fetchOne func(context.Context, string) (*PriceFeed, error), maxParallel int) (*BatchPriceResult, error) {
	start := time.Now()

	feeds, fetchErrs := concurrency.RunErr(ctx, symbols, maxParallel, fetchOne)

	result := &BatchPriceResult{}
	for i, feed := range feeds {
		if err := fetchErrs[i]; err != nil {
			result.Failed = append(result.Failed, PerSymbolFailure{Symbol: symbols[i], Error: err})
			continue
		}
		if feed == nil {
			continue // unknown symbol, not a failure
		}
		result.Prices = append(result.Prices, feed)
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}
