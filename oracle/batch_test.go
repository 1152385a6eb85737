package oracle

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFetchBatchPartialFailuresDontAbortBatch(t *testing.T) {
	symbols := []string{"BTC/USD", "ETH/USD", "UNKNOWN", "FAIL/USD"}

	fetchOne := func(_ context.Context, symbol string) (*PriceFeed, error) {
		switch symbol {
		case "UNKNOWN":
			return nil, nil
		case "FAIL/USD":
			return nil, errors.New("upstream 500")
		default:
			return &PriceFeed{Protocol: ProtocolChainlink, Symbol: symbol, Price: decimal.NewFromInt(100)}, nil
		}
	}

	result, err := fetchBatch(context.Background(), symbols, fetchOne, 2)
	require.NoError(t, err)
	require.Len(t, result.Prices, 2)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "FAIL/USD", result.Failed[0].Symbol)
	require.GreaterOrEqual(t, result.DurationMs, int64(0))
}

func TestFetchBatchAllSucceed(t *testing.T) {
	symbols := []string{"BTC/USD", "ETH/USD"}
	fetchOne := func(_ context.Context, symbol string) (*PriceFeed, error) {
		return &PriceFeed{Protocol: ProtocolPyth, Symbol: symbol}, nil
	}

	result, err := fetchBatch(context.Background(), symbols, fetchOne, 5)
	require.NoError(t, err)
	require.Len(t, result.Prices, 2)
	require.Empty(t, result.Failed)
}
