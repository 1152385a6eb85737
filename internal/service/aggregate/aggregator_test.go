package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/oracle-aggregator/oracle"
	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

func feedAt(chain string, price float64) persistence.StoredFeed {
	return persistence.StoredFeed{
		PriceFeed: oracle.PriceFeed{
			Protocol: oracle.ProtocolChainlink,
			Chain:    chain,
			Symbol:   "ETH/USD",
			Price:     decimal.NewFromFloat(price),
			Timestamp: time.Now(),
		},
	}
}

// TestAggregateSymbolFlagsOnlyTheAbsoluteOutlier reproduces spec §8
// scenario 5: ethereum=1800, polygon=1802, arbitrum=1799, bsc=2100. Only
// bsc's absolute deviation from the mean should exceed 2 sigma of price.
func TestAggregateSymbolFlagsOnlyTheAbsoluteOutlier(t *testing.T) {
	a := New(nil, []string{"ETH/USD"})
	feeds := []persistence.StoredFeed{
		feedAt("ethereum", 1800),
		feedAt("polygon", 1802),
		feedAt("arbitrum", 1799),
		feedAt("bsc", 2100),
	}

	result := a.aggregateSymbol("ETH/USD", feeds)

	require.InDelta(t, 1875.25, result.AvgPrice, 0.5)

	byChain := make(map[string]ChainPrice, len(result.PricesByChain))
	for _, cp := range result.PricesByChain {
		byChain[cp.Chain] = cp
	}

	require.True(t, byChain["bsc"].IsOutlier, "bsc deviates by > 2 sigma of absolute price")
	require.False(t, byChain["ethereum"].IsOutlier)
	require.False(t, byChain["polygon"].IsOutlier)
	require.False(t, byChain["arbitrum"].IsOutlier)
}

func TestAggregateSymbolComputesMinMaxAndRange(t *testing.T) {
	a := New(nil, []string{"ETH/USD"})
	feeds := []persistence.StoredFeed{
		feedAt("ethereum", 1800),
		feedAt("polygon", 1802),
		feedAt("arbitrum", 1799),
	}

	result := a.aggregateSymbol("ETH/USD", feeds)
	require.Equal(t, "arbitrum", result.MinChain)
	require.Equal(t, "polygon", result.MaxChain)
	require.Greater(t, result.PriceRangePercent, 0.0)
}

func TestMedianOfUsesLowerMedianForEvenLength(t *testing.T) {
	require.Equal(t, 20.0, medianOf([]float64{10, 20, 30, 40}))
	require.Equal(t, 20.0, medianOf([]float64{30, 10, 20}))
}

func TestLatestPerChainKeepsNewestSample(t *testing.T) {
	older := feedAt("ethereum", 1800)
	older.Timestamp = time.Now().Add(-time.Minute)
	newer := feedAt("ethereum", 1805)
	newer.Timestamp = time.Now()

	latest := latestPerChain([]persistence.StoredFeed{older, newer})
	p, _ := latest["ethereum"].Price.Float64()
	require.Equal(t, 1805.0, p)
}

func TestMostReliableChainPicksLowestRollingStdDev(t *testing.T) {
	a := New(nil, []string{"ETH/USD"})
	a.recordHistory("ETH/USD", "ethereum", 0.1, 1800)
	a.recordHistory("ETH/USD", "ethereum", 0.2, 1801)
	a.recordHistory("ETH/USD", "polygon", 5.0, 1900)
	a.recordHistory("ETH/USD", "polygon", -5.0, 1700)

	rec := a.mostReliableChain("ETH/USD", []string{"ethereum", "polygon"})
	require.Equal(t, "ethereum", rec.MostReliableChain)
}

func TestCorrelationMatrixDiagonalIsOne(t *testing.T) {
	a := New(nil, []string{"ETH/USD"})
	a.recordHistory("ETH/USD", "ethereum", 0, 1800)
	a.recordHistory("ETH/USD", "ethereum", 0, 1810)
	a.recordHistory("ETH/USD", "polygon", 0, 1802)
	a.recordHistory("ETH/USD", "polygon", 0, 1812)

	matrix := a.CorrelationMatrixFor("ETH/USD")
	for i := range matrix.Chains {
		require.InDelta(t, 1.0, matrix.Matrix[i][i], 1e-9)
	}
}
