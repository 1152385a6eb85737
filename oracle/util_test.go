package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	require.Equal(t, "BTC/USD", NormalizeSymbol("btc-usd"))
	require.Equal(t, "ETH/USD", NormalizeSymbol(" eth/usd "))
	require.Equal(t, "BTC/USD", NormalizeSymbol("BTC/USD"))
}

func TestSplitSymbol(t *testing.T) {
	base, quote := SplitSymbol("btc-usd")
	require.Equal(t, "BTC", base)
	require.Equal(t, "USD", quote)

	base, quote = SplitSymbol("eth")
	require.Equal(t, "ETH", base)
	require.Equal(t, "USD", quote)
}

func TestFingerprintFeedDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := FingerprintFeed("chainlink", "ethereum", "btc-usd", ts)
	b := FingerprintFeed("chainlink", "ethereum", "BTC/USD", ts)
	require.Equal(t, a, b, "fingerprint is case/format-insensitive on symbol")
	require.Len(t, a, len("feed-")+32)

	c := FingerprintFeed("chainlink", "polygon", "btc-usd", ts)
	require.NotEqual(t, a, c)
}

func TestComputeStaleness(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	upstream := now.Add(-400 * time.Second)

	seconds, isStale := ComputeStaleness(upstream, now, 300*time.Second)
	require.Equal(t, uint32(400), seconds)
	require.True(t, isStale)

	seconds, isStale = ComputeStaleness(now.Add(-100*time.Second), now, 300*time.Second)
	require.Equal(t, uint32(100), seconds)
	require.False(t, isStale)
}

func TestComputeStalenessClampsNegative(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(10 * time.Second)

	seconds, isStale := ComputeStaleness(future, now, 300*time.Second)
	require.Equal(t, uint32(0), seconds)
	require.False(t, isStale)
}
