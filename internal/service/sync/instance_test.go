package sync

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/oracle-aggregator/oracle"
	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

func newTestInstance(gw persistence.Gateway) *Instance {
	return New(persistence.Instance{
		InstanceID: "inst-1", Protocol: oracle.ProtocolChainlink, Chain: "ethereum", Enabled: true,
	}, gw, nil)
}

func TestOnTickSuccessResetsFailuresAndBreaker(t *testing.T) {
	gw := newFakeGateway()
	inst := newTestInstance(gw)
	inst.consecutiveFails = 3
	inst.state = StateDegraded
	inst.breakerUntil = time.Now().Add(time.Hour)

	err := inst.onTickSuccess(context.Background(), 100, time.Now(), nil)
	require.NoError(t, err)
	require.Equal(t, StateTicking, inst.State())
	require.Equal(t, uint32(0), inst.consecutiveFails)
	require.Len(t, gw.patches, 1)
	require.Equal(t, persistence.StatusHealthy, gw.patches[0].Status)
}

func TestOnTickErrorDegradesAfterThreshold(t *testing.T) {
	gw := newFakeGateway()
	inst := newTestInstance(gw)

	var lastErr error
	for i := 0; i < ConsecutiveFailureThreshold; i++ {
		lastErr = inst.onTickError(context.Background(), errors.New("upstream down"))
	}
	require.Error(t, lastErr)
	require.Equal(t, StateDegraded, inst.State())
	require.Equal(t, uint32(ConsecutiveFailureThreshold), inst.consecutiveFails)
	require.False(t, inst.breakerUntil.IsZero())

	last := gw.patches[len(gw.patches)-1]
	require.Equal(t, persistence.StatusError, last.Status)
	require.NotNil(t, last.LastError)
}

func TestOnTickErrorBelowThresholdStaysInPriorState(t *testing.T) {
	gw := newFakeGateway()
	inst := newTestInstance(gw)
	inst.state = StateTicking

	_ = inst.onTickError(context.Background(), errors.New("transient"))
	require.Equal(t, StateTicking, inst.State())
	require.Equal(t, uint32(1), inst.consecutiveFails)
}

func TestTickShortCircuitsWhileBreakerOpen(t *testing.T) {
	gw := newFakeGateway()
	inst := newTestInstance(gw)
	inst.state = StateDegraded
	inst.breakerUntil = time.Now().Add(time.Hour)

	err := inst.tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, gw.upsertFeedsCalls, "tick must not touch the client while the breaker window is open")
}

func TestDetectChangesIgnoresFirstSample(t *testing.T) {
	gw := newFakeGateway()
	inst := newTestInstance(gw)
	inst.defaults.PriceChangeThreshold = 0.001

	feed := &oracle.PriceFeed{Protocol: oracle.ProtocolChainlink, Symbol: "BTC/USD", Price: decimal.NewFromInt(65000), Timestamp: time.Now()}
	updates := inst.detectChanges([]*oracle.PriceFeed{feed})
	require.Empty(t, updates, "first observed sample has no prior price to diff against")
	require.Equal(t, 65000.0, inst.lastPrices["BTC/USD"])
}

func TestDetectChangesFlagsCrossingThreshold(t *testing.T) {
	gw := newFakeGateway()
	inst := newTestInstance(gw)
	inst.defaults.PriceChangeThreshold = 0.001
	inst.lastPrices["BTC/USD"] = 65000

	feed := &oracle.PriceFeed{Protocol: oracle.ProtocolChainlink, Symbol: "BTC/USD", Price: decimal.NewFromInt(65100), Timestamp: time.Now()}
	updates := inst.detectChanges([]*oracle.PriceFeed{feed})
	require.Len(t, updates, 1)
	require.InDelta(t, 100.0, updates[0].PriceChange, 0.001)
}

func TestDetectChangesIgnoresBelowThreshold(t *testing.T) {
	gw := newFakeGateway()
	inst := newTestInstance(gw)
	inst.defaults.PriceChangeThreshold = 0.01
	inst.lastPrices["BTC/USD"] = 65000

	feed := &oracle.PriceFeed{Protocol: oracle.ProtocolChainlink, Symbol: "BTC/USD", Price: decimal.NewFromInt(65001), Timestamp: time.Now()}
	updates := inst.detectChanges([]*oracle.PriceFeed{feed})
	require.Empty(t, updates)
}
