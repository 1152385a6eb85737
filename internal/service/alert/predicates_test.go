package alert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

func TestPredicatePriceDeviationBoundary(t *testing.T) {
	params := map[string]interface{}{"threshold_percent": 1.0}

	below := Evaluate(EventPriceDeviation, params, Input{DeviationPercent: 0.99})
	require.False(t, below.Fire)

	atThreshold := Evaluate(EventPriceDeviation, params, Input{DeviationPercent: 1.0})
	require.True(t, atThreshold.Fire)
	require.Equal(t, "warning", atThreshold.Severity)

	critical := Evaluate(EventPriceDeviation, params, Input{DeviationPercent: 2.5})
	require.True(t, critical.Fire)
	require.Equal(t, "critical", critical.Severity)
}

func TestPredicateStaleUsesMaxAgeMs(t *testing.T) {
	params := map[string]interface{}{"maxAgeMs": float64(300_000)}

	fresh := Evaluate(EventPriceStale, params, Input{StalenessSeconds: 299})
	require.False(t, fresh.Fire)

	stale := Evaluate(EventPriceStale, params, Input{StalenessSeconds: 301})
	require.True(t, stale.Fire)
}

func TestPredicateSyncErrorRequiresErrorStatus(t *testing.T) {
	healthy := Evaluate(EventSyncError, nil, Input{SyncState: &persistence.SyncState{Status: persistence.StatusHealthy}})
	require.False(t, healthy.Fire)

	errored := Evaluate(EventSyncError, nil, Input{SyncState: &persistence.SyncState{Status: persistence.StatusError}})
	require.True(t, errored.Fire)
	require.Equal(t, "critical", errored.Severity)
}

func TestPredicateHighErrorRateZeroTotalNeverFires(t *testing.T) {
	out := Evaluate(EventHighErrorRate, map[string]interface{}{"thresholdPercent": 10.0}, Input{ErrorCount: 0, TotalCount: 0})
	require.False(t, out.Fire)
}

func TestPredicateHighErrorRateCrossesThreshold(t *testing.T) {
	params := map[string]interface{}{"thresholdPercent": 50.0}
	out := Evaluate(EventHighErrorRate, params, Input{ErrorCount: 5, TotalCount: 10})
	require.True(t, out.Fire)
}

func TestPredicateLowGasOptionalWhenBalanceMissing(t *testing.T) {
	out := Evaluate(EventLowGas, map[string]interface{}{"minBalanceEth": 0.1}, Input{WalletBalanceEth: nil})
	require.False(t, out.Fire, "low_gas is optional and requires an external balance reading")
}

func TestUnsupportedEventNeverFires(t *testing.T) {
	out := Evaluate(EventHighVoteDivergence, nil, Input{DeviationPercent: 100})
	require.False(t, out.Fire, "dispute-related events are stored but never evaluated per the Open Question resolution")
}
