package alert

import (
	"fmt"
	"math"

	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

// Input is the candidate context a predicate evaluates against, assembled
// by the evaluator's tick from feeds, sync state, and aggregates per rule
// filters, per spec §4.7 "select candidate inputs ... matching its
// filters".
type Input struct {
	Protocol   string
	Chain      string
	Symbol     string
	InstanceID string

	DeviationPercent float64             // price_deviation: (p - reference) / reference * 100, signed
	StalenessSeconds uint32              // price_stale / stale_sync
	SyncState        *persistence.SyncState
	LagBlocks        uint64              // sync_backlog
	ErrorCount       int                 // high_error_rate
	TotalCount       int                 // high_error_rate
	WalletBalanceEth *float64            // low_gas
}

// Outcome is a predicate's verdict.
type Outcome struct {
	Fire     bool
	Severity string
	Message  string
}

// Predicate evaluates one event type's rule params against an Input.
type Predicate func(params map[string]interface{}, in Input) Outcome

// predicates is the closed set of implemented event predicates, per spec
// §4.7. Events present in the §6 enum but absent here (dispute_created,
// liveness_expiring, contract_paused, backlog_assertions, backlog_disputes,
// market_stale, execution_delayed, low_participation, high_vote_divergence,
// high_dispute_rate, slow_api_request, database_slow_query) are validated
// and storable but never fire — they require external collaborators this
// engine does not integrate, per the Open Question resolution on
// high_vote_divergence and dispute-related events.
var predicates = map[Event]Predicate{
	EventPriceDeviation: predicatePriceDeviation,
	EventPriceStale:     predicateStale,
	EventStaleSync:      predicateStale,
	EventSyncBacklog:    predicateSyncBacklog,
	EventSyncError:      predicateSyncError,
	EventHighErrorRate:  predicateHighErrorRate,
	EventLowGas:         predicateLowGas,
}

// Evaluate dispatches to the registered predicate for event, returning a
// never-firing Outcome for unsupported events.
func Evaluate(event Event, params map[string]interface{}, in Input) Outcome {
	fn, ok := predicates[event]
	if !ok {
		return Outcome{}
	}
	return fn(params, in)
}

func floatParam(params map[string]interface{}, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

func uintParam(params map[string]interface{}, key string, def uint64) uint64 {
	if v, ok := params[key]; ok {
		if f, ok := v.(float64); ok {
			return uint64(f)
		}
	}
	return def
}

// predicatePriceDeviation fires when |deviation| >= threshold_percent,
// escalating to critical above 2x that threshold, per spec §4.7.
func predicatePriceDeviation(params map[string]interface{}, in Input) Outcome {
	threshold := floatParam(params, "threshold_percent", 1.0)
	dev := math.Abs(in.DeviationPercent)
	if dev < threshold {
		return Outcome{}
	}
	severity := "warning"
	if dev > 2*threshold {
		severity = "critical"
	}
	return Outcome{
		Fire:     true,
		Severity: severity,
		Message:  fmt.Sprintf("%s/%s deviation %.3f%% exceeds threshold %.3f%%", in.Chain, in.Symbol, in.DeviationPercent, threshold),
	}
}

// predicateStale fires when staleness_seconds > params.maxAgeMs/1000, used
// by both price_stale and stale_sync per spec §4.7.
func predicateStale(params map[string]interface{}, in Input) Outcome {
	maxAgeMs := floatParam(params, "maxAgeMs", 300_000)
	maxAgeSec := maxAgeMs / 1000
	if float64(in.StalenessSeconds) <= maxAgeSec {
		return Outcome{}
	}
	return Outcome{
		Fire:     true,
		Severity: "warning",
		Message:  fmt.Sprintf("%s/%s staleness %ds exceeds %ds", in.Chain, in.Symbol, in.StalenessSeconds, int(maxAgeSec)),
	}
}

// predicateSyncBacklog fires when lag_blocks > params.maxLagBlocks.
func predicateSyncBacklog(params map[string]interface{}, in Input) Outcome {
	maxLag := uintParam(params, "maxLagBlocks", 100)
	if in.LagBlocks <= maxLag {
		return Outcome{}
	}
	return Outcome{
		Fire:     true,
		Severity: "warning",
		Message:  fmt.Sprintf("instance %s lag %d blocks exceeds %d", in.InstanceID, in.LagBlocks, maxLag),
	}
}

// predicateSyncError fires when SyncState.status == error.
func predicateSyncError(_ map[string]interface{}, in Input) Outcome {
	if in.SyncState == nil || in.SyncState.Status != persistence.StatusError {
		return Outcome{}
	}
	return Outcome{
		Fire:     true,
		Severity: "critical",
		Message:  fmt.Sprintf("instance %s sync state is error", in.InstanceID),
	}
}

// predicateHighErrorRate fires when errors/total >= thresholdPercent/100
// over the rule's windowMinutes (the window is enforced by the caller
// when it assembles ErrorCount/TotalCount).
func predicateHighErrorRate(params map[string]interface{}, in Input) Outcome {
	if in.TotalCount == 0 {
		return Outcome{}
	}
	thresholdPercent := floatParam(params, "thresholdPercent", 10)
	rate := float64(in.ErrorCount) / float64(in.TotalCount) * 100
	if rate < thresholdPercent {
		return Outcome{}
	}
	return Outcome{
		Fire:     true,
		Severity: "warning",
		Message:  fmt.Sprintf("instance %s error rate %.1f%% exceeds %.1f%%", in.InstanceID, rate, thresholdPercent),
	}
}

// predicateLowGas fires when the wallet's native balance is below
// params.minBalanceEth. Optional per spec §4.7: skipped when no balance
// reader populated WalletBalanceEth.
func predicateLowGas(params map[string]interface{}, in Input) Outcome {
	if in.WalletBalanceEth == nil {
		return Outcome{}
	}
	minBalance := floatParam(params, "minBalanceEth", 0.1)
	if *in.WalletBalanceEth >= minBalance {
		return Outcome{}
	}
	return Outcome{
		Fire:     true,
		Severity: "critical",
		Message:  fmt.Sprintf("wallet balance %.4f below minimum %.4f", *in.WalletBalanceEth, minBalance),
	}
}
