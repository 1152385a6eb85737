package alert

import (
	"context"
	"time"

	"github.com/InjectiveLabs/oracle-aggregator/internal/service/aggregate"
	"github.com/InjectiveLabs/oracle-aggregator/internal/service/sync"
	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

// Sources bundles the read paths a CandidateSource assembles evaluation
// input from: the Aggregator's latest cross-chain view, the Orchestrator's
// health roll-up, and the raw gateway for per-feed staleness.
type Sources struct {
	Gateway      persistence.Gateway
	Orchestrator *sync.Orchestrator
	Aggregator   *aggregate.Aggregator
	Symbols      []string
}

// BuildCandidates assembles one Candidate per (rule, matching context),
// covering six event types: price_deviation, price_stale, stale_sync,
// sync_backlog, sync_error, high_error_rate. low_gas has a predicate but no
// wallet-balance source, so its rules get no candidates; events without a
// predicate get none either.
func (s Sources) BuildCandidates(ctx context.Context, rules []*Rule) []Candidate {
	var out []Candidate

	health := s.Orchestrator.HealthCheckAll(ctx)

	var aggResults []aggregate.Result
	if s.Aggregator != nil {
		aggResults, _ = s.Aggregator.Tick(ctx)
	}

	for _, rule := range rules {
		switch rule.Event {
		case EventPriceDeviation:
			out = append(out, s.aggregateCandidates(rule, aggResults)...)
		case EventPriceStale:
			out = append(out, s.priceStaleCandidates(ctx, rule)...)
		case EventStaleSync, EventSyncBacklog, EventSyncError, EventHighErrorRate:
			out = append(out, s.syncCandidates(rule, health)...)
		}
	}
	return out
}

// priceStaleCandidates reads the latest feed per matching symbol and
// reports its own staleness_seconds, per spec §4.7 price_stale.
func (s Sources) priceStaleCandidates(ctx context.Context, rule *Rule) []Candidate {
	var out []Candidate
	for _, symbol := range s.Symbols {
		if !matchesSymbol(rule, symbol) {
			continue
		}
		feeds, err := s.Gateway.ListFeeds(ctx, persistence.FeedFilter{Symbol: symbol, Limit: 50})
		if err != nil {
			continue
		}
		for _, f := range feeds {
			if !matchesChain(rule, f.Chain) {
				continue
			}
			out = append(out, Candidate{
				Rule: rule,
				Input: Input{
					Protocol:         string(f.Protocol),
					Chain:            f.Chain,
					Symbol:           symbol,
					InstanceID:       f.InstanceID,
					StalenessSeconds: f.StalenessSeconds,
				},
			})
		}
	}
	return out
}

func (s Sources) aggregateCandidates(rule *Rule, results []aggregate.Result) []Candidate {
	var out []Candidate
	for _, r := range results {
		if !matchesSymbol(rule, r.Symbol) {
			continue
		}
		for _, cp := range r.PricesByChain {
			if !matchesChain(rule, cp.Chain) {
				continue
			}
			out = append(out, Candidate{
				Rule: rule,
				Input: Input{
					Chain:            cp.Chain,
					Symbol:           r.Symbol,
					DeviationPercent: cp.DeviationPercent,
				},
			})
		}
	}
	return out
}

func (s Sources) syncCandidates(rule *Rule, health sync.HealthRollup) []Candidate {
	var out []Candidate
	for instanceID, h := range health.Instances {
		if !matchesInstance(rule, instanceID) {
			continue
		}
		if h.SyncState == nil {
			continue
		}
		in := Input{
			InstanceID: instanceID,
			Protocol:   string(h.SyncState.Protocol),
			Chain:      h.SyncState.Chain,
			// LagBlocks is left at zero: no component in scope tracks the
			// upstream chain head independently of the instance's own last
			// processed block, so sync_backlog never fires through this
			// wiring until a head-tracking source is added.
			StalenessSeconds: uint32(time.Since(h.SyncState.LastSyncAt).Seconds()),
			SyncState:        h.SyncState,
			ErrorCount:       int(h.SyncState.ConsecutiveFailures),
			TotalCount:       int(h.SyncState.ConsecutiveFailures) + 1,
		}
		if !matchesProtocolChain(rule, in.Protocol, in.Chain) {
			continue
		}
		out = append(out, Candidate{Rule: rule, Input: in})
	}
	return out
}

func matchesSymbol(rule *Rule, symbol string) bool {
	return len(rule.Symbols) == 0 || contains(rule.Symbols, symbol)
}

func matchesChain(rule *Rule, chain string) bool {
	return len(rule.Chains) == 0 || contains(rule.Chains, chain)
}

func matchesInstance(rule *Rule, instanceID string) bool {
	return len(rule.Instances) == 0 || contains(rule.Instances, instanceID)
}

func matchesProtocolChain(rule *Rule, protocol, chain string) bool {
	if len(rule.Protocols) > 0 && !contains(rule.Protocols, protocol) {
		return false
	}
	if len(rule.Chains) > 0 && !contains(rule.Chains, chain) {
		return false
	}
	return true
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
