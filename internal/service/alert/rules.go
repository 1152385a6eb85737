package alert

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
	"github.com/InjectiveLabs/oracle-aggregator/internal/kv"
)

// RuleStoreKey is the KV blob key for the versioned rule set, per spec §6.
const RuleStoreKey = "alert_rules/v1"

// Event is one of the closed set of alert rule event types, per spec §6.
type Event string

const (
	EventDisputeCreated      Event = "dispute_created"
	EventLivenessExpiring    Event = "liveness_expiring"
	EventSyncError           Event = "sync_error"
	EventStaleSync           Event = "stale_sync"
	EventContractPaused      Event = "contract_paused"
	EventSyncBacklog         Event = "sync_backlog"
	EventBacklogAssertions   Event = "backlog_assertions"
	EventBacklogDisputes     Event = "backlog_disputes"
	EventMarketStale         Event = "market_stale"
	EventExecutionDelayed    Event = "execution_delayed"
	EventLowParticipation    Event = "low_participation"
	EventHighVoteDivergence  Event = "high_vote_divergence"
	EventHighDisputeRate     Event = "high_dispute_rate"
	EventSlowAPIRequest      Event = "slow_api_request"
	EventHighErrorRate       Event = "high_error_rate"
	EventDatabaseSlowQuery   Event = "database_slow_query"
	EventPriceDeviation      Event = "price_deviation"
	EventLowGas              Event = "low_gas"
	EventPriceStale          Event = "price_stale"
)

// DynamicCooldown is one {threshold_percent, cooldown} step of a
// price_deviation rule's value-scaled cooldown schedule, sorted descending
// by ThresholdPercent so a larger deviation re-notifies sooner.
type DynamicCooldown struct {
	ThresholdPercent float64
	Cooldown         time.Duration
}

// Rule is an AlertRule, per spec §3.
type Rule struct {
	ID                      string
	Name                    string
	Enabled                 bool
	Event                   Event
	Severity                string // info | warning | critical
	Protocols               []string
	Chains                  []string
	Instances               []string
	Symbols                 []string
	Params                  map[string]interface{}
	Channels                []string
	CooldownMinutes         int
	MaxNotificationsPerHour int
	SilencedUntil           *time.Time
	ConsecutiveOKRequired   int // hysteresis, SUPPLEMENTED FEATURES
	DynamicCooldowns        []DynamicCooldown
}

// Cooldown resolves the effective cooldown for a given deviation_percent,
// falling back to the flat CooldownMinutes when DynamicCooldowns is unset,
// per SPEC_FULL.md's "Dynamic, value-scaled cooldowns" supplement.
func (r *Rule) Cooldown(deviationPercent float64) time.Duration {
	for _, dc := range r.DynamicCooldowns {
		if deviationPercent >= dc.ThresholdPercent {
			return dc.Cooldown
		}
	}
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// knownEvents is the closed set from spec §6.
var knownEvents = map[Event]bool{
	EventDisputeCreated: true, EventLivenessExpiring: true, EventSyncError: true,
	EventStaleSync: true, EventContractPaused: true, EventSyncBacklog: true,
	EventBacklogAssertions: true, EventBacklogDisputes: true, EventMarketStale: true,
	EventExecutionDelayed: true, EventLowParticipation: true, EventHighVoteDivergence: true,
	EventHighDisputeRate: true, EventSlowAPIRequest: true, EventHighErrorRate: true,
	EventDatabaseSlowQuery: true, EventPriceDeviation: true, EventLowGas: true, EventPriceStale: true,
}

var knownSeverities = map[string]bool{"info": true, "warning": true, "critical": true}

// RuleStore is the KV-backed AlertRule store.
type RuleStore struct {
	store  kv.Store
	logger log.Logger
}

func NewRuleStore(store kv.Store) *RuleStore {
	return &RuleStore{store: store, logger: log.WithFields(log.Fields{"svc": "alert_rulestore"})}
}

// Load reads the versioned blob and validates every rule, normalizing
// fixable problems and dropping the rest, per spec §7 ValidationError
// handling: "rule loader normalizes ... or drops the rule; an audit entry
// of severity warning is emitted" (the audit entry itself is emitted by
// the caller, which has access to the AuditBuffer).
func (s *RuleStore) Load(ctx context.Context) ([]*Rule, []error) {
	raw, found, err := s.store.Get(ctx, RuleStoreKey)
	if err != nil || !found {
		return nil, nil
	}

	var rules []*Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, []error{&errs.InternalError{Reason: "alert_rules/v1 blob is not valid JSON", Cause: err}}
	}

	var valid []*Rule
	var problems []error
	for _, r := range rules {
		if err := normalize(r); err != nil {
			problems = append(problems, err)
			continue
		}
		valid = append(valid, r)
	}
	return valid, problems
}

// Put rewrites the entire rule set under the store's advisory lock, per
// spec §6 "single-writer advisory lock; readers never block writers".
func (s *RuleStore) Put(ctx context.Context, rules []*Rule) error {
	unlock, err := s.store.Lock(ctx, RuleStoreKey, 5*time.Second)
	if err != nil {
		return err
	}
	defer unlock()

	body, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, RuleStoreKey, body)
}

// normalize validates a rule in place, applying default fallbacks where
// the spec documents one, and returns a ValidationError when the rule
// cannot be salvaged.
func normalize(r *Rule) error {
	if r.ID == "" {
		return &errs.ValidationError{RuleID: "", Field: "id", Reason: "rule id is required"}
	}
	if !knownEvents[r.Event] {
		return &errs.ValidationError{RuleID: r.ID, Field: "event", Reason: "unknown event " + string(r.Event)}
	}
	if !knownSeverities[r.Severity] {
		r.Severity = "warning"
	}
	if r.CooldownMinutes <= 0 {
		r.CooldownMinutes = 15
	}
	if r.MaxNotificationsPerHour <= 0 {
		r.MaxNotificationsPerHour = 4
	}
	if r.ConsecutiveOKRequired <= 0 {
		r.ConsecutiveOKRequired = 1
	}
	return nil
}
