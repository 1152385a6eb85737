// Package alert implements the AlertEvaluator (C7): periodic rule
// evaluation over feeds/sync-state/aggregates, fingerprint-based
// occurrence debounce, rate limiting, silencing, and consecutive-OK
// hysteresis on auto-resolve, grounded in 0x0Glitch/Oracle's
// alerts.Manager/AlertPolicy texture.
package alert

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/service/audit"
	"github.com/InjectiveLabs/oracle-aggregator/internal/notify"
)

// DefaultTickInterval is the AlertEvaluator's tick cadence, per spec §4.7
// "default every 60 s".
const DefaultTickInterval = 60 * time.Second

// Candidate is one (rule, input) pairing the evaluator's tick assembles
// from feeds/sync-state/aggregates, matching a rule's filters.
type Candidate struct {
	Rule  *Rule
	Input Input
}

// CandidateSource supplies the tick's candidate set; the evaluator is
// agnostic to where feeds/sync-state/aggregates come from, keeping it
// decoupled from sync/aggregate package internals.
type CandidateSource func(ctx context.Context, rules []*Rule) []Candidate

// Evaluator is the AlertEvaluator (C7).
type Evaluator struct {
	rulestore *RuleStore
	alerts    *Store
	source    CandidateSource
	sender    notify.Sender
	ab        *audit.Buffer

	mu    sync.Mutex
	okRun map[string]int // fingerprint -> consecutive predicate-false ticks

	interval time.Duration
	logger   log.Logger
	svcTags  metrics.Tags

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewEvaluator(rulestore *RuleStore, alerts *Store, source CandidateSource, sender notify.Sender, ab *audit.Buffer) *Evaluator {
	return &Evaluator{
		rulestore: rulestore,
		alerts:    alerts,
		source:    source,
		sender:    sender,
		ab:        ab,
		okRun:     make(map[string]int),
		interval:  DefaultTickInterval,
		logger:    log.WithFields(log.Fields{"svc": "alert_evaluator"}),
		svcTags:   metrics.Tags{"svc": "alert_evaluator"},
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (e *Evaluator) Start(ctx context.Context) {
	go e.loop(ctx)
}

func (e *Evaluator) loop(ctx context.Context) {
	defer close(e.doneCh)
	defer e.panicRecover()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-timer.C:
			e.Tick(ctx)
			timer.Reset(e.interval)
		}
	}
}

func (e *Evaluator) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

// Tick loads enabled rules and evaluates each candidate's predicate,
// calling emitAlert on a positive result, per spec §4.7.
func (e *Evaluator) Tick(ctx context.Context) {
	metrics.ReportFuncCall(e.svcTags)
	doneFn := metrics.ReportFuncTiming(e.svcTags)
	defer doneFn()

	rules, problems := e.rulestore.Load(ctx)
	for _, p := range problems {
		e.logger.WithError(p).Warningln("dropping invalid alert rule")
		if e.ab != nil {
			e.ab.Log(audit.Entry{
				Actor: "alert_evaluator", ActorType: "system", Action: "rule_validation_failed",
				Severity: "warning", Success: false, ErrorMsg: p.Error(),
			})
		}
	}

	var enabled []*Rule
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		return
	}

	candidates := e.source(ctx, enabled)
	for _, c := range candidates {
		outcome := Evaluate(c.Rule.Event, c.Rule.Params, c.Input)
		fp := Fingerprint(string(c.Rule.Event), c.Input.Protocol, c.Input.Chain, c.Input.Symbol, c.Input.InstanceID)

		if !outcome.Fire {
			e.handlePredicateFalse(ctx, c.Rule, fp)
			continue
		}
		e.resetOKRun(fp)

		if c.Rule.SilencedUntil != nil && c.Rule.SilencedUntil.After(time.Now()) {
			continue // silenced: suppress both storage and notification
		}
		e.emitAlert(ctx, c.Rule, c.Input, fp, outcome)
	}
}

// handlePredicateFalse implements the consecutive-OK hysteresis supplement:
// an open Alert only auto-resolves after ConsecutiveOKRequired consecutive
// false reads.
func (e *Evaluator) handlePredicateFalse(ctx context.Context, rule *Rule, fp string) {
	e.mu.Lock()
	e.okRun[fp]++
	runs := e.okRun[fp]
	e.mu.Unlock()

	if runs < rule.ConsecutiveOKRequired {
		return
	}

	existing, err := e.alerts.FindOpenOrAcknowledgedByFingerprint(ctx, fp)
	if err != nil || existing == nil {
		return
	}
	if err := e.alerts.Resolve(ctx, existing.ID); err != nil {
		e.logger.WithError(err).Warningln("failed to auto-resolve alert")
	}
}

func (e *Evaluator) resetOKRun(fp string) {
	e.mu.Lock()
	delete(e.okRun, fp)
	e.mu.Unlock()
}

// emitAlert implements spec §4.7's fingerprint-based debounce policy.
func (e *Evaluator) emitAlert(ctx context.Context, rule *Rule, in Input, fp string, outcome Outcome) {
	existing, err := e.alerts.FindOpenOrAcknowledgedByFingerprint(ctx, fp)
	if err != nil {
		e.logger.WithError(err).Errorln("failed to look up existing alert")
		return
	}

	cooldown := rule.Cooldown(in.DeviationPercent)

	if existing != nil {
		withinCooldown := time.Since(existing.LastSeenAt) < cooldown
		if withinCooldown {
			if err := e.alerts.BumpOccurrence(ctx, existing.ID); err != nil {
				e.logger.WithError(err).Warningln("failed to bump alert occurrence")
			}
			return
		}

		existing.Severity = outcome.Severity
		existing.Message = outcome.Message
		if err := e.alerts.UpdateInPlace(ctx, existing); err != nil {
			e.logger.WithError(err).Warningln("failed to update alert in place")
			return
		}
		e.notify(ctx, rule, existing.ID, outcome)
		return
	}

	a := &Alert{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		Event:       rule.Event,
		Severity:    outcome.Severity,
		Title:       string(rule.Event),
		Message:     outcome.Message,
		Protocol:    in.Protocol,
		Chain:       in.Chain,
		InstanceID:  in.InstanceID,
		Symbol:      in.Symbol,
		Context:     map[string]interface{}{"deviation_percent": in.DeviationPercent},
		Fingerprint: fp,
	}
	if err := e.alerts.Create(ctx, a); err != nil {
		e.logger.WithError(err).Errorln("failed to create alert")
		return
	}
	e.notify(ctx, rule, a.ID, outcome)
}

// notify sends the webhook notification unless rate-limited, per spec
// §4.7 "Rate limit: ... suppress notification but still coalesce
// occurrence" (the occurrence coalescing already happened above).
func (e *Evaluator) notify(ctx context.Context, rule *Rule, alertID string, outcome Outcome) {
	count, err := e.alerts.CountNotificationsLastHour(ctx, rule.ID)
	if err != nil {
		e.logger.WithError(err).Warningln("failed to check notification rate limit")
	} else if count >= rule.MaxNotificationsPerHour {
		e.logger.WithField("rule_id", rule.ID).Debugln("notification rate-limited")
		return
	}

	for _, channel := range rule.Channels {
		payload := notify.Payload{
			AlertID: alertID, Severity: outcome.Severity, Title: string(rule.Event),
			Message: outcome.Message, Timestamp: time.Now().UTC(),
		}
		if err := e.sender.Send(ctx, channel, payload); err != nil {
			metrics.ReportFuncError(e.svcTags)
			e.logger.WithError(err).WithField("channel", channel).Warningln("alert notification failed")
		}
	}
}

func (e *Evaluator) panicRecover() {
	if r := recover(); r != nil {
		e.logger.Errorln("alert evaluator panicked:", r)
		e.logger.Debugln(string(debug.Stack()))
	}
}
