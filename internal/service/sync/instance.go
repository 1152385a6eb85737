// Package sync implements SyncInstance (C4) and SyncOrchestrator (C5): the
// per-instance periodic fetch/persist/detect-change loop and the component
// that discovers and supervises one SyncInstance per enabled row in the
// instance catalog, following the teacher's oracleSvc processSetPriceFeed
// loop shape (single task, its own timer, select on ctx.Done/timer.C).
package sync

import (
	"context"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
	"github.com/InjectiveLabs/oracle-aggregator/internal/service/audit"
	"github.com/InjectiveLabs/oracle-aggregator/oracle"
	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

// State is a SyncInstance's position in the state machine of spec §4.4.
type State string

const (
	StateCreated      State = "created"
	StateInitialFetch State = "initial_fetch"
	StateTicking      State = "ticking"
	StateDegraded     State = "degraded"
	StateStopped      State = "stopped"
)

// ConsecutiveFailureThreshold is K from spec §4.4: after K consecutive tick
// failures the instance enters StateDegraded and its circuit breaker opens.
// SyncState reports status=error from the first failed tick.
const ConsecutiveFailureThreshold = 5

// Instance is a single SyncInstance: it exclusively owns its client handle,
// its timer, its last-price cache, and its sync-loop goroutine, per spec
// §3 Ownership.
type Instance struct {
	id       string
	protocol oracle.Protocol
	chain    string
	cfg      oracle.ClientConfig
	interval time.Duration
	defaults oracle.ProtocolDefaults

	client oracle.Client
	gw     persistence.Gateway
	ab     *audit.Buffer

	mu               sync.Mutex
	state            State
	lastPrices       map[string]float64
	consecutiveFails uint32
	breaker          *backoff.Backoff
	breakerUntil     time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	logger  log.Logger
	svcTags metrics.Tags
}

// New constructs a SyncInstance but does not start its loop; the client is
// constructed lazily on the first tick per spec §4.4 step 2 "construct a
// transient client (or reuse cached handle)".
func New(inst persistence.Instance, gw persistence.Gateway, ab *audit.Buffer) *Instance {
	defaults, ok := oracle.Defaults[inst.Protocol]
	if !ok {
		defaults = oracle.ProtocolDefaults{IntervalMs: 60_000, BatchSize: 50, MaxConcurrency: 3, PriceChangeThreshold: 0.001}
	}
	interval := time.Duration(defaults.IntervalMs) * time.Millisecond
	if inst.SyncIntervalMs > 0 {
		interval = time.Duration(inst.SyncIntervalMs) * time.Millisecond
	}

	return &Instance{
		id:         inst.InstanceID,
		protocol:   inst.Protocol,
		chain:      inst.Chain,
		cfg:        clientConfig(inst),
		interval:   interval,
		defaults:   defaults,
		gw:         gw,
		ab:         ab,
		state:      StateCreated,
		lastPrices: make(map[string]float64),
		breaker:    &backoff.Backoff{Min: 5 * time.Second, Max: 5 * time.Minute, Factor: 2, Jitter: true},
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		logger: log.WithFields(log.Fields{
			"svc":         "sync_instance",
			"instance_id": inst.InstanceID,
			"protocol":    string(inst.Protocol),
			"chain":       inst.Chain,
		}),
		svcTags: metrics.Tags{"svc": "sync_instance", "protocol": string(inst.Protocol)},
	}
}

// ID returns the instance_id this SyncInstance was constructed for.
func (i *Instance) ID() string { return i.id }

func (i *Instance) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

// State reports the current position in the state machine.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Start runs the tick loop in its own goroutine until Stop is called or ctx
// is cancelled, per spec §4.4 scheduling: "fixed-interval timer ... ticks
// for the same instance never overlap".
func (i *Instance) Start(ctx context.Context) {
	i.setState(StateInitialFetch)
	go i.loop(ctx)
}

func (i *Instance) loop(ctx context.Context) {
	defer close(i.doneCh)
	defer i.panicRecover()

	timer := time.NewTimer(0) // fire immediately for the initial fetch
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			i.logger.Infoln("context cancelled, stopping sync instance")
			i.setState(StateStopped)
			return
		case <-i.stopCh:
			i.logger.Infoln("stop requested, stopping sync instance")
			i.setState(StateStopped)
			return
		case <-timer.C:
			start := time.Now()
			if err := i.tick(ctx); err != nil {
				i.logger.WithError(err).Warningln("tick failed")
			}
			elapsed := time.Since(start)
			if elapsed < i.interval {
				timer.Reset(i.interval - elapsed)
			} else {
				timer.Reset(0) // overrunning tick: run again immediately
			}
		}
	}
}

// Stop signals the loop to exit and blocks until it has, per spec §4.5
// "stop_all signals cancellation ... completes ... or a 30s deadline
// expires".
func (i *Instance) Stop() {
	select {
	case <-i.doneCh:
		return
	default:
	}
	close(i.stopCh)
	select {
	case <-i.doneCh:
	case <-time.After(30 * time.Second):
		i.logger.Warningln("stop deadline exceeded, abandoning sync instance")
	}
}

// tick runs the normative 9-step algorithm of spec §4.4.
func (i *Instance) tick(ctx context.Context) error {
	metrics.ReportFuncCall(i.svcTags)
	doneFn := metrics.ReportFuncTiming(i.svcTags)
	defer doneFn()

	tickStart := time.Now()

	// Circuit breaker: once degraded, skip upstream attempts until the
	// backoff window elapses instead of hammering a dead client/endpoint
	// every interval.
	i.mu.Lock()
	skip := i.state == StateDegraded && tickStart.Before(i.breakerUntil)
	i.mu.Unlock()
	if skip {
		return nil
	}

	// Step 1-2: load config, construct (or reuse) the client.
	if i.client == nil {
		client, err := oracle.NewClient(i.protocol, i.cfg)
		if err != nil {
			metrics.ReportFuncError(i.svcTags)
			return i.onTickError(ctx, &errs.ConfigError{InstanceID: i.id, Reason: err.Error()})
		}
		i.client = client
	}

	// Step 3: read current block/time.
	block, err := i.client.BlockNumber(ctx)
	if err != nil {
		metrics.ReportFuncError(i.svcTags)
		return i.onTickError(ctx, err)
	}

	// Step 4: enumerate available symbols.
	symbols := i.client.Symbols()
	if len(symbols) == 0 {
		return i.onTickSuccess(ctx, block, tickStart, nil)
	}

	// Step 5: fan out through the client's own batching, which in turn
	// uses the ConcurrencyLimiter bounded by max_concurrency.
	batch, err := i.client.GetPrices(ctx, symbols)
	if err != nil {
		metrics.ReportFuncError(i.svcTags)
		return i.onTickError(ctx, err)
	}

	for _, fail := range batch.Failed {
		i.logFailure(fail)
	}

	// Step 6: upsert_feeds of the collected successes, batched.
	if len(batch.Prices) > 0 {
		if err := i.gw.UpsertFeeds(ctx, i.id, batch.Prices); err != nil {
			metrics.ReportFuncError(i.svcTags)
			return i.onTickError(ctx, err)
		}
	}

	// Step 7-8: detect changes against the cached last price, update cache.
	updates := i.detectChanges(batch.Prices)
	if len(updates) > 0 {
		if err := i.gw.InsertUpdates(ctx, updates); err != nil {
			metrics.ReportFuncError(i.svcTags)
			return i.onTickError(ctx, err)
		}
	}

	// Step 9: upsert_sync_state healthy.
	return i.onTickSuccess(ctx, block, tickStart, nil)
}

func (i *Instance) logFailure(f oracle.PerSymbolFailure) {
	i.logger.WithFields(log.Fields{"symbol": f.Symbol}).WithError(f.Error).Warningln("symbol fetch failed, continuing tick")
	if i.ab != nil {
		i.ab.Log(audit.Entry{
			Actor:      "sync_instance",
			ActorType:  "system",
			Action:     "price_fetch_failed",
			Severity:   "warning",
			EntityType: "symbol",
			EntityID:   f.Symbol,
			Details:    map[string]interface{}{"instance_id": i.id, "protocol": string(i.protocol)},
			Success:    false,
			ErrorMsg:   f.Error.Error(),
		})
	}
}

// detectChanges computes relative price change against the cached last
// price per symbol, appending a PriceUpdate when it meets or exceeds the
// protocol's price_change_threshold, per spec §4.4 step 7.
func (i *Instance) detectChanges(feeds []*oracle.PriceFeed) []persistence.PriceUpdate {
	i.mu.Lock()
	defer i.mu.Unlock()

	var updates []persistence.PriceUpdate
	for _, f := range feeds {
		price, _ := f.Price.Float64()
		prev, known := i.lastPrices[f.Symbol]
		i.lastPrices[f.Symbol] = price
		if !known || prev == 0 {
			continue
		}

		change := price - prev
		relChange := math.Abs(change) / math.Abs(prev)
		if relChange < i.defaults.PriceChangeThreshold {
			continue
		}

		feedID := f.FeedID()
		updates = append(updates, persistence.PriceUpdate{
			ID:                 persistence.UpdateID(feedID),
			FeedID:             feedID,
			InstanceID:         i.id,
			Protocol:           f.Protocol,
			PreviousPrice:      prev,
			CurrentPrice:       price,
			PriceChange:        change,
			PriceChangePercent: relChange * 100,
			Timestamp:          f.Timestamp,
			BlockNumber:        f.BlockNumber,
		})
	}
	return updates
}

func (i *Instance) onTickSuccess(ctx context.Context, block uint64, tickStart time.Time, _ error) error {
	durationMs := time.Since(tickStart).Milliseconds()
	i.mu.Lock()
	i.consecutiveFails = 0
	i.breaker.Reset()
	i.state = StateTicking
	i.mu.Unlock()

	return i.gw.UpsertSyncState(ctx, i.id, persistence.SyncStatePatch{
		Protocol:            i.protocol,
		Chain:               i.chain,
		LastProcessedBlock:  block,
		Status:              persistence.StatusHealthy,
		ConsecutiveFailures: 0,
		LastSyncAt:          time.Now().UTC(),
		LastSyncDurationMs:  durationMs,
	})
}

// onTickError increments consecutive_failures and marks the instance
// degraded once it reaches K, per spec §4.4's state diagram and invariant
// "status = error => consecutive_failures >= 1". The last-price cache is
// never reset on error.
func (i *Instance) onTickError(ctx context.Context, cause error) error {
	i.mu.Lock()
	i.consecutiveFails++
	fails := i.consecutiveFails
	if fails >= ConsecutiveFailureThreshold {
		i.state = StateDegraded
		i.breakerUntil = time.Now().Add(i.breaker.Duration())
	}
	i.mu.Unlock()

	msg := cause.Error()
	now := time.Now().UTC()

	if i.ab != nil {
		i.ab.Log(audit.Entry{
			Actor:      "sync_instance",
			ActorType:  "system",
			Action:     "tick_failed",
			Severity:   "critical",
			EntityType: "instance",
			EntityID:   i.id,
			Details:    map[string]interface{}{"consecutive_failures": fails},
			Success:    false,
			ErrorMsg:   msg,
		})
	}

	_ = i.gw.UpsertSyncState(ctx, i.id, persistence.SyncStatePatch{
		Protocol:            i.protocol,
		Chain:               i.chain,
		Status:              persistence.StatusError,
		ConsecutiveFailures: fails,
		LastSyncAt:          time.Now(),
		LastError:           &msg,
		LastErrorAt:         &now,
	})
	return cause
}

func (i *Instance) panicRecover() {
	if r := recover(); r != nil {
		i.logger.Errorln("sync instance panicked:", r)
		i.logger.Debugln(string(debug.Stack()))
		i.setState(StateStopped)
	}
}
