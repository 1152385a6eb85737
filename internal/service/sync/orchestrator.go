package sync

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/service/audit"
	"github.com/InjectiveLabs/oracle-aggregator/oracle"
	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

// HealthRollup is the result of HealthCheckAll: latest SyncState rows plus
// per-client health_check() results, per spec §4.5.
type HealthRollup struct {
	Instances map[string]InstanceHealth
}

// InstanceHealth pairs a SyncInstance's persisted state with its live
// client health check.
type InstanceHealth struct {
	State      State
	SyncState  *persistence.SyncState
	Client     oracle.HealthStatus
	ClientErr  error
}

// Orchestrator is the SyncOrchestrator (C5): discovers enabled instances,
// starts/stops one SyncInstance per row, and aggregates health, per spec
// §4.5.
type Orchestrator struct {
	catalog Catalog
	gw      persistence.Gateway
	ab      *audit.Buffer

	mu        sync.Mutex
	instances map[string]*Instance
	cancel    context.CancelFunc

	logger  log.Logger
	svcTags metrics.Tags
}

func NewOrchestrator(catalog Catalog, gw persistence.Gateway, ab *audit.Buffer) *Orchestrator {
	return &Orchestrator{
		catalog:   catalog,
		gw:        gw,
		ab:        ab,
		instances: make(map[string]*Instance),
		logger:    log.WithFields(log.Fields{"svc": "sync_orchestrator"}),
		svcTags:   metrics.Tags{"svc": "sync_orchestrator"},
	}
}

// StartAll queries enabled instances and starts one SyncInstance per row.
// A failing instance construction is logged and skipped; it never aborts
// the orchestrator, per spec §4.5 "Failure isolation".
func (o *Orchestrator) StartAll(ctx context.Context) error {
	metrics.ReportFuncCall(o.svcTags)

	rows, err := o.catalog.EnabledInstances(ctx)
	if err != nil {
		metrics.ReportFuncError(o.svcTags)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	o.cancel = cancel
	var errOut error
	for _, row := range rows {
		if !oracle.IsChainSupported(row.Protocol, row.Chain) {
			o.logger.WithFields(log.Fields{
				"instance_id": row.InstanceID, "protocol": string(row.Protocol), "chain": row.Chain,
			}).Warningln("unsupported (protocol, chain) pair, skipping instance")
			if o.ab != nil {
				o.ab.Log(audit.Entry{
					Actor:      "sync_orchestrator",
					ActorType:  "system",
					Action:     "instance_skipped",
					Severity:   "warning",
					EntityType: "sync_instance",
					EntityID:   row.InstanceID,
					Details:    map[string]interface{}{"protocol": string(row.Protocol), "chain": row.Chain},
					Success:    false,
					ErrorMsg:   "unsupported (protocol, chain) pair",
				})
			}
			errOut = multierr.Append(errOut, &configSkipError{instanceID: row.InstanceID})
			continue
		}
		inst := New(row, o.gw, o.ab)
		o.instances[row.InstanceID] = inst
		inst.Start(runCtx)
		o.logger.WithField("instance_id", row.InstanceID).Infoln("started sync instance")
	}
	o.mu.Unlock()

	return errOut
}

type configSkipError struct{ instanceID string }

func (e *configSkipError) Error() string { return "skipped unsupported instance " + e.instanceID }

// StopAll signals cancellation to every SyncInstance and waits for each to
// exit (bounded per-instance by Instance.Stop's 30s deadline).
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	instances := make([]*Instance, 0, len(o.instances))
	for _, inst := range o.instances {
		instances = append(instances, inst)
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(i *Instance) {
			defer wg.Done()
			i.Stop()
		}(inst)
	}
	wg.Wait()
}

// ActiveSyncCount reports instances not in the stopped state.
func (o *Orchestrator) ActiveSyncCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, inst := range o.instances {
		if inst.State() != StateStopped {
			n++
		}
	}
	return n
}

// HealthCheckAll gathers the latest SyncState row and a live client health
// check for every running instance into a single roll-up, per spec §4.5.
func (o *Orchestrator) HealthCheckAll(ctx context.Context) HealthRollup {
	o.mu.Lock()
	instances := make(map[string]*Instance, len(o.instances))
	for id, inst := range o.instances {
		instances[id] = inst
	}
	o.mu.Unlock()

	rollup := HealthRollup{Instances: make(map[string]InstanceHealth, len(instances))}
	for id, inst := range instances {
		h := InstanceHealth{State: inst.State()}

		state, err := o.gw.ReadSyncState(ctx, id)
		if err != nil {
			o.logger.WithError(err).WithField("instance_id", id).Warningln("failed to read sync state for health rollup")
		} else {
			h.SyncState = state
		}

		if inst.client != nil {
			status, err := inst.client.HealthCheck(ctx)
			h.Client = status
			h.ClientErr = err
		}

		rollup.Instances[id] = h
	}
	return rollup
}
