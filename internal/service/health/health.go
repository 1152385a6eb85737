// Package health exposes the health rollup surface as a plain Go method,
// mirroring the teacher's internal/service/health package shape but
// without reproducing a goa-generated HTTP service, per SPEC_FULL.md's
// supplemented features (no externally-facing HTTP surface is in scope).
package health

import (
	"context"

	"github.com/InjectiveLabs/oracle-aggregator/internal/service/audit"
	"github.com/InjectiveLabs/oracle-aggregator/internal/service/sync"
)

// Report is the process-wide health snapshot.
type Report struct {
	Sync       sync.HealthRollup
	AuditLen   int
	AuditQueue int
}

// Checker assembles a Report from the orchestrator and audit buffer.
type Checker struct {
	orchestrator *sync.Orchestrator
	auditBuffer  *audit.Buffer
}

func NewChecker(orchestrator *sync.Orchestrator, ab *audit.Buffer) *Checker {
	return &Checker{orchestrator: orchestrator, auditBuffer: ab}
}

// Check gathers SyncOrchestrator.HealthCheckAll() plus the audit buffer's
// occupancy into one roll-up.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{Sync: c.orchestrator.HealthCheckAll(ctx)}
	if c.auditBuffer != nil {
		r.AuditLen = c.auditBuffer.Len()
		r.AuditQueue = c.auditBuffer.QueueLen()
	}
	return r
}
