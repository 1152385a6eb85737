package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
)

const (
	StatusOpen         = "open"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Alert is the persisted Alert entity, per spec §3.
type Alert struct {
	ID               string
	RuleID           string
	Event            Event
	Severity         string
	Title            string
	Message          string
	Protocol         string
	Chain            string
	InstanceID       string
	Symbol           string
	Context          map[string]interface{}
	Status           string
	AcknowledgedBy   *string
	AcknowledgedAt   *time.Time
	ResolvedBy       *string
	ResolvedAt       *time.Time
	Occurrences      uint32
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
	ConsecutiveOK    int
	Fingerprint      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store is the relational store for Alert rows (unified_alerts, per
// spec §6), distinct from the KV-backed RuleStore.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindOpenOrAcknowledgedByFingerprint returns the most recent open or
// acknowledged Alert for fp, or nil if none exists (including when the
// most recent matching alert is resolved, per spec §4.7 "If not found, or
// last matching alert is resolved").
func (s *Store) FindOpenOrAcknowledgedByFingerprint(ctx context.Context, fp string) (*Alert, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, rule_id, event, severity, title, message, protocol, chain, instance_id, symbol,
       context, status, acknowledged_by, acknowledged_at, resolved_by, resolved_at,
       occurrences, first_seen_at, last_seen_at, created_at, updated_at
FROM unified_alerts
WHERE fingerprint = $1 AND status IN ('open','acknowledged')
ORDER BY last_seen_at DESC LIMIT 1`, fp)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.PersistenceError{Op: "find_alert_by_fingerprint", Cause: err}
	}
	a.Fingerprint = fp
	return a, nil
}

func scanAlert(row *sql.Row) (*Alert, error) {
	var a Alert
	var contextJSON []byte
	var ack, resolvedBy *string
	var ackAt, resolvedAt *time.Time
	var eventStr string

	if err := row.Scan(&a.ID, &a.RuleID, &eventStr, &a.Severity, &a.Title, &a.Message,
		&a.Protocol, &a.Chain, &a.InstanceID, &a.Symbol, &contextJSON, &a.Status,
		&ack, &ackAt, &resolvedBy, &resolvedAt, &a.Occurrences, &a.FirstSeenAt, &a.LastSeenAt,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Event = Event(eventStr)
	a.AcknowledgedBy, a.AcknowledgedAt, a.ResolvedBy, a.ResolvedAt = ack, ackAt, resolvedBy, resolvedAt
	if len(contextJSON) > 0 {
		_ = json.Unmarshal(contextJSON, &a.Context)
	}
	return &a, nil
}

// Create inserts a new Alert row, per spec §4.7 "create new Alert ... a
// resolved alert is treated as a fresh occurrence that re-opens" — the
// previous row is left untouched (a new id is always assigned).
func (s *Store) Create(ctx context.Context, a *Alert) error {
	ctxJSON, err := json.Marshal(a.Context)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt, a.FirstSeenAt, a.LastSeenAt = now, now, now, now
	if a.Occurrences == 0 {
		a.Occurrences = 1
	}
	if a.Status == "" {
		a.Status = StatusOpen
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO unified_alerts
	(id, rule_id, event, severity, title, message, protocol, chain, instance_id, symbol,
	 context, status, occurrences, first_seen_at, last_seen_at, created_at, updated_at, fingerprint)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`, a.ID, a.RuleID, string(a.Event), a.Severity, a.Title, a.Message, a.Protocol, a.Chain,
		a.InstanceID, a.Symbol, ctxJSON, a.Status, a.Occurrences, a.FirstSeenAt, a.LastSeenAt,
		a.CreatedAt, a.UpdatedAt, a.Fingerprint)
	if err != nil {
		return &errs.PersistenceError{Op: "create_alert", Cause: err}
	}
	return nil
}

// BumpOccurrence increments occurrences and last_seen_at without sending a
// notification, per spec §4.7's within-cooldown path.
func (s *Store) BumpOccurrence(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE unified_alerts SET occurrences = occurrences + 1, last_seen_at = $2, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return &errs.PersistenceError{Op: "bump_alert_occurrence", Cause: err}
	}
	return nil
}

// UpdateInPlace applies an out-of-cooldown re-fire: bump occurrence, reset
// the cooldown anchor, per spec §4.7's outside-cooldown path.
func (s *Store) UpdateInPlace(ctx context.Context, a *Alert) error {
	ctxJSON, err := json.Marshal(a.Context)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
UPDATE unified_alerts SET occurrences = occurrences + 1, last_seen_at = $2, updated_at = $2,
	severity = $3, message = $4, context = $5
WHERE id = $1`, a.ID, now, a.Severity, a.Message, ctxJSON)
	if err != nil {
		return &errs.PersistenceError{Op: "update_alert", Cause: err}
	}
	return nil
}

// Resolve marks an Alert resolved, per the consecutive-OK hysteresis
// supplement (SPEC_FULL.md §4).
func (s *Store) Resolve(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE unified_alerts SET status = $2, resolved_at = $3, updated_at = $3 WHERE id = $1`,
		id, StatusResolved, now)
	if err != nil {
		return &errs.PersistenceError{Op: "resolve_alert", Cause: err}
	}
	return nil
}

// CountNotificationsLastHour supports the rate-limit check of spec §4.7. It
// counts unified_alerts rows for rule_id whose updated_at lies within the
// last hour. It does not count notification sends: an update without a
// send (such as BumpOccurrence) is counted, and several sends for one row
// count once.
func (s *Store) CountNotificationsLastHour(ctx context.Context, ruleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM unified_alerts WHERE rule_id = $1 AND updated_at >= $2`,
		ruleID, time.Now().Add(-1*time.Hour).UTC()).Scan(&n)
	if err != nil {
		return 0, &errs.PersistenceError{Op: "count_notifications", Cause: err}
	}
	return n, nil
}
