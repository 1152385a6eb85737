package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
	"github.com/InjectiveLabs/oracle-aggregator/oracle"
)

// DefaultBatchSize is the default chunk size for multi-row inserts, per
// spec §4.2.
const DefaultBatchSize = 100

// Gateway is the PersistenceGateway contract (C2).
type Gateway interface {
	UpsertFeeds(ctx context.Context, instanceID string, feeds []*oracle.PriceFeed) error
	InsertUpdates(ctx context.Context, updates []PriceUpdate) error
	ReadSyncState(ctx context.Context, instanceID string) (*SyncState, error)
	UpsertSyncState(ctx context.Context, instanceID string, patch SyncStatePatch) error
	ListFeeds(ctx context.Context, filter FeedFilter) ([]StoredFeed, error)
	QueryRecentFeeds(ctx context.Context, window RecentFeedsWindow) ([]StoredFeed, error)
	ListEnabledInstances(ctx context.Context) ([]Instance, error)
	CleanupOldData(ctx context.Context, protocol oracle.Protocol, retentionDays int) error
}

// pqGateway is the lib/pq-backed implementation, shared (stateless) across
// every component per spec §5 "Shared resources".
type pqGateway struct {
	db        *sql.DB
	batchSize int
	logger    log.Logger
	svcTags   metrics.Tags
}

// NewGateway wraps an already-opened *sql.DB (driver "postgres", lib/pq).
func NewGateway(db *sql.DB) Gateway {
	return &pqGateway{
		db:        db,
		batchSize: DefaultBatchSize,
		logger:    log.WithFields(log.Fields{"svc": "persistence"}),
		svcTags:   metrics.Tags{"svc": "persistence"},
	}
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var chunks [][]T
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[0:size:size])
	}
	return append(chunks, items)
}

// UpsertFeeds batches feeds in chunks of batchSize, each a single
// multi-row INSERT ... ON CONFLICT DO UPDATE within one transaction,
// retried once on any error per spec §4.2.
func (g *pqGateway) UpsertFeeds(ctx context.Context, instanceID string, feeds []*oracle.PriceFeed) error {
	if len(feeds) == 0 {
		return nil
	}
	defer metrics.ReportFuncTiming(g.svcTags)()

	for _, batch := range chunk(feeds, g.batchSize) {
		if err := g.upsertFeedBatchWithRetry(ctx, instanceID, batch); err != nil {
			metrics.ReportFuncError(g.svcTags)
			return &errs.PersistenceError{Op: "upsert_feeds", Cause: err}
		}
	}
	return nil
}

func (g *pqGateway) upsertFeedBatchWithRetry(ctx context.Context, instanceID string, batch []*oracle.PriceFeed) error {
	err := g.upsertFeedBatch(ctx, instanceID, batch)
	if err == nil {
		return nil
	}
	g.logger.WithError(err).Warningln("upsert_feeds chunk failed, retrying once")
	return g.upsertFeedBatch(ctx, instanceID, batch)
}

func (g *pqGateway) upsertFeedBatch(ctx context.Context, instanceID string, batch []*oracle.PriceFeed) error {
	const cols = 17
	values := make([]interface{}, 0, len(batch)*cols)
	placeholders := make([]string, 0, len(batch))

	for i, f := range batch {
		base := i * cols
		ph := make([]string, cols)
		for j := 0; j < cols; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		price, _ := f.Price.Float64()
		var confidence *float64
		if f.Confidence != nil {
			c, _ := f.Confidence.Float64()
			confidence = &c
		}

		values = append(values,
			f.FeedID(),
			instanceID,
			string(f.Protocol),
			f.Chain,
			f.Symbol,
			f.BaseAsset,
			f.QuoteAsset,
			price,
			f.PriceRaw,
			int16(f.Decimals),
			f.Timestamp,
			int64(f.BlockNumber),
			confidence,
			pq.Array(f.Sources),
			f.IsStale,
			int32(f.StalenessSeconds),
			time.Now().UTC(),
		)
	}

	query := fmt.Sprintf(`
INSERT INTO unified_price_feeds
	(id, instance_id, protocol, chain, symbol, base_asset, quote_asset, price,
	 price_raw, decimals, timestamp, block_number, confidence, sources,
	 is_stale, staleness_seconds, updated_at)
VALUES %s
ON CONFLICT (id) DO UPDATE SET
	price = EXCLUDED.price,
	price_raw = EXCLUDED.price_raw,
	timestamp = EXCLUDED.timestamp,
	block_number = EXCLUDED.block_number,
	is_stale = EXCLUDED.is_stale,
	staleness_seconds = EXCLUDED.staleness_seconds,
	updated_at = EXCLUDED.updated_at
`, strings.Join(placeholders, ","))

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if _, err := tx.ExecContext(ctx, query, values...); err != nil {
		return multierr.Append(errors.Wrap(err, "exec upsert_feeds"), tx.Rollback())
	}
	return errors.Wrap(tx.Commit(), "commit upsert_feeds")
}

// InsertUpdates batches updates in chunks, ON CONFLICT (id) DO NOTHING
// per spec §3 PriceUpdate idempotent insertion.
func (g *pqGateway) InsertUpdates(ctx context.Context, updates []PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	defer metrics.ReportFuncTiming(g.svcTags)()

	for _, batch := range chunk(updates, g.batchSize) {
		if err := g.insertUpdateBatchWithRetry(ctx, batch); err != nil {
			metrics.ReportFuncError(g.svcTags)
			return &errs.PersistenceError{Op: "insert_updates", Cause: err}
		}
	}
	return nil
}

func (g *pqGateway) insertUpdateBatchWithRetry(ctx context.Context, batch []PriceUpdate) error {
	err := g.insertUpdateBatch(ctx, batch)
	if err == nil {
		return nil
	}
	g.logger.WithError(err).Warningln("insert_updates chunk failed, retrying once")
	return g.insertUpdateBatch(ctx, batch)
}

func (g *pqGateway) insertUpdateBatch(ctx context.Context, batch []PriceUpdate) error {
	const cols = 9
	values := make([]interface{}, 0, len(batch)*cols)
	placeholders := make([]string, 0, len(batch))

	for i, u := range batch {
		base := i * cols
		ph := make([]string, cols)
		for j := 0; j < cols; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		values = append(values,
			u.ID, u.FeedID, u.InstanceID, string(u.Protocol),
			u.PreviousPrice, u.CurrentPrice, u.PriceChange, u.PriceChangePercent,
			u.Timestamp,
		)
	}

	query := fmt.Sprintf(`
INSERT INTO unified_price_updates
	(id, feed_id, instance_id, protocol, previous_price, current_price,
	 price_change, price_change_percent, timestamp)
VALUES %s
ON CONFLICT (id) DO NOTHING
`, strings.Join(placeholders, ","))

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if _, err := tx.ExecContext(ctx, query, values...); err != nil {
		return multierr.Append(errors.Wrap(err, "exec insert_updates"), tx.Rollback())
	}
	return errors.Wrap(tx.Commit(), "commit insert_updates")
}

func (g *pqGateway) ReadSyncState(ctx context.Context, instanceID string) (*SyncState, error) {
	row := g.db.QueryRowContext(ctx, `
SELECT instance_id, protocol, chain, last_processed_block, status, consecutive_failures,
       last_sync_at, last_sync_duration_ms, avg_sync_duration_ms, last_error, last_error_at, updated_at
FROM unified_sync_state WHERE instance_id = $1`, instanceID)

	var s SyncState
	var protocol string
	err := row.Scan(&s.InstanceID, &protocol, &s.Chain, &s.LastProcessedBlock, &s.Status,
		&s.ConsecutiveFailures, &s.LastSyncAt, &s.LastSyncDurationMs, &s.AvgSyncDurationMs,
		&s.LastError, &s.LastErrorAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.PersistenceError{Op: "read_sync_state", Cause: err}
	}
	s.Protocol = oracle.Protocol(protocol)
	return &s, nil
}

// UpsertSyncState writes the patch, setting avg_sync_duration_ms to the
// mean of the stored average and this tick's duration (an exponentially
// weighted average in which each older tick counts half as much).
func (g *pqGateway) UpsertSyncState(ctx context.Context, instanceID string, patch SyncStatePatch) error {
	defer metrics.ReportFuncTiming(g.svcTags)()

	existing, err := g.ReadSyncState(ctx, instanceID)
	if err != nil {
		return err
	}

	avg := patch.LastSyncDurationMs
	if existing != nil && existing.AvgSyncDurationMs > 0 {
		avg = (existing.AvgSyncDurationMs + patch.LastSyncDurationMs) / 2
	}

	_, err = g.db.ExecContext(ctx, `
INSERT INTO unified_sync_state
	(instance_id, protocol, chain, last_processed_block, status, consecutive_failures,
	 last_sync_at, last_sync_duration_ms, avg_sync_duration_ms, last_error, last_error_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (instance_id) DO UPDATE SET
	last_processed_block = EXCLUDED.last_processed_block,
	status = EXCLUDED.status,
	consecutive_failures = EXCLUDED.consecutive_failures,
	last_sync_at = EXCLUDED.last_sync_at,
	last_sync_duration_ms = EXCLUDED.last_sync_duration_ms,
	avg_sync_duration_ms = EXCLUDED.avg_sync_duration_ms,
	last_error = EXCLUDED.last_error,
	last_error_at = EXCLUDED.last_error_at,
	updated_at = EXCLUDED.updated_at
`, instanceID, string(patch.Protocol), patch.Chain, int64(patch.LastProcessedBlock), patch.Status,
		patch.ConsecutiveFailures, patch.LastSyncAt, patch.LastSyncDurationMs, avg,
		patch.LastError, patch.LastErrorAt, time.Now().UTC())
	if err != nil {
		metrics.ReportFuncError(g.svcTags)
		return &errs.PersistenceError{Op: "upsert_sync_state", Cause: err}
	}
	return nil
}

func (g *pqGateway) ListFeeds(ctx context.Context, filter FeedFilter) ([]StoredFeed, error) {
	query := `SELECT id, instance_id, protocol, chain, symbol, base_asset, quote_asset, price,
       price_raw, decimals, timestamp, block_number, confidence, sources, is_stale,
       staleness_seconds, updated_at FROM unified_price_feeds WHERE 1=1`
	args := []interface{}{}
	add := func(cond string, val interface{}) {
		args = append(args, val)
		query += fmt.Sprintf(" AND %s = $%d", cond, len(args))
	}
	if filter.Protocol != "" {
		add("protocol", string(filter.Protocol))
	}
	if filter.Chain != "" {
		add("chain", filter.Chain)
	}
	if filter.Symbol != "" {
		add("symbol", filter.Symbol)
	}
	if filter.InstanceID != "" {
		add("instance_id", filter.InstanceID)
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &errs.PersistenceError{Op: "list_feeds", Cause: err}
	}
	defer rows.Close()
	return scanStoredFeeds(rows)
}

func (g *pqGateway) QueryRecentFeeds(ctx context.Context, window RecentFeedsWindow) ([]StoredFeed, error) {
	cutoff := time.Now().Add(-window.Window).UTC()
	rows, err := g.db.QueryContext(ctx, `
SELECT id, instance_id, protocol, chain, symbol, base_asset, quote_asset, price,
       price_raw, decimals, timestamp, block_number, confidence, sources, is_stale,
       staleness_seconds, updated_at
FROM unified_price_feeds
WHERE symbol = $1 AND timestamp >= $2
ORDER BY timestamp DESC`, window.Symbol, cutoff)
	if err != nil {
		return nil, &errs.PersistenceError{Op: "query_recent_feeds", Cause: err}
	}
	defer rows.Close()
	return scanStoredFeeds(rows)
}

func scanStoredFeeds(rows *sql.Rows) ([]StoredFeed, error) {
	var out []StoredFeed
	for rows.Next() {
		var sf StoredFeed
		var protocol string
		var confidence *float64
		var sources pq.StringArray
		if err := rows.Scan(&sf.FeedID, &sf.InstanceID, &protocol, &sf.Chain, &sf.Symbol,
			&sf.BaseAsset, &sf.QuoteAsset, &sf.PriceFeed.Price, &sf.PriceRaw, &sf.Decimals,
			&sf.Timestamp, &sf.BlockNumber, &confidence, &sources, &sf.IsStale,
			&sf.StalenessSeconds, &sf.UpdatedAt); err != nil {
			return nil, &errs.PersistenceError{Op: "scan_feed_row", Cause: err}
		}
		sf.Protocol = oracle.Protocol(protocol)
		sf.Sources = sources
		out = append(out, sf)
	}
	return out, rows.Err()
}

func (g *pqGateway) ListEnabledInstances(ctx context.Context) ([]Instance, error) {
	rows, err := g.db.QueryContext(ctx, `
SELECT id, protocol, chain, enabled, protocol_config FROM unified_oracle_instances WHERE enabled = true`)
	if err != nil {
		return nil, &errs.PersistenceError{Op: "list_enabled_instances", Cause: err}
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		var inst Instance
		var protocol string
		var cfgJSON []byte
		if err := rows.Scan(&inst.InstanceID, &protocol, &inst.Chain, &inst.Enabled, &cfgJSON); err != nil {
			return nil, &errs.PersistenceError{Op: "scan_instance_row", Cause: err}
		}
		inst.Protocol = oracle.Protocol(protocol)
		if len(cfgJSON) > 0 {
			if err := json.Unmarshal(cfgJSON, &inst.ProtocolConfig); err != nil {
				return nil, &errs.PersistenceError{Op: "decode_instance_config", Cause: err}
			}
		}
		if v, ok := inst.ProtocolConfig["rpc_url"].(string); ok {
			inst.RPCURL = v
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// CleanupOldData deletes rows older than retention_days from feeds and
// updates tables for protocol, per spec §4.4 "Data retention: 90 days".
func (g *pqGateway) CleanupOldData(ctx context.Context, protocol oracle.Protocol, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UTC()

	if _, err := g.db.ExecContext(ctx,
		`DELETE FROM unified_price_feeds WHERE protocol = $1 AND timestamp < $2`,
		string(protocol), cutoff); err != nil {
		return &errs.PersistenceError{Op: "cleanup_feeds", Cause: err}
	}
	if _, err := g.db.ExecContext(ctx,
		`DELETE FROM unified_price_updates WHERE protocol = $1 AND timestamp < $2`,
		string(protocol), cutoff); err != nil {
		return &errs.PersistenceError{Op: "cleanup_updates", Cause: err}
	}
	return nil
}
