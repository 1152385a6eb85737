package persistence

// Schema is the embedded DDL for the tables in spec §6. The start command
// applies it at startup (CREATE TABLE IF NOT EXISTS); a failure there is
// logged and startup continues, assuming externally managed tables.
const Schema = `
CREATE TABLE IF NOT EXISTS unified_oracle_instances (
	id TEXT PRIMARY KEY,
	protocol TEXT NOT NULL,
	chain TEXT NOT NULL,
	enabled BOOL NOT NULL DEFAULT true,
	config JSONB,
	protocol_config JSONB
);

CREATE TABLE IF NOT EXISTS unified_price_feeds (
	id TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL,
	protocol TEXT NOT NULL,
	chain TEXT NOT NULL,
	symbol TEXT NOT NULL,
	base_asset TEXT,
	quote_asset TEXT,
	price DOUBLE PRECISION,
	price_raw TEXT,
	decimals SMALLINT,
	timestamp TIMESTAMPTZ,
	block_number BIGINT,
	confidence DOUBLE PRECISION,
	sources TEXT[],
	is_stale BOOL,
	staleness_seconds INT,
	tx_hash TEXT,
	log_index INT,
	updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS unified_price_updates (
	id TEXT PRIMARY KEY,
	feed_id TEXT NOT NULL,
	instance_id TEXT NOT NULL,
	protocol TEXT NOT NULL,
	previous_price DOUBLE PRECISION,
	current_price DOUBLE PRECISION,
	price_change DOUBLE PRECISION,
	price_change_percent DOUBLE PRECISION,
	timestamp TIMESTAMPTZ,
	block_number BIGINT
);

CREATE TABLE IF NOT EXISTS unified_sync_state (
	instance_id TEXT PRIMARY KEY,
	protocol TEXT NOT NULL,
	chain TEXT NOT NULL,
	last_processed_block BIGINT,
	status TEXT,
	consecutive_failures INT,
	last_sync_at TIMESTAMPTZ,
	last_sync_duration_ms INT,
	avg_sync_duration_ms INT,
	last_error TEXT,
	last_error_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS unified_alert_rules (
	id TEXT PRIMARY KEY,
	name TEXT,
	enabled BOOL,
	event TEXT,
	severity TEXT,
	protocols TEXT[],
	chains TEXT[],
	instances TEXT[],
	symbols TEXT[],
	params JSONB,
	channels TEXT[],
	cooldown_minutes INT,
	max_notifications_per_hour INT,
	created_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS unified_alerts (
	id TEXT PRIMARY KEY,
	rule_id TEXT,
	event TEXT,
	severity TEXT,
	title TEXT,
	message TEXT,
	protocol TEXT,
	chain TEXT,
	instance_id TEXT,
	symbol TEXT,
	context JSONB,
	status TEXT,
	acknowledged_by TEXT,
	acknowledged_at TIMESTAMPTZ,
	resolved_by TEXT,
	resolved_at TIMESTAMPTZ,
	occurrences INT,
	first_seen_at TIMESTAMPTZ,
	last_seen_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ,
	fingerprint TEXT,
	UNIQUE(rule_id, event, protocol, chain, symbol, created_at)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	actor TEXT,
	action TEXT,
	entity_type TEXT,
	entity_id TEXT,
	details JSONB,
	created_at TIMESTAMPTZ
);
`
