package main

import cli "github.com/jawher/mow.cli"

// initGlobalOptions defines CLI options useful across every command, per
// the teacher's "before adding option here, consider moving it into the
// actual Cmd" convention.
func initGlobalOptions(
	envName **string,
	appLogLevel **string,
) {
	*envName = app.String(cli.StringOpt{
		Name:   "e env",
		Desc:   "The environment name this app runs in. Used for metrics and error reporting.",
		EnvVar: "AGGREGATOR_ENV",
		Value:  "local",
	})

	*appLogLevel = app.String(cli.StringOpt{
		Name:   "l log-level",
		Desc:   "Available levels: error, warn, info, debug.",
		EnvVar: "AGGREGATOR_LOG_LEVEL",
		Value:  "info",
	})
}

// initDBOptions sets options for the Postgres connection backing the
// PersistenceGateway and alert store, per spec §6.
func initDBOptions(
	cmd *cli.Cmd,
	dbDSN **string,
) {
	*dbDSN = cmd.String(cli.StringOpt{
		Name:   "db-dsn",
		Desc:   "Postgres connection string (lib/pq DSN).",
		EnvVar: "AGGREGATOR_DB_DSN",
		Value:  "postgres://localhost:5432/oracle_aggregator?sslmode=disable",
	})
}

// initRedisOptions sets options for the Redis-backed kv.Store behind the
// AlertRule and Incident blob stores, per spec §6.
func initRedisOptions(
	cmd *cli.Cmd,
	redisAddr **string,
	redisPassword **string,
	redisDB **int,
) {
	*redisAddr = cmd.String(cli.StringOpt{
		Name:   "redis-addr",
		Desc:   "Redis address for the AlertRule/Incident blob stores.",
		EnvVar: "AGGREGATOR_REDIS_ADDR",
		Value:  "localhost:6379",
	})

	*redisPassword = cmd.String(cli.StringOpt{
		Name:   "redis-password",
		Desc:   "Redis AUTH password, if required.",
		EnvVar: "AGGREGATOR_REDIS_PASSWORD",
		Value:  "",
	})

	*redisDB = cmd.Int(cli.IntOpt{
		Name:   "redis-db",
		Desc:   "Redis logical database index.",
		EnvVar: "AGGREGATOR_REDIS_DB",
		Value:  0,
	})
}

// initInstancesOptions locates the TOML instance config directory, one
// file per SyncInstance, following the teacher's ORACLE_DYNAMIC_FEEDS_DIR
// directory-of-TOML-files convention.
func initInstancesOptions(
	cmd *cli.Cmd,
	instancesDir **string,
) {
	*instancesDir = cmd.String(cli.StringOpt{
		Name:   "instances-dir",
		Desc:   "Path to per-instance configuration files in TOML format.",
		EnvVar: "AGGREGATOR_INSTANCES_DIR",
		Value:  "",
	})
}

// initAlertOptions sets options for the alert notification transport and
// the symbol universe the Aggregator and AlertEvaluator operate over.
func initAlertOptions(
	cmd *cli.Cmd,
	alertWebhookURL **string,
	symbols **string,
) {
	*alertWebhookURL = cmd.String(cli.StringOpt{
		Name:   "alert-webhook-url",
		Desc:   "External URL notifications are POSTed to. Leave empty to disable.",
		EnvVar: "ALERT_WEBHOOK_URL",
		Value:  "",
	})

	*symbols = cmd.String(cli.StringOpt{
		Name:   "symbols",
		Desc:   "Comma-separated list of symbols the Aggregator cross-chain-aggregates.",
		EnvVar: "AGGREGATOR_SYMBOLS",
		Value:  "BTC/USD,ETH/USD",
	})
}

// initAuditOptions sets options for the AuditBuffer's async persistence
// target, per spec §9 environment variables.
func initAuditOptions(
	cmd *cli.Cmd,
	analyticsEndpoint **string,
) {
	*analyticsEndpoint = cmd.String(cli.StringOpt{
		Name:   "analytics-endpoint",
		Desc:   "Base URL audit batches are POSTed to at <endpoint>/api/audit/batch. Empty disables persistence.",
		EnvVar: "INSIGHT_ANALYTICS_ENDPOINT",
		Value:  "",
	})
}

// initStatsdOptions sets options for StatsD metrics, following the
// teacher's flag/env naming exactly except for the env var prefix.
func initStatsdOptions(
	cmd *cli.Cmd,
	statsdPrefix **string,
	statsdAddr **string,
	statsdStuckDur **string,
	statsdMocking **string,
	statsdDisabled **string,
) {
	*statsdPrefix = cmd.String(cli.StringOpt{
		Name:   "statsd-prefix",
		Desc:   "Specify StatsD compatible metrics prefix.",
		EnvVar: "AGGREGATOR_STATSD_PREFIX",
		Value:  "oracle_aggregator",
	})

	*statsdAddr = cmd.String(cli.StringOpt{
		Name:   "statsd-addr",
		Desc:   "UDP address of a StatsD compatible metrics aggregator.",
		EnvVar: "AGGREGATOR_STATSD_ADDR",
		Value:  "localhost:8125",
	})

	*statsdStuckDur = cmd.String(cli.StringOpt{
		Name:   "statsd-stuck-func",
		Desc:   "Sets a duration to consider a function to be stuck (e.g. in deadlock).",
		EnvVar: "AGGREGATOR_STATSD_STUCK_DUR",
		Value:  "5m",
	})

	*statsdMocking = cmd.String(cli.StringOpt{
		Name:   "statsd-mocking",
		Desc:   "If enabled replaces statsd client with a mock one that simply logs values.",
		EnvVar: "AGGREGATOR_STATSD_MOCKING",
		Value:  "false",
	})

	*statsdDisabled = cmd.String(cli.StringOpt{
		Name:   "statsd-disabled",
		Desc:   "Force disabling statsd reporting completely.",
		EnvVar: "AGGREGATOR_STATSD_DISABLED",
		Value:  "true",
	})
}
