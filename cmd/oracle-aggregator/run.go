package main

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/xlab/closer"

	cli "github.com/jawher/mow.cli"

	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/kv"
	"github.com/InjectiveLabs/oracle-aggregator/internal/notify"
	"github.com/InjectiveLabs/oracle-aggregator/internal/service/aggregate"
	"github.com/InjectiveLabs/oracle-aggregator/internal/service/alert"
	"github.com/InjectiveLabs/oracle-aggregator/internal/service/audit"
	"github.com/InjectiveLabs/oracle-aggregator/internal/service/health"
	"github.com/InjectiveLabs/oracle-aggregator/internal/service/incident"
	syncsvc "github.com/InjectiveLabs/oracle-aggregator/internal/service/sync"
	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

// startCmd wires C1..C9 and runs until the process receives a shutdown
// signal, following the teacher's oracleCmd action shape: CLI option
// wiring, then business-logic wiring, then closer.Bind/closer.Hold.
func startCmd(cmd *cli.Cmd) {
	var (
		dbDSN            *string
		redisAddr        *string
		redisPassword    *string
		redisDB          *int
		instancesDir     *string
		alertWebhookURL  *string
		symbolsCSV       *string
		analyticsEndpoint *string
		statsdPrefix     *string
		statsdAddr       *string
		statsdStuckDur   *string
		statsdMocking    *string
		statsdDisabled   *string
	)

	initDBOptions(cmd, &dbDSN)
	initRedisOptions(cmd, &redisAddr, &redisPassword, &redisDB)
	initInstancesOptions(cmd, &instancesDir)
	initAlertOptions(cmd, &alertWebhookURL, &symbolsCSV)
	initAuditOptions(cmd, &analyticsEndpoint)
	initStatsdOptions(cmd, &statsdPrefix, &statsdAddr, &statsdStuckDur, &statsdMocking, &statsdDisabled)

	cmd.Action = func() {
		defer closer.Close()

		startMetricsGathering(statsdPrefix, statsdAddr, statsdStuckDur, statsdMocking, statsdDisabled)

		db, err := sql.Open("postgres", *dbDSN)
		panicIf(err, "failed to open database connection")
		if err := db.Ping(); err != nil {
			log.WithError(err).Warningln("database ping failed, continuing: will retry on first query")
		}
		closer.Bind(func() { _ = db.Close() })

		if _, err := db.Exec(persistence.Schema); err != nil {
			log.WithError(err).Warningln("failed to apply embedded schema, assuming it is managed externally")
		}

		gw := persistence.NewGateway(db)

		redisClient := redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: *redisPassword,
			DB:       *redisDB,
		})
		closer.Bind(func() { _ = redisClient.Close() })
		store := kv.NewRedisStore(redisClient)

		ab := audit.New(*analyticsEndpoint)
		closer.Bind(func() { ab.Close() })

		var catalog syncsvc.Catalog
		if len(*instancesDir) > 0 {
			catalog = syncsvc.NewTOMLCatalog(*instancesDir)
		} else {
			catalog = syncsvc.NewCatalog(gw)
		}

		orchestrator := syncsvc.NewOrchestrator(catalog, gw, ab)
		if err := orchestrator.StartAll(context.Background()); err != nil {
			log.WithError(err).Warningln("one or more instances were skipped at startup")
		}
		closer.Bind(func() { orchestrator.StopAll() })

		symbols := splitCSV(*symbolsCSV)
		aggregator := aggregate.New(gw, symbols)
		aggregator.Start(context.Background(), aggregate.DefaultWindow)
		closer.Bind(func() { aggregator.Stop() })

		ruleStore := alert.NewRuleStore(store)
		alertStore := alert.NewStore(db)

		var sender notify.Sender = notify.NoopSender{}
		if len(*alertWebhookURL) > 0 {
			sender = notify.NewWebhookSender(*alertWebhookURL)
		}

		candidateSources := alert.Sources{
			Gateway:      gw,
			Orchestrator: orchestrator,
			Aggregator:   aggregator,
			Symbols:      symbols,
		}
		evaluator := alert.NewEvaluator(ruleStore, alertStore, candidateSources.BuildCandidates, sender, ab)
		evaluator.Start(context.Background())
		closer.Bind(func() { evaluator.Stop() })

		incidentStore := incident.NewStore(store)
		healthChecker := health.NewChecker(orchestrator, ab)
		go reportHealthPeriodically(healthChecker, incidentStore)

		log.Infoln("oracle-aggregator started")
		closer.Hold()
	}
}

// reportHealthPeriodically logs a health snapshot on a fixed interval,
// standing in for the external health-check surface this engine doesn't
// expose over HTTP in this scope.
func reportHealthPeriodically(checker *health.Checker, incidents *incident.Store) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ctx := context.Background()
		report := checker.Check(ctx)

		openIncidents := 0
		if all, err := incidents.List(ctx); err == nil {
			for _, in := range all {
				if in.Status != incident.StatusResolved {
					openIncidents++
				}
			}
		}

		log.WithFields(log.Fields{
			"active_instances": len(report.Sync.Instances),
			"audit_len":        report.AuditLen,
			"audit_queue":      report.AuditQueue,
			"open_incidents":   openIncidents,
		}).Infoln("health snapshot")
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
