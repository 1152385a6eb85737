package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/InjectiveLabs/suplog"
	"github.com/xlab/closer"

	"github.com/InjectiveLabs/metrics"
)

// startMetricsGathering initializes the metrics client, unless globally
// disabled by config, following the teacher's retry-until-connected loop.
func startMetricsGathering(
	statsdPrefix *string,
	statsdAddr *string,
	statsdStuckDur *string,
	statsdMocking *string,
	statsdDisabled *string,
) {
	if toBool(*statsdDisabled) {
		metrics.Disable()
		return
	}

	go func() {
		for {
			hostname, _ := os.Hostname()
			err := metrics.Init(*statsdAddr, checkStatsdPrefix(*statsdPrefix), &metrics.StatterConfig{
				EnvName:              *envName,
				HostName:             hostname,
				StuckFunctionTimeout: duration(*statsdStuckDur, 30*time.Minute),
				MockingEnabled:       toBool(*statsdMocking) || *envName == "local",
			})
			if err != nil {
				log.WithError(err).Warningln("metrics init failed, will retry in 1 min")
				time.Sleep(time.Minute)
				continue
			}
			break
		}

		closer.Bind(func() {
			metrics.Close()
		})
	}()
}

// toBool parses a CLI/env boolean flag, defaulting to false for anything
// that doesn't parse.
func toBool(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}

// duration parses a Go duration string, falling back to def when s is
// empty or malformed.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// checkStatsdPrefix strips a trailing dot so StatsD doesn't double it up
// when joining prefix and metric name.
func checkStatsdPrefix(prefix string) string {
	return strings.TrimSuffix(prefix, ".")
}
