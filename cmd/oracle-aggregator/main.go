package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/InjectiveLabs/suplog"
	cli "github.com/jawher/mow.cli"

	"github.com/InjectiveLabs/oracle-aggregator/version"
)

var app = cli.App("oracle-aggregator", "Multi-protocol price oracle aggregation engine.")

var (
	envName     *string
	appLogLevel *string
)

func panicIf(err error, msg ...interface{}) {
	if err != nil {
		log.WithError(err).Errorln(msg...)
		panic(err)
	}
}

func main() {
	readEnv()
	initGlobalOptions(
		&envName,
		&appLogLevel,
	)

	app.Before = func() {
		log.DefaultLogger.SetLevel(logLevel(*appLogLevel))
	}

	app.Command("start", "Starts the aggregation engine.", startCmd)
	app.Command("version", "Print the version information and exit.", versionCmd)

	_ = app.Run(os.Args)
}

func versionCmd(c *cli.Cmd) {
	c.Action = func() {
		fmt.Println(version.Version())
	}
}

// readEnv loads a local .env file into the process environment before any
// CLI option is read, mirroring the teacher's pre-flag env bootstrap. A
// missing .env is not an error: CLI flags and the real environment still
// apply.
func readEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Debugln(".env file not loaded")
	}
}

// logLevel maps the AGGREGATOR_LOG_LEVEL string option to a suplog
// level, defaulting to Info for anything unrecognized.
func logLevel(s string) log.Level {
	switch s {
	case "error":
		return log.ErrorLevel
	case "warn", "warning":
		return log.WarnLevel
	case "debug":
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}
