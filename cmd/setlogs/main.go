// Command setlogs runs the workout log API and its maintenance tasks.
//
//	setlogs serve     HTTP API, idempotency reaper and event subscribers
//	setlogs migrate   create or update the schema
//	setlogs reap      purge idempotency records past retention once
//	setlogs seed      load a YAML fixture through the services
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("setlogs failed")
		os.Exit(1)
	}
}
