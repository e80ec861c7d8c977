// Package telemetry carries the observability concerns of the CLI:
// structured logging setup and the optional one-shot run metrics push.
package telemetry

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging configures the global zerolog logger for console output on
// stderr. verbose lowers the level to debug.
func SetupLogging(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level := zerolog.InfoLevel
	switch os.Getenv("LOG_LEVEL") {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// ComponentLogger returns a child logger tagged with a component field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
