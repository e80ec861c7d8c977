package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/caravel-ops/caravel/cmd/caravel/commands"
	"github.com/caravel-ops/caravel/pkg/pipeline"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		// An operator decline is a clean exit, not a failure.
		if errors.Is(err, pipeline.ErrOperatorAbort) {
			os.Exit(0)
		}
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}
