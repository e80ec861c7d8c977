package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/caravel-ops/caravel/pkg/backup"
	"github.com/caravel-ops/caravel/pkg/pipeline"
	"github.com/caravel-ops/caravel/pkg/prompt"
	"github.com/caravel-ops/caravel/pkg/stores"
)

func newRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Restore a snapshot over the current application state",
		Long: `Restore a previously created snapshot onto the target.

The current application tree is moved aside before the snapshot is
extracted, never deleted: the pre-rollback state stays on the target under
a timestamped archive path for manual recovery. The rollback is
interactive; the snapshot is picked from a chronological listing and the
restore must be confirmed.`,
		Example: `  # Pick and restore a snapshot
  caravel rollback`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := newObjectStore(cfg)
			if err != nil {
				return err
			}

			manager := backup.NewRollbackManager(
				cfg, newStateStore(cfg), store, newRunnerFactory(cfg),
				prompt.NewTerminal(os.Stdin, os.Stdout))

			history, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			runID, err := history.StartRun(ctx, stores.OperationRollback)
			if err != nil {
				return err
			}

			metrics := newMetrics(cfg)
			start := time.Now()

			result, restoreErr := manager.Run(ctx)

			recordOutcome(ctx, history, runID, result, restoreErr)
			switch {
			case restoreErr == nil:
				metrics.ObserveRestore("succeeded")
			case pipeline.IsDegradedRestore(restoreErr):
				metrics.ObserveRestore("degraded")
			default:
				metrics.ObserveRestore("failed")
			}
			metrics.ObserveRunDuration("rollback", time.Since(start))
			metrics.Push("caravel_rollback")

			// A degraded restore still produced a result; surface the
			// recovery path before the error.
			if result != nil && !jsonOutput {
				fmt.Printf("Restored snapshot %s; previous state archived at %s\n",
					result.Snapshot.ID, result.ArchivePath)
			}
			if restoreErr != nil {
				return restoreErr
			}
			if jsonOutput {
				return printJSON(result)
			}
			return nil
		},
	}
}
