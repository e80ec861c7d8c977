package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caravel-ops/caravel/pkg/backup"
	"github.com/caravel-ops/caravel/pkg/stores"
)

func newBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage snapshots of remote application state",
		Long: `Create and list timestamped snapshots of the deployed application state.

A snapshot archives the configured application paths on the target,
retrieves the archive and uploads it to object storage. Snapshot IDs are
creation timestamps, so listings are chronological. Expiry is owned by the
bucket lifecycle rule installed at provision time; caravel never deletes
snapshots itself.`,
	}

	cmd.AddCommand(newBackupCreateCommand())
	cmd.AddCommand(newBackupListCommand())

	return cmd
}

func newBackupCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a snapshot of the deployed application state",
		Example: `  # Snapshot the current application state
  caravel backup create`,
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

			manager := backup.NewManager(cfg, newStateStore(cfg), store, newRunnerFactory(cfg))

			history, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			runID, err := history.StartRun(ctx, stores.OperationBackup)
			if err != nil {
				return err
			}

			metrics := newMetrics(cfg)
			start := time.Now()

			snap, createErr := manager.Create(ctx)

			recordOutcome(ctx, history, runID, snap, createErr)
			if createErr == nil {
				metrics.ObserveBackup()
			}
			metrics.ObserveRunDuration("backup", time.Since(start))
			metrics.Push("caravel_backup")

			if createErr != nil {
				return createErr
			}

			if jsonOutput {
				return printJSON(snap)
			}
			fmt.Printf("Snapshot %s created: s3://%s/%s\n", snap.ID, snap.Bucket, snap.Key)
			return nil
		},
	}
}

func newBackupListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := newStateStore(cfg).Load()
			if err != nil {
				return err
			}

			store, err := newObjectStore(cfg)
			if err != nil {
				return err
			}

			bucket := backup.BucketName(cfg, st)
			snapshots, err := backup.ListSnapshots(ctx, store, bucket, cfg.App.Name)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(snapshots)
			}

			if len(snapshots) == 0 {
				fmt.Printf("No snapshots for %s in bucket %s\n", cfg.App.Name, bucket)
				return nil
			}
			for _, snap := range snapshots {
				fmt.Printf("  %s  %s\n", snap.ID, snap.Key)
			}
			return nil
		},
	}
}
