package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caravel-ops/caravel/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "caravel",
		Short: "Caravel - Deployment Lifecycle Orchestrator",
		Long: `Caravel orchestrates the full lifecycle of a single-host application
deployment: provisioning the infrastructure, configuring the host,
rolling out the application and verifying its health.

Features:
  - Four-phase pipeline with resumable ranges (provision, configure, deploy, verify)
  - Timestamped snapshots of remote application state in object storage
  - Non-destructive rollback: the replaced state is archived, never deleted
  - Aggregated health report across connectivity, runtime and resource checks
  - Local run history for auditing past operations`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			telemetry.SetupLogging(verbose)
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "project file path (default caravel.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newBackupCommand())
	rootCmd.AddCommand(newRollbackCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newStateCommand())

	return rootCmd
}
