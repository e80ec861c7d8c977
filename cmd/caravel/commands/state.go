package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caravel-ops/caravel/pkg/pipeline"
	"github.com/caravel-ops/caravel/pkg/stores"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect pipeline state and run history",
	}

	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateHistoryCommand())

	return cmd
}

func newStateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the persisted pipeline state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := newStateStore(cfg).Load()
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(st)
			}

			fmt.Printf("Target:              %s\n", st.TargetIP)
			fmt.Printf("Instance:            %s\n", st.InstanceID)
			fmt.Printf("Snapshot bucket:     %s\n", st.BucketName)
			fmt.Printf("Last completed step: %d", st.LastCompletedStep)
			if st.LastCompletedStep >= pipeline.MinStep && st.LastCompletedStep <= pipeline.MaxStep {
				fmt.Printf(" (%s)", pipeline.Step(st.LastCompletedStep))
			}
			fmt.Println()
			fmt.Printf("Updated:             %s\n", st.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newStateHistoryCommand() *cobra.Command {
	var (
		limit      int
		showEvents bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent operation runs, newest first",
		Long: `List recent operation runs, or inspect one run by ID.

Pipeline runs record one event per phase that executed or failed;
--events (or naming a run ID) includes them in the output.`,
		Example: `  # Recent runs
  caravel state history

  # Recent runs with their per-phase events
  caravel state history --events

  # One run in full
  caravel state history 4f7c2e1a-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			history, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			if len(args) == 1 {
				return showRun(ctx, history, args[0])
			}

			runs, err := history.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				if !showEvents {
					return printJSON(runs)
				}
				detailed := make([]runWithEvents, 0, len(runs))
				for _, run := range runs {
					events, err := history.ListEvents(ctx, run.ID)
					if err != nil {
						return err
					}
					detailed = append(detailed, runWithEvents{OperationRun: run, Events: events})
				}
				return printJSON(detailed)
			}

			if len(runs) == 0 {
				fmt.Println("No recorded runs")
				return nil
			}
			for _, run := range runs {
				printRunLine(run)
				if showEvents {
					events, err := history.ListEvents(ctx, run.ID)
					if err != nil {
						return err
					}
					printEvents(events)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&showEvents, "events", false, "include each run's recorded events")

	return cmd
}

// runWithEvents is the detailed history view of one run.
type runWithEvents struct {
	stores.OperationRun
	Events []stores.Event `json:"events,omitempty"`
}

// showRun prints a single run together with its events.
func showRun(ctx context.Context, history *stores.HistoryStore, runID string) error {
	run, err := history.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	events, err := history.ListEvents(ctx, runID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(runWithEvents{OperationRun: *run, Events: events})
	}

	printRunLine(*run)
	printEvents(events)
	return nil
}

func printRunLine(run stores.OperationRun) {
	line := fmt.Sprintf("  %s  %-8s  %-9s  %s",
		run.StartedAt.Format(time.RFC3339), run.Kind, run.Status, run.ID)
	if run.Error != nil {
		line += "  " + *run.Error
	}
	fmt.Println(line)
}

func printEvents(events []stores.Event) {
	for _, ev := range events {
		fmt.Printf("      %s  %-5s  %s\n", ev.Timestamp.Format(time.RFC3339), ev.Level, ev.Message)
	}
}
