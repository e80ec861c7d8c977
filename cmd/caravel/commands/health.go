package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caravel-ops/caravel/pkg/health"
	"github.com/caravel-ops/caravel/pkg/pipeline"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the health report against the deployed target",
		Long: `Run the full health report without the rest of the pipeline.

Every check executes regardless of earlier failures, so the report shows
which layer is broken: connectivity, remote access, the container runtime,
the workloads, the HTTP surface or host resources. The command fails only
when more checks fail than pass.`,
		Example: `  # Check the current deployment
  caravel health

  # Machine-readable report
  caravel health --json`,
		Args: cobra.NoArgs,
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

			runner, err := newRunnerFactory(cfg)(st.TargetIP)
			if err != nil {
				return pipeline.NewUnreachableError(st.TargetIP, err)
			}
			defer runner.Close()

			checks := health.BuiltinChecks(health.Params{
				Target:       st.TargetIP,
				Runner:       runner,
				Service:      cfg.App.Service,
				MinWorkloads: cfg.Health.MinWorkloads,
				HTTPPort:     cfg.Health.HTTPPort,
				LivenessURL:  fmt.Sprintf("http://%s:%d%s", st.TargetIP, cfg.Health.LivenessPort, cfg.Health.LivenessPath),
				Mount:        cfg.Health.Mount,
			})

			report := health.NewAggregator(st.TargetIP, checks).Run(ctx)

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printReport(report)
			}

			if report.PredominantlyFailing() {
				return pipeline.NewUnreachableError(st.TargetIP,
					fmt.Errorf("health report predominantly failing: %d of %d checks failed",
						report.Failed, len(report.Results)))
			}
			return nil
		},
	}
}

// printReport renders the health report for a human operator.
func printReport(report *health.Report) {
	fmt.Printf("Health report for %s: %d passed, %d failed\n", report.Target, report.Passed, report.Failed)
	for _, result := range report.Results {
		mark := "ok  "
		if !result.Passed {
			mark = "FAIL"
		}
		fmt.Printf("  [%s] %-18s %s\n", mark, result.Check, result.Detail)
	}
}
