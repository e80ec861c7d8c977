package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/caravel-ops/caravel/pkg/engines"
	"github.com/caravel-ops/caravel/pkg/health"
	"github.com/caravel-ops/caravel/pkg/pipeline"
	"github.com/caravel-ops/caravel/pkg/prompt"
	"github.com/caravel-ops/caravel/pkg/stores"
	"github.com/caravel-ops/caravel/pkg/transports/ssh"
)

func newDeployCommand() *cobra.Command {
	var (
		start     int
		end       int
		step      int
		assumeYes bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the deployment pipeline",
		Long: `Execute the four-phase deployment pipeline, or a contiguous subset of it.

Phases:
  1. provision  - allocate the target infrastructure
  2. configure  - install and configure software on the target
  3. deploy     - roll out the application workload
  4. verify     - run the health report against the target

A failed phase stops the run and leaves the persisted state at the last
completed phase, so the run can be resumed with --start set to the failed
phase. Phase 1 asks for confirmation before touching billed resources.`,
		Example: `  # Full pipeline
  caravel deploy

  # Resume from the configure phase
  caravel deploy --start 2

  # Re-run a single phase
  caravel deploy --step 4

  # Unattended full run
  caravel deploy --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("step") {
				if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
					return pipeline.NewInvalidSelectionError("--step cannot be combined with --start or --end")
				}
				start, end = step, step
			}
			r := pipeline.StepRange{Start: pipeline.Step(start), End: pipeline.Step(end)}

			return runDeploy(cmd, r, assumeYes)
		},
	}

	cmd.Flags().IntVar(&start, "start", pipeline.MinStep, "first phase to execute (1-4)")
	cmd.Flags().IntVar(&end, "end", pipeline.MaxStep, "last phase to execute (1-4)")
	cmd.Flags().IntVar(&step, "step", 0, "run exactly one phase (1-4)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to the provisioning confirmation")

	return cmd
}

// runDeploy wires the pipeline and executes the requested range.
func runDeploy(cmd *cobra.Command, r pipeline.StepRange, assumeYes bool) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	states := newStateStore(cfg)
	newRunner := newRunnerFactory(cfg)

	provisioner := engines.NewTerraformProvisioner(cfg.Provisioner.Binary, cfg.Provisioner.WorkDir)
	configurer := engines.NewAnsibleConfigurer(
		cfg.Configurer.Binary, cfg.Configurer.WorkDir,
		cfg.Configurer.SitePlaybook, cfg.Configurer.DeployPlaybook)

	// The retention rule is installed once at provision time, so object
	// storage is only required when phase 1 is in range.
	var retention pipeline.RetentionSetter
	if r.Contains(pipeline.StepProvision) {
		store, err := newObjectStore(cfg)
		if err != nil {
			return pipeline.NewPrerequisiteError(err.Error(), nil)
		}
		retention = store
	}

	newChecks := func(target string, runner ssh.Runner) []health.Check {
		return health.BuiltinChecks(health.Params{
			Target:       target,
			Runner:       runner,
			Service:      cfg.App.Service,
			MinWorkloads: cfg.Health.MinWorkloads,
			HTTPPort:     cfg.Health.HTTPPort,
			LivenessURL:  fmt.Sprintf("http://%s:%d%s", target, cfg.Health.LivenessPort, cfg.Health.LivenessPath),
			Mount:        cfg.Health.Mount,
		})
	}

	executor := pipeline.NewStepExecutor(cfg, states, provisioner, configurer, retention, newRunner, newChecks)
	prereqs := pipeline.NewPrerequisiteChecker(cfg, states)

	var prompter prompt.Prompter = prompt.NewTerminal(os.Stdin, os.Stdout)
	if assumeYes {
		prompter = autoApprove{}
	}

	controller := pipeline.NewController(executor, prereqs, states, prompter)

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	runID, err := history.StartRun(ctx, stores.OperationPipeline)
	if err != nil {
		return err
	}

	metrics := newMetrics(cfg)
	runStart := time.Now()

	summary, runErr := controller.Run(ctx, r)

	recordOutcome(ctx, history, runID, summary, runErr)
	recordStepEvents(ctx, history, runID, summary)
	for _, rec := range summary.Steps {
		if rec.Status == pipeline.StepStatusExecuted || rec.Status == pipeline.StepStatusFailed {
			metrics.ObservePhase(rec.Step.String(), string(rec.Status))
		}
	}
	metrics.ObserveRunDuration("deploy", time.Since(runStart))
	metrics.Push("caravel_deploy")

	if jsonOutput {
		if err := printJSON(summary); err != nil {
			return err
		}
		return runErr
	}

	printSummary(summary)
	return runErr
}

// printSummary renders the run summary for a human operator.
func printSummary(summary *pipeline.RunSummary) {
	fmt.Printf("Pipeline run (%s): %s\n", summary.Range, summary.Outcome)
	for _, rec := range summary.Steps {
		switch rec.Status {
		case pipeline.StepStatusExecuted:
			fmt.Printf("  %d. %-10s %s (%s)\n", int(rec.Step), rec.Step, rec.Status, rec.Duration.Round(time.Millisecond))
		case pipeline.StepStatusFailed:
			fmt.Printf("  %d. %-10s %s: %s\n", int(rec.Step), rec.Step, rec.Status, rec.Error)
		default:
			fmt.Printf("  %d. %-10s %s\n", int(rec.Step), rec.Step, rec.Status)
		}
	}
	if summary.Report != nil {
		printReport(summary.Report)
	}
	if summary.Outcome == pipeline.OutcomeFailed && summary.FailedStep != 0 {
		fmt.Printf("Resume with: caravel deploy --start %d\n", int(summary.FailedStep))
	}
}

// autoApprove is the --yes prompter: every confirmation passes, selections
// are unavailable.
type autoApprove struct{}

func (autoApprove) Confirm(string) (bool, error) { return true, nil }

func (autoApprove) Select(string, int) (int, error) {
	return 0, fmt.Errorf("interactive selection is not available with --yes")
}
