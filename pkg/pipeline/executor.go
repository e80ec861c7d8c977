package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/caravel-ops/caravel/pkg/config"
	"github.com/caravel-ops/caravel/pkg/engines"
	"github.com/caravel-ops/caravel/pkg/health"
	"github.com/caravel-ops/caravel/pkg/state"
	"github.com/caravel-ops/caravel/pkg/telemetry"
	"github.com/caravel-ops/caravel/pkg/transports/ssh"
)

// RetentionSetter installs the snapshot retention rule on the bucket. Done
// once at provisioning time; the core never expires snapshots itself.
type RetentionSetter interface {
	EnsureRetention(ctx context.Context, bucket string) error
}

// RunnerFactory builds a remote runner for a target address.
type RunnerFactory func(target string) (ssh.Runner, error)

// ChecksFactory builds the health check list for a target. Injected so the
// verify phase can be exercised without a live host.
type ChecksFactory func(target string, runner ssh.Runner) []health.Check

// StepExecutor executes exactly one pipeline phase, converting external
// collaborator failures into the orchestration error taxonomy.
type StepExecutor struct {
	cfg         *config.Config
	states      *state.Store
	provisioner engines.Provisioner
	configurer  engines.Configurer
	retention   RetentionSetter
	newRunner   RunnerFactory
	newChecks   ChecksFactory
	log         zerolog.Logger

	// sleep is injectable so tests do not wait out the settle interval.
	sleep func(time.Duration)
}

// NewStepExecutor wires the executor with its collaborators. retention may
// be nil when no object storage is reachable at provision time.
func NewStepExecutor(
	cfg *config.Config,
	states *state.Store,
	provisioner engines.Provisioner,
	configurer engines.Configurer,
	retention RetentionSetter,
	newRunner RunnerFactory,
	newChecks ChecksFactory,
) *StepExecutor {
	return &StepExecutor{
		cfg:         cfg,
		states:      states,
		provisioner: provisioner,
		configurer:  configurer,
		retention:   retention,
		newRunner:   newRunner,
		newChecks:   newChecks,
		log:         telemetry.ComponentLogger("pipeline"),
		sleep:       time.Sleep,
	}
}

// Execute runs one phase against the current state. st is the write target
// for provision and read-only afterwards. The returned report is non-nil
// only for the verify phase.
func (e *StepExecutor) Execute(ctx context.Context, step Step, st *state.PipelineState) (*health.Report, error) {
	switch step {
	case StepProvision:
		return nil, e.provision(ctx, st)
	case StepConfigure:
		return nil, e.configure(ctx, st)
	case StepDeploy:
		return nil, e.deploy(ctx, st)
	case StepVerify:
		return e.verify(ctx, st)
	default:
		return nil, fmt.Errorf("unknown step %d", int(step))
	}
}

// provision invokes the provisioning engine, persists the resulting facts
// and waits out the settle interval so phases 2-3 do not contact a host
// that is still booting.
func (e *StepExecutor) provision(ctx context.Context, st *state.PipelineState) error {
	outputs, err := e.provisioner.Provision(ctx)
	if err != nil {
		return NewExternalToolError("provision", "provisioning engine failed", err).WithPhase(StepProvision)
	}

	st.TargetIP = outputs.PublicIP
	st.InstanceID = outputs.InstanceID
	st.BucketName = outputs.BucketName
	// Not every engine definition exports a bucket; the project file
	// names one for that case.
	if st.BucketName == "" {
		st.BucketName = e.cfg.Backup.Bucket
	}
	// Fresh infrastructure restarts pipeline progress.
	st.LastCompletedStep = 0

	if err := e.states.Save(st); err != nil {
		return fmt.Errorf("persist pipeline state: %w", err)
	}

	if _, err := e.states.WriteInventory(state.InventoryParams{
		Host:           st.TargetIP,
		User:           e.cfg.Target.User,
		PrivateKeyPath: e.cfg.Target.PrivateKeyPath,
	}); err != nil {
		return fmt.Errorf("render inventory: %w", err)
	}

	if e.retention != nil && st.BucketName != "" {
		if err := e.retention.EnsureRetention(ctx, st.BucketName); err != nil {
			return NewExternalToolError("provision.retention",
				"install snapshot retention rule", err).WithPhase(StepProvision)
		}
	}

	e.log.Info().
		Dur("settle_interval", e.cfg.Pipeline.SettleInterval).
		Msg("waiting for target to finish booting")
	e.sleep(e.cfg.Pipeline.SettleInterval)

	return nil
}

// configure probes the target first so an unreachable host is reported as
// such and not as a configuration failure, then runs the base task set.
func (e *StepExecutor) configure(ctx context.Context, st *state.PipelineState) error {
	if err := e.probeTarget(ctx, st.TargetIP, StepConfigure); err != nil {
		return err
	}

	if err := e.configurer.Configure(ctx, e.states.InventoryPath()); err != nil {
		return NewExternalToolError("configure", "configuration engine failed", err).WithPhase(StepConfigure)
	}
	return nil
}

// deploy runs the deployment-specific task set.
func (e *StepExecutor) deploy(ctx context.Context, st *state.PipelineState) error {
	if err := e.probeTarget(ctx, st.TargetIP, StepDeploy); err != nil {
		return err
	}

	if err := e.configurer.Deploy(ctx, e.states.InventoryPath()); err != nil {
		return NewExternalToolError("deploy", "configuration engine failed", err).WithPhase(StepDeploy)
	}
	return nil
}

// verify runs the full health report. Individual check failures are not
// fatal; only a predominantly failing report escalates.
func (e *StepExecutor) verify(ctx context.Context, st *state.PipelineState) (*health.Report, error) {
	runner, err := e.newRunner(st.TargetIP)
	if err != nil {
		return nil, NewUnreachableError(st.TargetIP, err).WithPhase(StepVerify)
	}
	defer runner.Close()

	aggregator := health.NewAggregator(st.TargetIP, e.newChecks(st.TargetIP, runner))
	report := aggregator.Run(ctx)

	if report.PredominantlyFailing() {
		return report, NewUnreachableError(st.TargetIP,
			fmt.Errorf("health report predominantly failing: %d of %d checks failed",
				report.Failed, len(report.Results))).WithPhase(StepVerify)
	}
	return report, nil
}

// probeTarget runs the lightweight connectivity probe used by phases 2-3.
func (e *StepExecutor) probeTarget(ctx context.Context, target string, step Step) error {
	if target == "" {
		return NewPrerequisiteError("pipeline state has no target address", nil).WithPhase(step)
	}

	runner, err := e.newRunner(target)
	if err != nil {
		return NewUnreachableError(target, err).WithPhase(step)
	}
	defer runner.Close()

	if err := runner.Probe(ctx); err != nil {
		return NewUnreachableError(target, err).WithPhase(step)
	}
	return nil
}
