package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/caravel-ops/caravel/pkg/health"
	"github.com/caravel-ops/caravel/pkg/prompt"
	"github.com/caravel-ops/caravel/pkg/state"
	"github.com/caravel-ops/caravel/pkg/telemetry"
)

// Outcome is the terminal state of a pipeline run.
type Outcome string

const (
	// OutcomeCompletedFully means all four phases have completed,
	// cumulatively across runs.
	OutcomeCompletedFully Outcome = "completed_fully"

	// OutcomeCompletedPartially means the run finished its range but the
	// deployment has not yet reached the final phase.
	OutcomeCompletedPartially Outcome = "completed_partially"

	// OutcomeAborted means the operator declined the confirmation gate.
	OutcomeAborted Outcome = "aborted_by_operator"

	// OutcomeFailed means a phase failed and the run stopped there.
	OutcomeFailed Outcome = "failed"
)

// StepStatus records what happened to one phase during a run.
type StepStatus string

const (
	StepStatusExecuted StepStatus = "executed"
	StepStatusSkipped  StepStatus = "skipped"
	StepStatusFailed   StepStatus = "failed"
	StepStatusNotRun   StepStatus = "not_run"
)

// StepRecord is one phase's entry in the run summary.
type StepRecord struct {
	Step     Step          `json:"step"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// RunSummary describes what a pipeline run did.
type RunSummary struct {
	Range             StepRange      `json:"range"`
	Outcome           Outcome        `json:"outcome"`
	Steps             []StepRecord   `json:"steps"`
	LastCompletedStep int            `json:"last_completed_step"`
	FailedStep        Step           `json:"failed_step,omitempty"`
	Report            *health.Report `json:"health_report,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	Duration          time.Duration  `json:"duration"`
}

// StepRunner executes one phase. Satisfied by StepExecutor; test doubles
// implement it directly.
type StepRunner interface {
	Execute(ctx context.Context, step Step, st *state.PipelineState) (*health.Report, error)
}

// PrereqChecker validates prerequisites for a range. Satisfied by
// PrerequisiteChecker.
type PrereqChecker interface {
	Check(r StepRange) error
}

// Controller orders the phases, applies the requested range, consults the
// prerequisite checker and state store, and fails fast on the first step
// error, leaving the persisted state exactly as of the last successfully
// completed phase.
type Controller struct {
	executor StepRunner
	prereqs  PrereqChecker
	states   *state.Store
	prompter prompt.Prompter
	log      zerolog.Logger
}

// NewController wires the pipeline controller.
func NewController(executor StepRunner, prereqs PrereqChecker, states *state.Store, prompter prompt.Prompter) *Controller {
	return &Controller{
		executor: executor,
		prereqs:  prereqs,
		states:   states,
		prompter: prompter,
		log:      telemetry.ComponentLogger("pipeline"),
	}
}

// Run executes the phases of r in ordinal order. The returned summary is
// always non-nil; a non-nil error accompanies Failed outcomes, and
// ErrOperatorAbort accompanies an operator decline (a clean exit, not a
// failure).
func (c *Controller) Run(ctx context.Context, r StepRange) (*RunSummary, error) {
	summary := &RunSummary{
		Range:     r,
		StartedAt: time.Now(),
	}
	defer func() { summary.Duration = time.Since(summary.StartedAt) }()

	if err := c.prereqs.Check(r); err != nil {
		summary.Outcome = OutcomeFailed
		return summary, err
	}

	// Provisioning changes billed resources; it never runs unattended
	// without an explicit operator confirmation.
	if r.Contains(StepProvision) {
		ok, err := c.prompter.Confirm("phase 1 will provision billed infrastructure resources, continue?")
		if err != nil {
			summary.Outcome = OutcomeFailed
			return summary, err
		}
		if !ok {
			summary.Outcome = OutcomeAborted
			c.log.Info().Msg("operator declined provisioning, no changes made")
			return summary, ErrOperatorAbort
		}
	}

	st, err := c.states.Load()
	if err != nil {
		if err != state.ErrNotFound {
			summary.Outcome = OutcomeFailed
			return summary, err
		}
		st = &state.PipelineState{}
	}

	for _, step := range AllSteps() {
		if !r.Contains(step) {
			summary.Steps = append(summary.Steps, StepRecord{Step: step, Status: StepStatusSkipped})
			c.log.Debug().Stringer("step", step).Msg("phase outside requested range, skipped")
			continue
		}

		c.log.Info().Stringer("step", step).Int("ordinal", int(step)).Msg("executing phase")
		stepStart := time.Now()

		report, err := c.executor.Execute(ctx, step, st)
		if report != nil {
			summary.Report = report
		}
		if err != nil {
			summary.Steps = append(summary.Steps, StepRecord{
				Step:     step,
				Status:   StepStatusFailed,
				Duration: time.Since(stepStart),
				Error:    err.Error(),
			})
			c.markRemaining(summary, step)
			summary.Outcome = OutcomeFailed
			summary.FailedStep = step
			summary.LastCompletedStep = st.LastCompletedStep

			c.log.Error().Err(err).Stringer("step", step).
				Int("resume_from", int(step)).
				Msg("phase failed, pipeline stopped; resume with --start set to the failed phase")
			return summary, err
		}

		if err := c.states.MarkCompleted(st, int(step)); err != nil {
			summary.Outcome = OutcomeFailed
			summary.FailedStep = step
			return summary, err
		}

		summary.Steps = append(summary.Steps, StepRecord{
			Step:     step,
			Status:   StepStatusExecuted,
			Duration: time.Since(stepStart),
		})
	}

	summary.LastCompletedStep = st.LastCompletedStep
	if st.LastCompletedStep >= MaxStep {
		summary.Outcome = OutcomeCompletedFully
	} else {
		summary.Outcome = OutcomeCompletedPartially
	}

	c.log.Info().
		Str("outcome", string(summary.Outcome)).
		Int("last_completed_step", summary.LastCompletedStep).
		Dur("duration", time.Since(summary.StartedAt)).
		Msg("pipeline run finished")

	return summary, nil
}

// markRemaining records the phases after a failure as skipped or not run.
func (c *Controller) markRemaining(summary *RunSummary, failed Step) {
	for _, step := range AllSteps() {
		if step <= failed {
			continue
		}
		status := StepStatusNotRun
		if !summary.Range.Contains(step) {
			status = StepStatusSkipped
		}
		summary.Steps = append(summary.Steps, StepRecord{Step: step, Status: status})
	}
}
