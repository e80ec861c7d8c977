package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/caravel-ops/caravel/pkg/health"
	"github.com/caravel-ops/caravel/pkg/state"
)

// Mock step runner for testing
type mockRunner struct {
	executed []Step
	failAt   Step
	report   *health.Report
}

func (m *mockRunner) Execute(ctx context.Context, step Step, st *state.PipelineState) (*health.Report, error) {
	m.executed = append(m.executed, step)
	if step == m.failAt {
		return nil, NewExternalToolError(step.String(), "mock failure", errors.New("exit 1")).WithPhase(step)
	}
	if step == StepVerify {
		return m.report, nil
	}
	return nil, nil
}

// Mock prerequisite checker for testing
type mockPrereqs struct {
	err    error
	checks int
}

func (m *mockPrereqs) Check(r StepRange) error {
	m.checks++
	return m.err
}

// Mock prompter for testing
type mockPrompter struct {
	confirmAnswer bool
	confirms      int
}

func (m *mockPrompter) Confirm(string) (bool, error) {
	m.confirms++
	return m.confirmAnswer, nil
}

func (m *mockPrompter) Select(string, int) (int, error) {
	return 0, errors.New("not expected")
}

func newTestController(t *testing.T, runner *mockRunner, prompter *mockPrompter) (*Controller, *state.Store) {
	t.Helper()
	states := state.NewStore(t.TempDir())
	return NewController(runner, &mockPrereqs{}, states, prompter), states
}

func stepStatuses(summary *RunSummary) map[Step]StepStatus {
	statuses := make(map[Step]StepStatus, len(summary.Steps))
	for _, rec := range summary.Steps {
		statuses[rec.Step] = rec.Status
	}
	return statuses
}

func TestControllerFullRun(t *testing.T) {
	runner := &mockRunner{report: &health.Report{Target: "203.0.113.7", Passed: 8}}
	prompter := &mockPrompter{confirmAnswer: true}
	controller, states := newTestController(t, runner, prompter)

	summary, err := controller.Run(context.Background(), FullRange())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Outcome != OutcomeCompletedFully {
		t.Errorf("outcome = %s, want %s", summary.Outcome, OutcomeCompletedFully)
	}
	if len(runner.executed) != 4 {
		t.Fatalf("executed %d steps, want 4", len(runner.executed))
	}
	for i, step := range AllSteps() {
		if runner.executed[i] != step {
			t.Errorf("execution order[%d] = %s, want %s", i, runner.executed[i], step)
		}
	}
	if prompter.confirms != 1 {
		t.Errorf("confirmation asked %d times, want 1", prompter.confirms)
	}
	if summary.Report == nil {
		t.Error("summary missing health report from verify")
	}

	st, err := states.Load()
	if err != nil {
		t.Fatalf("Load after run failed: %v", err)
	}
	if st.LastCompletedStep != MaxStep {
		t.Errorf("persisted LastCompletedStep = %d, want %d", st.LastCompletedStep, MaxStep)
	}
}

func TestControllerPartialRange(t *testing.T) {
	runner := &mockRunner{}
	prompter := &mockPrompter{confirmAnswer: false} // must never be asked
	controller, states := newTestController(t, runner, prompter)

	if err := states.Save(&state.PipelineState{TargetIP: "203.0.113.7", LastCompletedStep: 1}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	summary, err := controller.Run(context.Background(), StepRange{Start: StepConfigure, End: StepDeploy})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if prompter.confirms != 0 {
		t.Error("confirmation gate triggered for a range without provision")
	}
	if summary.Outcome != OutcomeCompletedPartially {
		t.Errorf("outcome = %s, want %s", summary.Outcome, OutcomeCompletedPartially)
	}

	statuses := stepStatuses(summary)
	if statuses[StepProvision] != StepStatusSkipped || statuses[StepVerify] != StepStatusSkipped {
		t.Errorf("out-of-range phases not skipped: %v", statuses)
	}
	if statuses[StepConfigure] != StepStatusExecuted || statuses[StepDeploy] != StepStatusExecuted {
		t.Errorf("in-range phases not executed: %v", statuses)
	}

	st, _ := states.Load()
	if st.LastCompletedStep != int(StepDeploy) {
		t.Errorf("persisted LastCompletedStep = %d, want 3", st.LastCompletedStep)
	}
}

func TestControllerFailFast(t *testing.T) {
	runner := &mockRunner{failAt: StepDeploy}
	prompter := &mockPrompter{confirmAnswer: true}
	controller, states := newTestController(t, runner, prompter)

	summary, err := controller.Run(context.Background(), FullRange())
	if err == nil {
		t.Fatal("Run succeeded, want failure at deploy")
	}
	if !IsExternalToolFailure(err) {
		t.Errorf("error class = %v, want external tool failure", err)
	}

	if summary.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want %s", summary.Outcome, OutcomeFailed)
	}
	if summary.FailedStep != StepDeploy {
		t.Errorf("failed step = %s, want deploy", summary.FailedStep)
	}

	statuses := stepStatuses(summary)
	if statuses[StepDeploy] != StepStatusFailed {
		t.Errorf("deploy status = %s, want failed", statuses[StepDeploy])
	}
	if statuses[StepVerify] != StepStatusNotRun {
		t.Errorf("verify status = %s, want not_run", statuses[StepVerify])
	}
	for _, step := range runner.executed {
		if step == StepVerify {
			t.Error("verify executed after deploy failed")
		}
	}

	// Failure must leave the state at the last completed phase.
	st, loadErr := states.Load()
	if loadErr != nil {
		t.Fatalf("Load after failure: %v", loadErr)
	}
	if st.LastCompletedStep != int(StepConfigure) {
		t.Errorf("persisted LastCompletedStep = %d, want 2", st.LastCompletedStep)
	}
	if summary.LastCompletedStep != int(StepConfigure) {
		t.Errorf("summary LastCompletedStep = %d, want 2", summary.LastCompletedStep)
	}
}

func TestControllerOperatorDecline(t *testing.T) {
	runner := &mockRunner{}
	prompter := &mockPrompter{confirmAnswer: false}
	controller, states := newTestController(t, runner, prompter)

	summary, err := controller.Run(context.Background(), FullRange())
	if !errors.Is(err, ErrOperatorAbort) {
		t.Fatalf("err = %v, want ErrOperatorAbort", err)
	}

	if summary.Outcome != OutcomeAborted {
		t.Errorf("outcome = %s, want %s", summary.Outcome, OutcomeAborted)
	}
	if len(runner.executed) != 0 {
		t.Errorf("%d phases executed after decline, want 0", len(runner.executed))
	}
	if states.Exists() {
		t.Error("state persisted after declined confirmation")
	}
}

func TestControllerPrereqFailureStopsRun(t *testing.T) {
	runner := &mockRunner{}
	prereqs := &mockPrereqs{err: NewPrerequisiteError("terraform not on PATH", nil)}
	states := state.NewStore(t.TempDir())
	controller := NewController(runner, prereqs, states, &mockPrompter{confirmAnswer: true})

	summary, err := controller.Run(context.Background(), FullRange())
	if !IsPrerequisiteMissing(err) {
		t.Fatalf("err = %v, want prerequisite failure", err)
	}
	if summary.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want %s", summary.Outcome, OutcomeFailed)
	}
	if len(runner.executed) != 0 {
		t.Error("phases executed despite failed prerequisites")
	}
}

func TestControllerSingleStepResume(t *testing.T) {
	runner := &mockRunner{report: &health.Report{Target: "203.0.113.7", Passed: 8}}
	controller, states := newTestController(t, runner, &mockPrompter{})

	if err := states.Save(&state.PipelineState{TargetIP: "203.0.113.7", LastCompletedStep: 3}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	summary, err := controller.Run(context.Background(), StepRange{Start: StepVerify, End: StepVerify})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Outcome != OutcomeCompletedFully {
		t.Errorf("outcome = %s, want %s after completing the final phase", summary.Outcome, OutcomeCompletedFully)
	}
	if len(runner.executed) != 1 || runner.executed[0] != StepVerify {
		t.Errorf("executed = %v, want [verify]", runner.executed)
	}
}
