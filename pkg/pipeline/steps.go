package pipeline

import "fmt"

// Step identifies one of the four ordered pipeline phases.
type Step int

const (
	// StepProvision allocates the target infrastructure (phase 1).
	StepProvision Step = iota + 1

	// StepConfigure installs and configures software on the target (phase 2).
	StepConfigure

	// StepDeploy rolls out the application workload (phase 3).
	StepDeploy

	// StepVerify runs the health report against the deployed target (phase 4).
	StepVerify
)

// MinStep and MaxStep bound the valid phase ordinals.
const (
	MinStep = int(StepProvision)
	MaxStep = int(StepVerify)
)

// AllSteps returns the phases in execution order.
func AllSteps() []Step {
	return []Step{StepProvision, StepConfigure, StepDeploy, StepVerify}
}

// String returns the phase name.
func (s Step) String() string {
	switch s {
	case StepProvision:
		return "provision"
	case StepConfigure:
		return "configure"
	case StepDeploy:
		return "deploy"
	case StepVerify:
		return "verify"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Validate checks that the step is one of the four known phases.
func (s Step) Validate() error {
	if int(s) < MinStep || int(s) > MaxStep {
		return fmt.Errorf("invalid step: %d (must be %d-%d)", int(s), MinStep, MaxStep)
	}
	return nil
}

// StepRange is a contiguous, inclusive subset of the pipeline phases
// requested for a single run.
type StepRange struct {
	Start Step
	End   Step
}

// FullRange returns the default range covering all four phases.
func FullRange() StepRange {
	return StepRange{Start: StepProvision, End: StepVerify}
}

// NewStepRange builds a validated range from raw CLI ordinals.
func NewStepRange(start, end int) (StepRange, error) {
	r := StepRange{Start: Step(start), End: Step(end)}
	if err := r.Validate(); err != nil {
		return StepRange{}, err
	}
	return r, nil
}

// Validate enforces 1 <= start <= end <= 4.
func (r StepRange) Validate() error {
	if err := r.Start.Validate(); err != nil {
		return err
	}
	if err := r.End.Validate(); err != nil {
		return err
	}
	if r.Start > r.End {
		return fmt.Errorf("invalid step range: start %d is after end %d", int(r.Start), int(r.End))
	}
	return nil
}

// Contains reports whether the phase falls inside the range.
func (r StepRange) Contains(s Step) bool {
	return s >= r.Start && s <= r.End
}

// IsFull reports whether the range covers all four phases.
func (r StepRange) IsFull() bool {
	return r.Start == StepProvision && r.End == StepVerify
}

// String formats the range for logs and summaries.
func (r StepRange) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}
