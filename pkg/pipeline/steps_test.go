package pipeline

import "testing"

func TestStepString(t *testing.T) {
	cases := []struct {
		step Step
		want string
	}{
		{StepProvision, "provision"},
		{StepConfigure, "configure"},
		{StepDeploy, "deploy"},
		{StepVerify, "verify"},
		{Step(9), "step(9)"},
	}
	for _, tc := range cases {
		if got := tc.step.String(); got != tc.want {
			t.Errorf("Step(%d).String() = %q, want %q", int(tc.step), got, tc.want)
		}
	}
}

func TestStepValidate(t *testing.T) {
	for _, s := range AllSteps() {
		if err := s.Validate(); err != nil {
			t.Errorf("step %s unexpectedly invalid: %v", s, err)
		}
	}
	for _, s := range []Step{0, -1, 5} {
		if err := s.Validate(); err == nil {
			t.Errorf("step %d unexpectedly valid", int(s))
		}
	}
}

func TestNewStepRange(t *testing.T) {
	cases := []struct {
		name    string
		start   int
		end     int
		wantErr bool
	}{
		{"full", 1, 4, false},
		{"single", 3, 3, false},
		{"middle", 2, 3, false},
		{"start after end", 3, 2, true},
		{"start too low", 0, 4, true},
		{"end too high", 1, 5, true},
		{"both invalid", 0, 5, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewStepRange(tc.start, tc.end)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewStepRange(%d, %d) succeeded, want error", tc.start, tc.end)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStepRange(%d, %d) failed: %v", tc.start, tc.end, err)
			}
			if int(r.Start) != tc.start || int(r.End) != tc.end {
				t.Errorf("range = %v, want %d..%d", r, tc.start, tc.end)
			}
		})
	}
}

func TestStepRangeContains(t *testing.T) {
	r := StepRange{Start: StepConfigure, End: StepDeploy}

	if r.Contains(StepProvision) {
		t.Error("range 2..3 should not contain provision")
	}
	if !r.Contains(StepConfigure) || !r.Contains(StepDeploy) {
		t.Error("range 2..3 should contain configure and deploy")
	}
	if r.Contains(StepVerify) {
		t.Error("range 2..3 should not contain verify")
	}
}

func TestStepRangeIsFull(t *testing.T) {
	if !FullRange().IsFull() {
		t.Error("FullRange should be full")
	}
	if (StepRange{Start: StepProvision, End: StepDeploy}).IsFull() {
		t.Error("range 1..3 should not be full")
	}
}

func TestStepRangeString(t *testing.T) {
	if got := FullRange().String(); got != "provision..verify" {
		t.Errorf("FullRange().String() = %q", got)
	}
	if got := (StepRange{Start: StepVerify, End: StepVerify}).String(); got != "verify" {
		t.Errorf("single-step range String() = %q", got)
	}
}
