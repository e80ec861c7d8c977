package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caravel-ops/caravel/pkg/config"
	"github.com/caravel-ops/caravel/pkg/state"
)

// prereqFixture builds a project layout where every prerequisite exists.
func prereqFixture(t *testing.T) (*config.Config, *state.Store) {
	t.Helper()
	dir := t.TempDir()

	tfDir := filepath.Join(dir, "terraform")
	ansibleDir := filepath.Join(dir, "ansible")
	for _, d := range []string{tfDir, ansibleDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	keyPath := filepath.Join(dir, "id_ed25519")
	for _, f := range []string{
		filepath.Join(ansibleDir, "site.yml"),
		filepath.Join(ansibleDir, "deploy.yml"),
		keyPath,
	} {
		if err := os.WriteFile(f, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{}
	cfg.Target.PrivateKeyPath = keyPath
	cfg.Provisioner.Binary = "terraform"
	cfg.Provisioner.WorkDir = tfDir
	cfg.Configurer.Binary = "ansible-playbook"
	cfg.Configurer.WorkDir = ansibleDir
	cfg.Configurer.SitePlaybook = "site.yml"
	cfg.Configurer.DeployPlaybook = "deploy.yml"
	cfg.Backup.AccessKeyEnv = "TEST_ACCESS_KEY"
	cfg.Backup.SecretKeyEnv = "TEST_SECRET_KEY"

	return cfg, state.NewStore(filepath.Join(dir, ".caravel"))
}

func newTestChecker(cfg *config.Config, states *state.Store) *PrerequisiteChecker {
	c := NewPrerequisiteChecker(cfg, states)
	c.lookPath = func(string) (string, error) { return "/usr/bin/tool", nil }
	c.getenv = func(string) string { return "set" }
	return c
}

func TestPrereqCheckAllPresent(t *testing.T) {
	cfg, states := prereqFixture(t)
	if err := states.Save(&state.PipelineState{TargetIP: "203.0.113.7"}); err != nil {
		t.Fatal(err)
	}

	if err := newTestChecker(cfg, states).Check(FullRange()); err != nil {
		t.Errorf("Check failed with every prerequisite present: %v", err)
	}
}

func TestPrereqCheckInvalidRange(t *testing.T) {
	cfg, states := prereqFixture(t)

	err := newTestChecker(cfg, states).Check(StepRange{Start: StepDeploy, End: StepConfigure})
	if !IsInvalidSelection(err) {
		t.Errorf("err = %v, want invalid selection", err)
	}
}

func TestPrereqCheckResumeWithoutState(t *testing.T) {
	cfg, states := prereqFixture(t)

	err := newTestChecker(cfg, states).Check(StepRange{Start: StepConfigure, End: StepVerify})
	if !IsPrerequisiteMissing(err) {
		t.Fatalf("err = %v, want prerequisite failure", err)
	}
	if !strings.Contains(err.Error(), "run phase 1 first") {
		t.Errorf("missing-state error lacks remediation hint: %v", err)
	}
}

func TestPrereqCheckFullRangeWithoutState(t *testing.T) {
	// A range starting at provision does not need prior state.
	cfg, states := prereqFixture(t)

	if err := newTestChecker(cfg, states).Check(FullRange()); err != nil {
		t.Errorf("Check failed for a fresh full run: %v", err)
	}
}

func TestPrereqCheckMissingBinaryAndCredentials(t *testing.T) {
	cfg, states := prereqFixture(t)

	c := NewPrerequisiteChecker(cfg, states)
	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	c.getenv = func(string) string { return "" }

	err := c.Check(StepRange{Start: StepProvision, End: StepProvision})
	if !IsPrerequisiteMissing(err) {
		t.Fatalf("err = %v, want prerequisite failure", err)
	}
	for _, want := range []string{"terraform", "TEST_ACCESS_KEY", "TEST_SECRET_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing list does not mention %s: %v", want, err)
		}
	}
}

func TestPrereqCheckMissingPlaybook(t *testing.T) {
	cfg, states := prereqFixture(t)
	if err := states.Save(&state.PipelineState{TargetIP: "203.0.113.7"}); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(cfg.Configurer.WorkDir, "deploy.yml")); err != nil {
		t.Fatal(err)
	}

	// Configure alone does not need the deploy playbook.
	checker := newTestChecker(cfg, states)
	if err := checker.Check(StepRange{Start: StepConfigure, End: StepConfigure}); err != nil {
		t.Errorf("configure-only range should not require deploy playbook: %v", err)
	}

	err := checker.Check(StepRange{Start: StepDeploy, End: StepDeploy})
	if !IsPrerequisiteMissing(err) {
		t.Fatalf("err = %v, want prerequisite failure", err)
	}
	if !strings.Contains(err.Error(), "deploy playbook") {
		t.Errorf("missing list does not mention the deploy playbook: %v", err)
	}
}

func TestPrereqCheckVerifyOnlyNeedsKey(t *testing.T) {
	cfg, states := prereqFixture(t)
	if err := states.Save(&state.PipelineState{TargetIP: "203.0.113.7"}); err != nil {
		t.Fatal(err)
	}

	// No engines on PATH, no credentials: verify still only needs the key.
	c := NewPrerequisiteChecker(cfg, states)
	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	c.getenv = func(string) string { return "" }

	if err := c.Check(StepRange{Start: StepVerify, End: StepVerify}); err != nil {
		t.Errorf("verify-only range failed: %v", err)
	}

	if err := os.Remove(cfg.Target.PrivateKeyPath); err != nil {
		t.Fatal(err)
	}
	if err := c.Check(StepRange{Start: StepVerify, End: StepVerify}); !IsPrerequisiteMissing(err) {
		t.Errorf("err = %v, want prerequisite failure for missing key", err)
	}
}
