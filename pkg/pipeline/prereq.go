package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/caravel-ops/caravel/pkg/config"
	"github.com/caravel-ops/caravel/pkg/state"
)

// PrerequisiteChecker validates that the tools, credentials and artifacts
// required by the requested step range exist before any step runs. It is
// strictly read-only.
type PrerequisiteChecker struct {
	cfg    *config.Config
	states *state.Store

	// lookPath and getenv are injectable for tests.
	lookPath func(file string) (string, error)
	getenv   func(key string) string
}

// NewPrerequisiteChecker creates a checker over the project config and
// state store.
func NewPrerequisiteChecker(cfg *config.Config, states *state.Store) *PrerequisiteChecker {
	return &PrerequisiteChecker{
		cfg:      cfg,
		states:   states,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
	}
}

// Check validates only the prerequisites relevant to the phases in r.
// A range starting past provision additionally requires an existing
// pipeline state; its absence is reported as its own explicit failure, not
// folded into the generic missing list.
func (c *PrerequisiteChecker) Check(r StepRange) error {
	if err := r.Validate(); err != nil {
		return NewInvalidSelectionError(err.Error())
	}

	// Resuming past phase 1 without state means the target was never
	// provisioned; the remediation differs from any missing tool.
	if r.Start >= StepConfigure && !c.states.Exists() {
		return NewPrerequisiteError(
			fmt.Sprintf("no pipeline state at %s: run phase 1 first", c.states.Path()), nil)
	}

	var missing []string

	if r.Contains(StepProvision) {
		missing = append(missing, c.provisionPrereqs()...)
	}
	if r.Contains(StepConfigure) || r.Contains(StepDeploy) {
		missing = append(missing, c.configurePrereqs(r)...)
	}
	if r.Contains(StepConfigure) || r.Contains(StepDeploy) || r.Contains(StepVerify) {
		missing = append(missing, c.targetAccessPrereqs()...)
	}

	if len(missing) > 0 {
		return NewPrerequisiteError("missing prerequisites: "+strings.Join(missing, "; "), nil)
	}
	return nil
}

// provisionPrereqs covers phase 1: the provisioning engine and the object
// storage credentials consumed when the retention rule is installed.
func (c *PrerequisiteChecker) provisionPrereqs() []string {
	var missing []string

	if _, err := c.lookPath(c.cfg.Provisioner.Binary); err != nil {
		missing = append(missing, fmt.Sprintf("provisioning engine %q not on PATH", c.cfg.Provisioner.Binary))
	}
	if fi, err := os.Stat(c.cfg.Provisioner.WorkDir); err != nil || !fi.IsDir() {
		missing = append(missing, fmt.Sprintf("provisioner working directory %q", c.cfg.Provisioner.WorkDir))
	}
	if c.getenv(c.cfg.Backup.AccessKeyEnv) == "" {
		missing = append(missing, fmt.Sprintf("object storage credential %s", c.cfg.Backup.AccessKeyEnv))
	}
	if c.getenv(c.cfg.Backup.SecretKeyEnv) == "" {
		missing = append(missing, fmt.Sprintf("object storage credential %s", c.cfg.Backup.SecretKeyEnv))
	}

	return missing
}

// configurePrereqs covers phases 2-3: the configuration engine and the
// playbooks the range will run.
func (c *PrerequisiteChecker) configurePrereqs(r StepRange) []string {
	var missing []string

	if _, err := c.lookPath(c.cfg.Configurer.Binary); err != nil {
		missing = append(missing, fmt.Sprintf("configuration engine %q not on PATH", c.cfg.Configurer.Binary))
	}

	if r.Contains(StepConfigure) {
		p := filepath.Join(c.cfg.Configurer.WorkDir, c.cfg.Configurer.SitePlaybook)
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, fmt.Sprintf("site playbook %q", p))
		}
	}
	if r.Contains(StepDeploy) {
		p := filepath.Join(c.cfg.Configurer.WorkDir, c.cfg.Configurer.DeployPlaybook)
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, fmt.Sprintf("deploy playbook %q", p))
		}
	}

	return missing
}

// targetAccessPrereqs covers every phase that contacts the target.
func (c *PrerequisiteChecker) targetAccessPrereqs() []string {
	var missing []string
	if _, err := os.Stat(c.cfg.Target.PrivateKeyPath); err != nil {
		missing = append(missing, fmt.Sprintf("ssh private key %q", c.cfg.Target.PrivateKeyPath))
	}
	return missing
}
