package engines

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AnsibleConfigurer drives ansible-playbook as the configuration engine.
type AnsibleConfigurer struct {
	binary         string
	workDir        string
	sitePlaybook   string
	deployPlaybook string
}

// NewAnsibleConfigurer creates the adapter. Playbook paths are relative to
// workDir.
func NewAnsibleConfigurer(binary, workDir, sitePlaybook, deployPlaybook string) *AnsibleConfigurer {
	return &AnsibleConfigurer{
		binary:         binary,
		workDir:        workDir,
		sitePlaybook:   sitePlaybook,
		deployPlaybook: deployPlaybook,
	}
}

// Configure runs the base-system playbook against the inventory.
func (a *AnsibleConfigurer) Configure(ctx context.Context, inventoryPath string) error {
	return a.runPlaybook(ctx, a.sitePlaybook, inventoryPath)
}

// Deploy runs the deployment playbook against the inventory.
func (a *AnsibleConfigurer) Deploy(ctx context.Context, inventoryPath string) error {
	return a.runPlaybook(ctx, a.deployPlaybook, inventoryPath)
}

// runPlaybook executes one playbook. A non-zero exit surfaces the engine's
// combined output tail as the diagnostic.
func (a *AnsibleConfigurer) runPlaybook(ctx context.Context, playbook, inventoryPath string) error {
	start := time.Now()

	inv, err := filepath.Abs(inventoryPath)
	if err != nil {
		return fmt.Errorf("resolve inventory path: %w", err)
	}

	cmd := exec.CommandContext(ctx, a.binary, "-i", inv, playbook)
	cmd.Dir = a.workDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	log.Info().
		Str("playbook", playbook).
		Str("inventory", inv).
		Msg("invoking configuration engine")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %s", a.binary, playbook, diagnosticTail(output.String()))
	}

	log.Info().
		Str("playbook", playbook).
		Dur("duration", time.Since(start)).
		Msg("configuration engine completed")

	return nil
}

// diagnosticTail keeps the last lines of engine output so the failure
// message stays readable while preserving the actual error.
func diagnosticTail(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return "no output"
	}
	lines := strings.Split(output, "\n")
	const keep = 15
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.Join(lines, "\n")
}
