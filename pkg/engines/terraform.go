package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// TerraformProvisioner drives a Terraform working directory as the
// infrastructure provisioning engine.
type TerraformProvisioner struct {
	binary  string
	workDir string
}

// NewTerraformProvisioner creates the adapter for the given binary and
// working directory.
func NewTerraformProvisioner(binary, workDir string) *TerraformProvisioner {
	return &TerraformProvisioner{binary: binary, workDir: workDir}
}

// Provision applies the definitions and reads back the outputs.
func (t *TerraformProvisioner) Provision(ctx context.Context) (*ProvisionOutputs, error) {
	start := time.Now()
	log.Info().Str("work_dir", t.workDir).Msg("provisioning infrastructure")

	if _, err := t.run(ctx, "init", "-input=false"); err != nil {
		return nil, err
	}
	if _, err := t.run(ctx, "apply", "-input=false", "-auto-approve"); err != nil {
		return nil, err
	}

	outputs, err := t.Outputs(ctx)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("instance_id", outputs.InstanceID).
		Str("public_ip", outputs.PublicIP).
		Dur("duration", time.Since(start)).
		Msg("infrastructure provisioned")

	return outputs, nil
}

// Outputs reads the engine's output values from its state artifact.
func (t *TerraformProvisioner) Outputs(ctx context.Context) (*ProvisionOutputs, error) {
	stdout, err := t.run(ctx, "output", "-json")
	if err != nil {
		return nil, err
	}
	return parseOutputs(stdout)
}

// run executes one engine command, returning stdout. A non-zero exit
// surfaces the engine's stderr as the diagnostic.
func (t *TerraformProvisioner) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Dir = t.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("binary", t.binary).Strs("args", args).Msg("invoking provisioning engine")

	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return nil, fmt.Errorf("%s %s: %s", t.binary, args[0], diag)
	}
	return stdout.Bytes(), nil
}

// terraformOutput is one entry of `output -json`.
type terraformOutput struct {
	Value json.RawMessage `json:"value"`
}

// parseOutputs maps the engine's output document onto ProvisionOutputs.
func parseOutputs(data []byte) (*ProvisionOutputs, error) {
	var raw map[string]terraformOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse engine outputs: %w", err)
	}

	str := func(key string) string {
		entry, ok := raw[key]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(entry.Value, &s); err != nil {
			return ""
		}
		return s
	}

	out := &ProvisionOutputs{
		PublicIP:   str("instance_public_ip"),
		InstanceID: str("instance_id"),
		BucketName: str("s3_bucket_name"),
		SSHCommand: str("ssh_command"),
	}

	if out.PublicIP == "" {
		return nil, fmt.Errorf("engine outputs missing instance_public_ip")
	}
	if out.InstanceID == "" {
		return nil, fmt.Errorf("engine outputs missing instance_id")
	}
	return out, nil
}
