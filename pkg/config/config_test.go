package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalProject = `
app:
  name: myapp
  root: /opt/myapp
target:
  user: deploy
  private_key: /home/deploy/.ssh/id_ed25519
backup:
  endpoint: s3.example.com:9000
  bucket: myapp-snapshots
`

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "caravel.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMinimalProject(t *testing.T) {
	cfg, err := Load(writeProject(t, minimalProject))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.Name != "myapp" || cfg.App.Root != "/opt/myapp" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Target.User != "deploy" {
		t.Errorf("target user = %q", cfg.Target.User)
	}
	if cfg.Backup.Bucket != "myapp-snapshots" {
		t.Errorf("bucket = %q", cfg.Backup.Bucket)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeProject(t, minimalProject))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Target.Port != 22 {
		t.Errorf("default port = %d, want 22", cfg.Target.Port)
	}
	if cfg.Provisioner.Binary != "terraform" || cfg.Provisioner.WorkDir != "terraform" {
		t.Errorf("provisioner defaults = %+v", cfg.Provisioner)
	}
	if cfg.Configurer.Binary != "ansible-playbook" {
		t.Errorf("configurer binary = %q", cfg.Configurer.Binary)
	}
	if cfg.Configurer.SitePlaybook != "site.yml" || cfg.Configurer.DeployPlaybook != "deploy.yml" {
		t.Errorf("playbook defaults = %+v", cfg.Configurer)
	}
	if cfg.Backup.AccessKeyEnv != "CARAVEL_S3_ACCESS_KEY" || cfg.Backup.SecretKeyEnv != "CARAVEL_S3_SECRET_KEY" {
		t.Errorf("credential env defaults = %+v", cfg.Backup)
	}
	if cfg.Backup.RetentionDays != 30 {
		t.Errorf("retention days = %d, want 30", cfg.Backup.RetentionDays)
	}
	if cfg.Health.LivenessPath != "/health" || cfg.Health.MinWorkloads != 1 || cfg.Health.Mount != "/" {
		t.Errorf("health defaults = %+v", cfg.Health)
	}
	if cfg.Pipeline.StateDir != ".caravel" {
		t.Errorf("state dir = %q", cfg.Pipeline.StateDir)
	}
	if cfg.Pipeline.SettleInterval != 60*time.Second {
		t.Errorf("settle interval = %v", cfg.Pipeline.SettleInterval)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeProject(t, minimalProject+`
pipeline:
  state_dir: /var/lib/caravel
  settle_interval: 2m
health:
  liveness_port: 8080
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.StateDir != "/var/lib/caravel" {
		t.Errorf("state dir = %q", cfg.Pipeline.StateDir)
	}
	if cfg.Pipeline.SettleInterval != 2*time.Minute {
		t.Errorf("settle interval = %v", cfg.Pipeline.SettleInterval)
	}
	if cfg.Health.LivenessPort != 8080 {
		t.Errorf("liveness port = %d", cfg.Health.LivenessPort)
	}
}

func TestLoadRejectsInvalidProjects(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing app name", strings.Replace(minimalProject, "name: myapp", "name: \"\"", 1)},
		{"relative root", strings.Replace(minimalProject, "root: /opt/myapp", "root: opt/myapp", 1)},
		{"missing user", strings.Replace(minimalProject, "user: deploy", "user: \"\"", 1)},
		{"missing bucket", strings.Replace(minimalProject, "bucket: myapp-snapshots", "bucket: \"\"", 1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeProject(t, tc.content)); err == nil {
				t.Error("Load accepted an invalid project file")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load succeeded on a missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeProject(t, "app: [unclosed")); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}
