// Package config loads and validates the caravel project file. The file
// describes one deployment: the application being managed, how to reach the
// target, where the external engines live and where snapshots are stored.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the project file looked up when --config is not given.
const DefaultPath = "caravel.yaml"

// Config is the root of the caravel project file.
type Config struct {
	App         AppConfig         `yaml:"app" validate:"required"`
	Target      TargetConfig      `yaml:"target" validate:"required"`
	Provisioner ProvisionerConfig `yaml:"provisioner"`
	Configurer  ConfigurerConfig  `yaml:"configurer"`
	Backup      BackupConfig      `yaml:"backup" validate:"required"`
	Health      HealthConfig      `yaml:"health"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// AppConfig identifies the managed application on the target host.
type AppConfig struct {
	// Name is used in snapshot keys and log fields.
	Name string `yaml:"name" validate:"required,hostname_rfc1123"`

	// Root is the application directory on the target. The compose file
	// lives at its top level; archived states are `.old.<ts>` siblings.
	Root string `yaml:"root" validate:"required,startswith=/"`

	// BackupPaths are the paths under Root captured in a snapshot.
	// Relative to Root. Empty means the whole Root.
	BackupPaths []string `yaml:"backup_paths"`

	// Service is the systemd unit or compose project serving the app.
	Service string `yaml:"service"`
}

// TargetConfig describes how to reach the deployed host over SSH.
type TargetConfig struct {
	User           string        `yaml:"user" validate:"required"`
	Port           int           `yaml:"port" validate:"min=0,max=65535"`
	PrivateKeyPath string        `yaml:"private_key" validate:"required"`
	KnownHostsPath string        `yaml:"known_hosts"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ProvisionerConfig locates the infrastructure provisioning engine.
type ProvisionerConfig struct {
	// Binary is the engine executable, resolved via PATH when bare.
	Binary string `yaml:"binary"`

	// WorkDir is the directory holding the engine's definitions and its
	// state artifact. Read-only to caravel except through the engine.
	WorkDir string `yaml:"work_dir"`
}

// ConfigurerConfig locates the configuration-management engine.
type ConfigurerConfig struct {
	Binary string `yaml:"binary"`

	// WorkDir holds the playbooks and the rendered inventory.
	WorkDir string `yaml:"work_dir"`

	// SitePlaybook configures the base system (phase 2).
	SitePlaybook string `yaml:"site_playbook"`

	// DeployPlaybook rolls out the application (phase 3).
	DeployPlaybook string `yaml:"deploy_playbook"`
}

// BackupConfig describes the snapshot object storage.
type BackupConfig struct {
	// Endpoint is the S3-compatible endpoint (host:port).
	Endpoint string `yaml:"endpoint" validate:"required"`

	// Bucket receives snapshots when the provisioning engine does not
	// export a bucket output of its own. Provisioning sets the lifecycle
	// rule on it; the core never expires snapshots itself.
	Bucket string `yaml:"bucket" validate:"required"`

	Region string `yaml:"region"`
	UseSSL bool   `yaml:"use_ssl"`

	// AccessKeyEnv / SecretKeyEnv name the environment variables holding
	// credentials, so the project file never carries secrets.
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`

	// RetentionDays is the bucket lifecycle expiry applied at provision
	// time.
	RetentionDays int `yaml:"retention_days" validate:"min=1"`
}

// HealthConfig tunes the health report.
type HealthConfig struct {
	// LivenessPort and LivenessPath form the application liveness URL.
	LivenessPort int    `yaml:"liveness_port" validate:"min=0,max=65535"`
	LivenessPath string `yaml:"liveness_path"`

	// HTTPPort is the externally observable service port (phase-4 response
	// check).
	HTTPPort int `yaml:"http_port" validate:"min=0,max=65535"`

	// MinWorkloads is the minimum expected running workload process count.
	MinWorkloads int `yaml:"min_workloads" validate:"min=1"`

	// Mount is the filesystem checked for disk utilization.
	Mount string `yaml:"mount"`
}

// PipelineConfig tunes the pipeline controller.
type PipelineConfig struct {
	// StateDir holds the persisted pipeline state, rendered inventory and
	// the run-history database.
	StateDir string `yaml:"state_dir"`

	// SettleInterval is the post-provision wait before phases 2-4 attempt
	// contact. Premature contact is a real failure mode, not cosmetics.
	SettleInterval time.Duration `yaml:"settle_interval"`
}

// TelemetryConfig configures optional run metrics.
type TelemetryConfig struct {
	// PushgatewayURL enables a one-shot metrics push after each top-level
	// operation. Empty disables metrics entirely.
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// Load reads, defaults and validates the project file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse project file %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project file %s: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills unset fields with working defaults.
func (c *Config) applyDefaults() {
	if c.Target.Port == 0 {
		c.Target.Port = 22
	}
	if c.Target.ConnectTimeout == 0 {
		c.Target.ConnectTimeout = 30 * time.Second
	}
	if c.Target.CommandTimeout == 0 {
		c.Target.CommandTimeout = 5 * time.Minute
	}
	if c.Provisioner.Binary == "" {
		c.Provisioner.Binary = "terraform"
	}
	if c.Provisioner.WorkDir == "" {
		c.Provisioner.WorkDir = "terraform"
	}
	if c.Configurer.Binary == "" {
		c.Configurer.Binary = "ansible-playbook"
	}
	if c.Configurer.WorkDir == "" {
		c.Configurer.WorkDir = "ansible"
	}
	if c.Configurer.SitePlaybook == "" {
		c.Configurer.SitePlaybook = "site.yml"
	}
	if c.Configurer.DeployPlaybook == "" {
		c.Configurer.DeployPlaybook = "deploy.yml"
	}
	if c.Backup.AccessKeyEnv == "" {
		c.Backup.AccessKeyEnv = "CARAVEL_S3_ACCESS_KEY"
	}
	if c.Backup.SecretKeyEnv == "" {
		c.Backup.SecretKeyEnv = "CARAVEL_S3_SECRET_KEY"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 30
	}
	if c.Health.LivenessPath == "" {
		c.Health.LivenessPath = "/health"
	}
	if c.Health.LivenessPort == 0 {
		c.Health.LivenessPort = 80
	}
	if c.Health.HTTPPort == 0 {
		c.Health.HTTPPort = 80
	}
	if c.Health.MinWorkloads == 0 {
		c.Health.MinWorkloads = 1
	}
	if c.Health.Mount == "" {
		c.Health.Mount = "/"
	}
	if c.Pipeline.StateDir == "" {
		c.Pipeline.StateDir = ".caravel"
	}
	if c.Pipeline.SettleInterval == 0 {
		c.Pipeline.SettleInterval = 60 * time.Second
	}
}

// Validate runs struct validation over the whole document.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
