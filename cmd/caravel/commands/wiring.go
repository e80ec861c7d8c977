package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/caravel-ops/caravel/pkg/backup/objectstore"
	"github.com/caravel-ops/caravel/pkg/config"
	"github.com/caravel-ops/caravel/pkg/pipeline"
	"github.com/caravel-ops/caravel/pkg/state"
	"github.com/caravel-ops/caravel/pkg/stores"
	"github.com/caravel-ops/caravel/pkg/telemetry"
	"github.com/caravel-ops/caravel/pkg/transports/ssh"
)

// historyFileName is the run-history database inside the state directory.
const historyFileName = "history.db"

// loadConfig reads the project file named by --config, falling back to the
// default location.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	return config.Load(path)
}

// newStateStore creates the pipeline state store for the project.
func newStateStore(cfg *config.Config) *state.Store {
	return state.NewStore(cfg.Pipeline.StateDir)
}

// newObjectStore connects the snapshot object storage client using
// credentials from the configured environment variables.
func newObjectStore(cfg *config.Config) (*objectstore.Client, error) {
	accessKey := os.Getenv(cfg.Backup.AccessKeyEnv)
	secretKey := os.Getenv(cfg.Backup.SecretKeyEnv)
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("object storage credentials missing: set %s and %s",
			cfg.Backup.AccessKeyEnv, cfg.Backup.SecretKeyEnv)
	}

	return objectstore.New(objectstore.Config{
		Endpoint:      cfg.Backup.Endpoint,
		AccessKey:     accessKey,
		SecretKey:     secretKey,
		Region:        cfg.Backup.Region,
		UseSSL:        cfg.Backup.UseSSL,
		RetentionDays: cfg.Backup.RetentionDays,
	})
}

// newRunnerFactory builds the per-target SSH runner factory. The returned
// clients connect lazily on first use.
func newRunnerFactory(cfg *config.Config) func(target string) (ssh.Runner, error) {
	return func(target string) (ssh.Runner, error) {
		sshCfg := ssh.DefaultConfig(target, cfg.Target.User, cfg.Target.PrivateKeyPath)
		sshCfg.Port = cfg.Target.Port
		sshCfg.KnownHostsPath = cfg.Target.KnownHostsPath
		sshCfg.ConnectTimeout = cfg.Target.ConnectTimeout
		sshCfg.CommandTimeout = cfg.Target.CommandTimeout
		return ssh.NewClient(sshCfg)
	}
}

// openHistory opens the run-history database under the state directory.
func openHistory(ctx context.Context, cfg *config.Config) (*stores.HistoryStore, error) {
	if err := os.MkdirAll(cfg.Pipeline.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return stores.Open(ctx, filepath.Join(cfg.Pipeline.StateDir, historyFileName))
}

// newMetrics creates the run metrics collector from the project telemetry
// settings.
func newMetrics(cfg *config.Config) *telemetry.Metrics {
	return telemetry.NewMetrics(cfg.Telemetry.PushgatewayURL)
}

// recordOutcome finishes a history run from an operation error. History is
// best-effort; a recording failure is logged and never masks the operation
// result.
func recordOutcome(ctx context.Context, history *stores.HistoryStore, runID string, detail any, opErr error) {
	if history == nil || runID == "" {
		return
	}

	status := stores.RunStatusSucceeded
	switch {
	case errors.Is(opErr, pipeline.ErrOperatorAbort):
		status = stores.RunStatusAborted
	case opErr != nil:
		status = stores.RunStatusFailed
	}

	var detailJSON string
	if detail != nil {
		if data, err := json.Marshal(detail); err == nil {
			detailJSON = string(data)
		}
	}

	if err := history.FinishRun(ctx, runID, status, detailJSON, opErr); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("failed to record run outcome")
	}
}

// recordStepEvents appends one history event per phase that actually ran.
// Best-effort, like recordOutcome.
func recordStepEvents(ctx context.Context, history *stores.HistoryStore, runID string, summary *pipeline.RunSummary) {
	if history == nil || runID == "" || summary == nil {
		return
	}

	for _, rec := range summary.Steps {
		var level stores.EventLevel
		var msg string
		switch rec.Status {
		case pipeline.StepStatusExecuted:
			level = stores.EventLevelInfo
			msg = fmt.Sprintf("phase %s completed in %s", rec.Step, rec.Duration.Round(time.Millisecond))
		case pipeline.StepStatusFailed:
			level = stores.EventLevelError
			msg = fmt.Sprintf("phase %s failed: %s", rec.Step, rec.Error)
		default:
			continue
		}
		if err := history.AppendEvent(ctx, runID, level, msg); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("failed to record phase event")
		}
	}
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
