package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/caravel-ops/caravel/pkg/config"
	"github.com/caravel-ops/caravel/pkg/pipeline"
	"github.com/caravel-ops/caravel/pkg/state"
	"github.com/caravel-ops/caravel/pkg/telemetry"
	"github.com/caravel-ops/caravel/pkg/transports/ssh"
)

// BucketName resolves the snapshot bucket: the provision output when the
// engine exported one, otherwise the bucket named in the project file.
func BucketName(cfg *config.Config, st *state.PipelineState) string {
	if st != nil && st.BucketName != "" {
		return st.BucketName
	}
	return cfg.Backup.Bucket
}

// Manager creates snapshots of remote application state. Failure at any
// stage aborts with the transient artifacts left in place for the operator
// to inspect; cleanup happens only after a fully successful upload.
type Manager struct {
	cfg       *config.Config
	states    *state.Store
	store     ObjectStore
	newRunner func(target string) (ssh.Runner, error)
	log       zerolog.Logger

	// now is injectable so snapshot IDs are deterministic in tests.
	now func() time.Time
}

// NewManager wires the backup manager.
func NewManager(cfg *config.Config, states *state.Store, store ObjectStore, newRunner func(string) (ssh.Runner, error)) *Manager {
	return &Manager{
		cfg:       cfg,
		states:    states,
		store:     store,
		newRunner: newRunner,
		log:       telemetry.ComponentLogger("backup"),
		now:       time.Now,
	}
}

// Create captures the configured application paths into one compressed
// artifact, retrieves it, uploads it to object storage and removes the
// transient copies on both ends.
func (m *Manager) Create(ctx context.Context) (*Snapshot, error) {
	st, err := m.states.Load()
	if err != nil {
		return nil, pipeline.NewPrerequisiteError("no deployment to back up", err)
	}

	runner, err := m.newRunner(st.TargetIP)
	if err != nil {
		return nil, pipeline.NewUnreachableError(st.TargetIP, err)
	}
	defer runner.Close()

	id := m.now().UTC().Format(snapshotTimeLayout)
	snap := Snapshot{
		ID:     id,
		App:    m.cfg.App.Name,
		Bucket: BucketName(m.cfg, st),
		Key:    snapshotKey(m.cfg.App.Name, id),
	}
	remoteTmp := fmt.Sprintf("/tmp/%s-%s.tar.gz", snap.App, snap.ID)

	m.log.Info().
		Str("app", snap.App).
		Str("snapshot_id", snap.ID).
		Str("target", st.TargetIP).
		Msg("creating snapshot")

	// Stage 1: archive on the target.
	tarCmd := fmt.Sprintf("tar czf %s -C %s %s",
		remoteTmp, m.cfg.App.Root, strings.Join(m.backupPaths(), " "))
	if _, stderr, err := runner.RunSudo(ctx, tarCmd); err != nil {
		return nil, pipeline.NewExternalToolError("backup.archive",
			fmt.Sprintf("archive application state: %s", stderr), err)
	}
	// The archive is created by root; make it readable for the transfer.
	if _, stderr, err := runner.RunSudo(ctx, "chmod 0644 "+remoteTmp); err != nil {
		return nil, pipeline.NewExternalToolError("backup.archive",
			fmt.Sprintf("make archive readable: %s", stderr), err)
	}

	// Stage 2: retrieve to the orchestrating machine.
	localTmp := filepath.Join(os.TempDir(), filepath.Base(remoteTmp))
	if err := runner.Download(ctx, remoteTmp, localTmp); err != nil {
		return nil, pipeline.NewExternalToolError("backup.transfer", "retrieve archive", err)
	}

	// Stage 3: upload to durable storage.
	if err := m.store.Upload(ctx, snap.Bucket, snap.Key, localTmp); err != nil {
		return nil, pipeline.NewExternalToolError("backup.upload", "upload snapshot", err)
	}

	// Only a fully successful snapshot cleans up its transient copies.
	if _, _, err := runner.RunSudo(ctx, "rm -f "+remoteTmp); err != nil {
		m.log.Warn().Err(err).Str("path", remoteTmp).Msg("failed to remove remote transient archive")
	}
	if err := os.Remove(localTmp); err != nil {
		m.log.Warn().Err(err).Str("path", localTmp).Msg("failed to remove local transient archive")
	}

	m.log.Info().Str("key", snap.Key).Str("bucket", snap.Bucket).Msg("snapshot created")
	return &snap, nil
}

// backupPaths returns the capture set relative to the application root.
func (m *Manager) backupPaths() []string {
	if len(m.cfg.App.BackupPaths) == 0 {
		return []string{"."}
	}
	return m.cfg.App.BackupPaths
}
