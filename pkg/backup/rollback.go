package backup

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/caravel-ops/caravel/pkg/config"
	"github.com/caravel-ops/caravel/pkg/pipeline"
	"github.com/caravel-ops/caravel/pkg/prompt"
	"github.com/caravel-ops/caravel/pkg/state"
	"github.com/caravel-ops/caravel/pkg/telemetry"
	"github.com/caravel-ops/caravel/pkg/transports/ssh"
)

// RollbackManager restores a selected snapshot with the non-destructive
// protocol: the current application tree is moved aside (never deleted)
// before the snapshot is extracted, so the pre-rollback state is always
// recoverable manually.
type RollbackManager struct {
	cfg       *config.Config
	states    *state.Store
	store     ObjectStore
	newRunner func(target string) (ssh.Runner, error)
	prompter  prompt.Prompter
	log       zerolog.Logger

	httpClient *http.Client
	now        func() time.Time
	out        func(format string, args ...any)
}

// NewRollbackManager wires the rollback manager.
func NewRollbackManager(
	cfg *config.Config,
	states *state.Store,
	store ObjectStore,
	newRunner func(string) (ssh.Runner, error),
	prompter prompt.Prompter,
) *RollbackManager {
	return &RollbackManager{
		cfg:        cfg,
		states:     states,
		store:      store,
		newRunner:  newRunner,
		prompter:   prompter,
		log:        telemetry.ComponentLogger("rollback"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		out: func(format string, args ...any) {
			fmt.Printf(format, args...)
		},
	}
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	// Snapshot is what was restored.
	Snapshot Snapshot `json:"snapshot"`

	// ArchivePath is where the pre-restore application tree now lives on
	// the target. Retained indefinitely; never auto-deleted.
	ArchivePath string `json:"archive_path"`
}

// Run enumerates snapshots, asks the operator to select and confirm one,
// and executes the restore state machine. Failure before the target is
// touched aborts cleanly; failure after the archive move is surfaced with
// the recovery path.
func (r *RollbackManager) Run(ctx context.Context) (*RestoreResult, error) {
	st, err := r.states.Load()
	if err != nil {
		return nil, pipeline.NewPrerequisiteError("no deployment to roll back", err)
	}

	bucket := BucketName(r.cfg, st)
	snapshots, err := ListSnapshots(ctx, r.store, bucket, r.cfg.App.Name)
	if err != nil {
		return nil, pipeline.NewExternalToolError("rollback.list", "enumerate snapshots", err)
	}
	if len(snapshots) == 0 {
		return nil, pipeline.NewInvalidSelectionError(
			fmt.Sprintf("no snapshots found for %s in bucket %s", r.cfg.App.Name, bucket))
	}

	snap, err := r.selectSnapshot(snapshots)
	if err != nil {
		return nil, err
	}

	ok, err := r.prompter.Confirm(fmt.Sprintf(
		"restore snapshot %s over the current state of %s on %s?", snap.ID, r.cfg.App.Name, st.TargetIP))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pipeline.ErrOperatorAbort
	}

	return r.restore(ctx, st, snap)
}

// selectSnapshot presents the list oldest first with 1-based indices and
// validates the operator's pick.
func (r *RollbackManager) selectSnapshot(snapshots []Snapshot) (Snapshot, error) {
	r.out("Available snapshots (oldest first):\n")
	for i, s := range snapshots {
		r.out("  %2d) %s\n", i+1, s.Key)
	}

	choice, err := r.prompter.Select("select a snapshot to restore", len(snapshots))
	if err != nil {
		return Snapshot{}, pipeline.NewInvalidSelectionError(err.Error())
	}
	if choice < 1 || choice > len(snapshots) {
		return Snapshot{}, pipeline.NewInvalidSelectionError(
			fmt.Sprintf("snapshot index %d out of range 1-%d", choice, len(snapshots)))
	}
	return snapshots[choice-1], nil
}

// restore executes the restore state machine against the target.
func (r *RollbackManager) restore(ctx context.Context, st *state.PipelineState, snap Snapshot) (*RestoreResult, error) {
	// Steps 1-2 fail before the running application is touched.
	localTmp := filepath.Join(os.TempDir(), fmt.Sprintf("restore-%s.tar.gz", snap.ID))
	if err := r.store.Download(ctx, snap.Bucket, snap.Key, localTmp); err != nil {
		return nil, pipeline.NewExternalToolError("rollback.download", "fetch snapshot", err)
	}

	runner, err := r.newRunner(st.TargetIP)
	if err != nil {
		return nil, pipeline.NewUnreachableError(st.TargetIP, err)
	}
	defer runner.Close()

	remoteTmp := fmt.Sprintf("/tmp/restore-%s.tar.gz", snap.ID)
	if err := runner.Upload(ctx, localTmp, remoteTmp, 0o644); err != nil {
		return nil, pipeline.NewExternalToolError("rollback.transfer", "stage snapshot on target", err)
	}

	root := r.cfg.App.Root
	archive := fmt.Sprintf("%s.old.%d", root, r.now().Unix())

	r.log.Info().
		Str("snapshot_id", snap.ID).
		Str("archive_path", archive).
		Msg("replacing application state")

	// Step 3: stop, archive (move, never delete), extract, own, restart.
	// From the archive move on, a failure leaves the target degraded but
	// recoverable from the archive path, and says so.
	if _, stderr, err := runner.RunSudo(ctx, fmt.Sprintf("docker compose -f %s/docker-compose.yml down", root)); err != nil {
		return nil, pipeline.NewExternalToolError("rollback.stop",
			fmt.Sprintf("stop application: %s", stderr), err)
	}

	// The archive destination must be fresh; an existing tree there is
	// never overwritten.
	if _, stderr, err := runner.RunSudo(ctx, fmt.Sprintf("test ! -e %s && mv %s %s", archive, root, archive)); err != nil {
		return nil, pipeline.NewExternalToolError("rollback.archive",
			fmt.Sprintf("archive current state to %s: %s", archive, stderr), err)
	}

	result := &RestoreResult{Snapshot: snap, ArchivePath: archive}

	restoreCmds := []string{
		fmt.Sprintf("mkdir -p %s", root),
		fmt.Sprintf("tar xzf %s -C %s", remoteTmp, root),
		fmt.Sprintf("chown -R %s:%s %s", r.cfg.Target.User, r.cfg.Target.User, root),
		fmt.Sprintf("docker compose -f %s/docker-compose.yml up -d", root),
	}
	for _, cmd := range restoreCmds {
		if _, stderr, err := runner.RunSudo(ctx, cmd); err != nil {
			return result, &pipeline.OpsError{
				Class: pipeline.FailureDegradedRestore,
				Op:    "rollback.restore",
				Message: fmt.Sprintf(
					"restore failed after the application tree was archived; recover manually from %s (failed: %s: %s)",
					archive, cmd, stderr),
				Err: err,
			}
		}
	}

	// Step 4: only the transient copies are removed. The archive stays.
	if _, _, err := runner.RunSudo(ctx, "rm -f "+remoteTmp); err != nil {
		r.log.Warn().Err(err).Str("path", remoteTmp).Msg("failed to remove staged snapshot on target")
	}
	if err := os.Remove(localTmp); err != nil {
		r.log.Warn().Err(err).Str("path", localTmp).Msg("failed to remove local snapshot copy")
	}

	// Step 5: re-probe liveness. A failed probe is reported loudly with
	// the recovery path but never auto-reverted.
	if err := r.probeLiveness(ctx, st.TargetIP); err != nil {
		return result, pipeline.NewDegradedRestoreError(archive, err)
	}

	r.log.Info().
		Str("snapshot_id", snap.ID).
		Str("archive_path", archive).
		Msg("rollback completed and target is live")

	return result, nil
}

// probeLiveness hits the application liveness endpoint after the restart.
func (r *RollbackManager) probeLiveness(ctx context.Context, target string) error {
	url := fmt.Sprintf("http://%s:%d%s", target, r.cfg.Health.LivenessPort, r.cfg.Health.LivenessPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s returned %s", url, resp.Status)
	}
	return nil
}
