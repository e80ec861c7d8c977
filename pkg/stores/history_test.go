package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore opens a migrated store on a throwaway database file. A real
// file rather than :memory: so every pooled connection sees the same schema.
func setupTestStore(t *testing.T) *HistoryStore {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "events"} {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestRunRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.StartRun(ctx, OperationPipeline)
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if id == "" {
		t.Fatal("empty run ID")
	}

	run, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Kind != OperationPipeline {
		t.Errorf("kind = %s, want %s", run.Kind, OperationPipeline)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("status = %s, want %s", run.Status, RunStatusRunning)
	}
	if run.CompletedAt != nil {
		t.Error("completed_at set on a running run")
	}

	detail := `{"last_completed_step":4}`
	if err := store.FinishRun(ctx, id, RunStatusSucceeded, detail, nil); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	finished, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("failed to get finished run: %v", err)
	}
	if finished.Status != RunStatusSucceeded {
		t.Errorf("status = %s, want %s", finished.Status, RunStatusSucceeded)
	}
	if finished.Detail != detail {
		t.Errorf("detail = %q, want %q", finished.Detail, detail)
	}
	if finished.CompletedAt == nil {
		t.Error("completed_at not recorded")
	}
	if finished.Error != nil {
		t.Errorf("error = %q on a succeeded run", *finished.Error)
	}
}

func TestFinishRunRecordsError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.StartRun(ctx, OperationRollback)
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}

	if err := store.FinishRun(ctx, id, RunStatusFailed, "", errors.New("tar exited 2")); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	run, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("status = %s, want %s", run.Status, RunStatusFailed)
	}
	if run.Error == nil || *run.Error != "tar exited 2" {
		t.Errorf("error = %v, want the run error text", run.Error)
	}
}

func TestUnknownRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "no-such-run"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun err = %v, want ErrRunNotFound", err)
	}
	if err := store.FinishRun(ctx, "no-such-run", RunStatusFailed, "", nil); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun err = %v, want ErrRunNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	kinds := []OperationKind{OperationPipeline, OperationBackup, OperationRollback}
	ids := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		id, err := store.StartRun(ctx, kind)
		if err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
		ids = append(ids, id)
		// Distinct start timestamps keep the ordering deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("%d runs listed, want the limit of 2", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("listed %s, %s; want newest first %s, %s", runs[0].ID, runs[1].ID, ids[2], ids[1])
	}
}

func TestEventsRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.StartRun(ctx, OperationPipeline)
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	other, err := store.StartRun(ctx, OperationPipeline)
	if err != nil {
		t.Fatalf("failed to start run: %v", err)
	}

	messages := []string{"phase provision completed in 2m1s", "phase configure failed: unreachable"}
	if err := store.AppendEvent(ctx, id, EventLevelInfo, messages[0]); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}
	if err := store.AppendEvent(ctx, id, EventLevelError, messages[1]); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.ListEvents(ctx, id)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("%d events, want 2", len(events))
	}
	for i, ev := range events {
		if ev.RunID != id {
			t.Errorf("event[%d].RunID = %s, want %s", i, ev.RunID, id)
		}
		if ev.Message != messages[i] {
			t.Errorf("event[%d].Message = %q, want %q", i, ev.Message, messages[i])
		}
	}
	if events[0].Level != EventLevelInfo || events[1].Level != EventLevelError {
		t.Errorf("event levels = %s, %s", events[0].Level, events[1].Level)
	}

	// Events stay attached to their run.
	unrelated, err := store.ListEvents(ctx, other)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(unrelated) != 0 {
		t.Errorf("%d events on an unrelated run", len(unrelated))
	}
}
