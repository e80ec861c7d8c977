// Package stores persists the local run history: one row per top-level
// operation (pipeline run, backup, rollback) plus an append-only event log.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when a run ID has no history row.
var ErrRunNotFound = errors.New("run not found")

// HistoryStore records operation runs in a local SQLite database.
type HistoryStore struct {
	db   *sql.DB
	path string
}

// Open creates the store, opens the database and applies migrations.
func Open(ctx context.Context, path string) (*HistoryStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	s := &HistoryStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate applies the embedded schema migrations.
func (s *HistoryStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// StartRun records the beginning of a top-level operation and returns its
// run ID.
func (s *HistoryStore) StartRun(ctx context.Context, kind OperationKind) (string, error) {
	id := uuid.NewString()
	query := `INSERT INTO runs (id, kind, status, detail, started_at) VALUES (?, ?, ?, '', ?)`

	if _, err := s.db.ExecContext(ctx, query, id, string(kind), string(RunStatusRunning), time.Now().UTC()); err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a run. runErr may be nil; detail is an
// optional JSON blob describing the outcome.
func (s *HistoryStore) FinishRun(ctx context.Context, id string, status RunStatus, detail string, runErr error) error {
	var errText *string
	if runErr != nil {
		t := runErr.Error()
		errText = &t
	}

	query := `UPDATE runs SET status = ?, detail = ?, completed_at = ?, error = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, string(status), detail, time.Now().UTC(), errText, id)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// AppendEvent attaches an event to a run.
func (s *HistoryStore) AppendEvent(ctx context.Context, runID string, level EventLevel, message string) error {
	query := `INSERT INTO events (run_id, level, message, timestamp) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, runID, string(level), message, time.Now().UTC()); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// GetRun retrieves one run.
func (s *HistoryStore) GetRun(ctx context.Context, id string) (*OperationRun, error) {
	query := `SELECT id, kind, status, detail, started_at, completed_at, error FROM runs WHERE id = ?`

	run := &OperationRun{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Kind, &run.Status, &run.Detail,
		&run.StartedAt, &run.CompletedAt, &run.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *HistoryStore) ListRuns(ctx context.Context, limit int) ([]OperationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, kind, status, detail, started_at, completed_at, error
	          FROM runs ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []OperationRun
	for rows.Next() {
		var run OperationRun
		if err := rows.Scan(&run.ID, &run.Kind, &run.Status, &run.Detail,
			&run.StartedAt, &run.CompletedAt, &run.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListEvents returns a run's events in insertion order.
func (s *HistoryStore) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	query := `SELECT id, run_id, level, message, timestamp FROM events WHERE run_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Level, &ev.Message, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
