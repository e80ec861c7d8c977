package stores

import "time"

// OperationKind is the top-level operation recorded in history.
type OperationKind string

const (
	OperationPipeline OperationKind = "pipeline"
	OperationBackup   OperationKind = "backup"
	OperationRollback OperationKind = "rollback"
)

// RunStatus is the recorded outcome of a top-level operation.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// EventLevel is the severity of a history event.
type EventLevel string

const (
	EventLevelInfo  EventLevel = "info"
	EventLevelError EventLevel = "error"
)

// OperationRun is one recorded invocation of a top-level operation.
// History is informational; the JSON state file remains the single source
// of truth for the pipeline state.
type OperationRun struct {
	ID          string        `json:"id"`
	Kind        OperationKind `json:"kind"`
	Status      RunStatus     `json:"status"`
	Detail      string        `json:"detail"` // JSON blob (summary, snapshot id, ...)
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       *string       `json:"error,omitempty"`
}

// Event is one append-only history entry attached to a run.
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}
