// Package state persists the cross-invocation facts about the current
// deployment: the target address, the provisioned resource identifiers and
// the last completed pipeline phase. The JSON state file is the single
// source of truth for what was actually provisioned; it is never inferred
// from external tool side channels.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// StateFileName is the pipeline state file inside the state directory.
const StateFileName = "pipeline-state.json"

// ErrNotFound is returned when no pipeline state has been persisted yet,
// i.e. phase 1 has never completed for this state directory.
var ErrNotFound = errors.New("pipeline state not found (run phase 1 first)")

// PipelineState holds the persisted deployment facts.
type PipelineState struct {
	// TargetIP is the public address of the provisioned host.
	TargetIP string `json:"target_ip"`

	// InstanceID is the provisioning engine's identifier for the host.
	InstanceID string `json:"instance_id"`

	// BucketName is the snapshot bucket created at provision time.
	BucketName string `json:"bucket_name"`

	// LastCompletedStep is the highest phase ordinal that finished
	// successfully. A failed run leaves it at the prior value so the
	// operator can resume with --start set to the failed phase.
	LastCompletedStep int `json:"last_completed_step"`

	// UpdatedAt is when the state was last persisted.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes PipelineState under a state directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on the
// first save, not here: loading from a missing directory must still report
// ErrNotFound cleanly.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether a pipeline state has been persisted.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Load reads the persisted state. Returns ErrNotFound when no state exists.
func (s *Store) Load() (*PipelineState, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read pipeline state: %w", err)
	}

	var st PipelineState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse pipeline state %s: %w", s.Path(), err)
	}
	return &st, nil
}

// Save persists the state atomically: the document is written to a temp
// file in the same directory and renamed over the previous version, so a
// crash mid-update cannot leave a corrupt state file.
func (s *Store) Save(st *PipelineState) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	st.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pipeline state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, StateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}

	log.Debug().
		Str("path", s.Path()).
		Int("last_completed_step", st.LastCompletedStep).
		Msg("pipeline state persisted")

	return nil
}

// MarkCompleted records that a phase finished and persists the state.
// Lower ordinals never overwrite progress from a higher one.
func (s *Store) MarkCompleted(st *PipelineState, step int) error {
	if step > st.LastCompletedStep {
		st.LastCompletedStep = step
	}
	return s.Save(st)
}
