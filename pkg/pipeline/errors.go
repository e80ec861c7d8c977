// Package pipeline implements the deployment lifecycle orchestration core:
// the four-phase state machine (provision -> configure -> deploy -> verify),
// the prerequisite checker, the per-phase step executor and the fail-fast
// pipeline controller.
package pipeline

import (
	"errors"
	"fmt"
)

// FailureClass classifies a fatal orchestration failure. The class decides
// the operator's remediation, not a retry policy: nothing in the core
// retries automatically.
type FailureClass string

const (
	// FailurePrerequisite indicates a required tool, credential or artifact
	// is absent. Reported before any mutating action.
	FailurePrerequisite FailureClass = "prerequisite_missing"

	// FailureUnreachable indicates the connectivity probe to the target
	// failed. Fatal for phases 2-4; inside a health report it is merely a
	// failed check item.
	FailureUnreachable FailureClass = "unreachable_target"

	// FailureExternalTool indicates the provisioning or configuration
	// engine returned a non-success result.
	FailureExternalTool FailureClass = "external_tool_failure"

	// FailureInvalidSelection indicates an out-of-range snapshot index or
	// step range. No side effects were performed.
	FailureInvalidSelection FailureClass = "invalid_selection"

	// FailureDegradedRestore indicates a rollback extracted and restarted
	// but the post-restore probe failed. The archived prior state remains
	// on the target for manual recovery.
	FailureDegradedRestore FailureClass = "degraded_restore"
)

// ErrOperatorAbort is returned when the operator declines a confirmation
// gate. It is a clean exit, not a failure: callers map it to exit code 0.
var ErrOperatorAbort = errors.New("aborted by operator")

// OpsError is a classified orchestration failure with phase/operation
// context. All fatal errors in the core are OpsErrors so the CLI can print
// the phase name and the underlying external diagnostic.
type OpsError struct {
	// Class is the failure classification.
	Class FailureClass

	// Op is the operation being performed (e.g. "backup.upload").
	Op string

	// Phase is the pipeline phase, when the failure occurred inside one.
	Phase Step

	// Message is the human-readable failure description.
	Message string

	// Err is the underlying cause, typically the external tool diagnostic.
	Err error
}

// Error implements the error interface.
func (e *OpsError) Error() string {
	switch {
	case e.Phase != 0 && e.Err != nil:
		return fmt.Sprintf("[%s] phase %s: %s: %v", e.Class, e.Phase, e.Message, e.Err)
	case e.Phase != 0:
		return fmt.Sprintf("[%s] phase %s: %s", e.Class, e.Phase, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s: %s: %v", e.Class, e.Op, e.Message, e.Err)
	default:
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Op, e.Message)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *OpsError) Unwrap() error {
	return e.Err
}

// Is matches OpsErrors by class so sentinel-style comparisons work.
func (e *OpsError) Is(target error) bool {
	t, ok := target.(*OpsError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithPhase attaches the pipeline phase to the error.
func (e *OpsError) WithPhase(s Step) *OpsError {
	e.Phase = s
	return e
}

// NewPrerequisiteError reports a missing prerequisite.
func NewPrerequisiteError(message string, err error) *OpsError {
	return &OpsError{Class: FailurePrerequisite, Op: "preflight", Message: message, Err: err}
}

// NewUnreachableError reports a failed connectivity probe.
func NewUnreachableError(target string, err error) *OpsError {
	return &OpsError{
		Class:   FailureUnreachable,
		Op:      "probe",
		Message: fmt.Sprintf("target %s is unreachable", target),
		Err:     err,
	}
}

// NewExternalToolError reports a non-success result from an external engine.
func NewExternalToolError(op, message string, err error) *OpsError {
	return &OpsError{Class: FailureExternalTool, Op: op, Message: message, Err: err}
}

// NewInvalidSelectionError reports an out-of-range operator selection.
func NewInvalidSelectionError(message string) *OpsError {
	return &OpsError{Class: FailureInvalidSelection, Op: "select", Message: message}
}

// NewDegradedRestoreError reports a restore whose post-restore probe failed.
// archivePath is the on-target location of the pre-restore state.
func NewDegradedRestoreError(archivePath string, err error) *OpsError {
	return &OpsError{
		Class:   FailureDegradedRestore,
		Op:      "rollback.verify",
		Message: fmt.Sprintf("restored target failed the liveness probe; previous state preserved at %s", archivePath),
		Err:     err,
	}
}

// classOf extracts the failure class from an error chain, if any.
func classOf(err error) (FailureClass, bool) {
	var e *OpsError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsPrerequisiteMissing reports whether err is a missing-prerequisite failure.
func IsPrerequisiteMissing(err error) bool {
	c, ok := classOf(err)
	return ok && c == FailurePrerequisite
}

// IsUnreachable reports whether err is an unreachable-target failure.
func IsUnreachable(err error) bool {
	c, ok := classOf(err)
	return ok && c == FailureUnreachable
}

// IsExternalToolFailure reports whether err is an external-tool failure.
func IsExternalToolFailure(err error) bool {
	c, ok := classOf(err)
	return ok && c == FailureExternalTool
}

// IsInvalidSelection reports whether err is an invalid-selection failure.
func IsInvalidSelection(err error) bool {
	c, ok := classOf(err)
	return ok && c == FailureInvalidSelection
}

// IsDegradedRestore reports whether err is a degraded-restore failure.
func IsDegradedRestore(err error) bool {
	c, ok := classOf(err)
	return ok && c == FailureDegradedRestore
}
