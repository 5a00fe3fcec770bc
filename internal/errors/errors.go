// Package errors provides centralized error definitions and error handling
// utilities for the taskloop codebase. It defines sentinel errors for every
// failure kind the orchestrator distinguishes, typed errors that carry stage
// and phase context, and the mapping from errors to the stable process exit
// codes that calling tooling depends on.
//
// # Failure Taxonomy
//
// Sentinel errors cover the complete set of failure kinds:
//   - ErrArtifactMissing: a required upstream artifact is absent before invocation
//   - ErrNotInstalled: an agent executable could not be found
//   - ErrAuthRequired: an agent CLI reported an authentication failure
//   - ErrTimeout: a child process exceeded its deadline
//   - ErrNonZeroExit: a child process exited with a nonzero code
//   - ErrOutputMissing: the expected output file was never written
//   - ErrOutputEmpty: the output file exists but is empty or unreadable
//   - ErrOutputNotJSON: the output file is not valid JSON
//   - ErrOutputMissingField: a required field is absent from the output
//   - ErrOutputInvalidStatus: the status field holds an unrecognized value
//   - ErrSessionExpired: a resumable reviewer session is no longer valid
//   - ErrIterationCapExceeded: a review stage hit its fix-loop cap
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewStageError("plan_review_sonnet", errors.PhaseExecution, baseErr)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
//
//	var stageErr *errors.StageError
//	if errors.As(err, &stageErr) { ... }
//
// Exit codes:
//
//	os.Exit(errors.ExitCode(err))
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Phase identifies where in an orchestration tick a failure occurred.
// It is reported as structured data on error events so callers can render
// a precise message without parsing prose.
type Phase string

const (
	// PhaseInputValidation covers checks performed before any process is spawned.
	PhaseInputValidation Phase = "input_validation"
	// PhaseCLICheck covers executable resolution and authentication failures.
	PhaseCLICheck Phase = "cli_check"
	// PhaseExecution covers the child process run itself.
	PhaseExecution Phase = "execution"
	// PhaseOutputValidation covers checks on the artifact the agent produced.
	PhaseOutputValidation Phase = "output_validation"
)

// String returns the string representation of the phase.
func (p Phase) String() string { return string(p) }

// Invocation-side sentinel errors
var (
	// ErrArtifactMissing indicates a required upstream artifact is absent.
	ErrArtifactMissing = New("required artifact missing")
	// ErrNotInstalled indicates the agent executable could not be found.
	ErrNotInstalled = New("executable not installed")
	// ErrAuthRequired indicates the agent CLI needs (re)authentication.
	ErrAuthRequired = New("authentication required")
	// ErrTimeout indicates a child process exceeded its deadline.
	ErrTimeout = New("operation timed out")
	// ErrNonZeroExit indicates a child process exited with a nonzero code.
	ErrNonZeroExit = New("process exited with nonzero status")
	// ErrSpawnFailed indicates the process could not be started at all.
	ErrSpawnFailed = New("process failed to start")
)

// Output-side sentinel errors
var (
	// ErrOutputMissing indicates the expected output file was never written.
	ErrOutputMissing = New("output file missing")
	// ErrOutputEmpty indicates the output file exists but is empty or unreadable.
	ErrOutputEmpty = New("output file unreadable or empty")
	// ErrOutputNotJSON indicates the output file does not parse as JSON.
	ErrOutputNotJSON = New("output is not valid JSON")
	// ErrOutputMissingField indicates a required field is absent.
	ErrOutputMissingField = New("output missing required field")
	// ErrOutputInvalidStatus indicates the status value is not in the allowed set.
	ErrOutputInvalidStatus = New("output has invalid status value")
)

// Pipeline sentinel errors
var (
	// ErrSessionExpired indicates a resumable reviewer session is no longer valid.
	// It is recovered locally with one fresh retry and only surfaces if the
	// retry also fails.
	ErrSessionExpired = New("reviewer session expired")
	// ErrIterationCapExceeded indicates a review stage reached its fix-loop cap
	// and requires human intervention. Terminal for that stage only.
	ErrIterationCapExceeded = New("iteration cap exceeded")
	// ErrEscalated indicates the pipeline halted for human decision.
	ErrEscalated = New("escalated for human review")
	// ErrStateCorrupted indicates the pipeline state document is unusable.
	ErrStateCorrupted = New("pipeline state corrupted")
)

// StageError wraps a failure with the pipeline stage and tick phase it
// occurred in. The orchestration loop attaches one to every propagated
// failure so the caller can report stage and phase as structured data.
//
// Example:
//
//	err := errors.NewStageError("plan_review_sonnet", errors.PhaseExecution, cause)
//	fmt.Println(err) // "stage plan_review_sonnet [execution]: ..."
type StageError struct {
	Stage string
	Phase Phase
	cause error
}

// NewStageError creates a StageError wrapping cause.
func NewStageError(stage string, phase Phase, cause error) *StageError {
	return &StageError{Stage: stage, Phase: phase, cause: cause}
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s [%s]: %v", e.Stage, e.Phase, e.cause)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.cause }

// MissingFieldError reports a required field absent from an agent's output
// document. It wraps ErrOutputMissingField so callers can match either the
// sentinel or the typed error.
type MissingFieldError struct {
	Field string
}

// NewMissingFieldError creates a MissingFieldError for the named field.
func NewMissingFieldError(field string) *MissingFieldError {
	return &MissingFieldError{Field: field}
}

// Error returns the formatted error message.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("output missing required field %q", e.Field)
}

// Is reports whether this error matches the target.
func (e *MissingFieldError) Is(target error) bool {
	if other, ok := target.(*MissingFieldError); ok {
		return other.Field == "" || other.Field == e.Field
	}
	return target == ErrOutputMissingField
}

// InvalidStatusError reports a status field holding a value outside the
// allowed enum for the document's kind. It wraps ErrOutputInvalidStatus.
type InvalidStatusError struct {
	Value string
	Kind  string
}

// NewInvalidStatusError creates an InvalidStatusError for the given value.
func NewInvalidStatusError(value, kind string) *InvalidStatusError {
	return &InvalidStatusError{Value: value, Kind: kind}
}

// Error returns the formatted error message.
func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q for %s document", e.Value, e.Kind)
}

// Is reports whether this error matches the target.
func (e *InvalidStatusError) Is(target error) bool {
	if _, ok := target.(*InvalidStatusError); ok {
		return true
	}
	return target == ErrOutputInvalidStatus
}

// TimeoutError reports a child process killed after exceeding its deadline.
// It wraps ErrTimeout.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: duration}
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s (limit: %s)", e.Operation, e.Duration)
}

// Is reports whether this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return target == ErrTimeout
}

// Process exit codes. The set 0-3 is the complete and stable contract with
// calling tooling; no other codes are defined.
const (
	ExitOK           = 0
	ExitOutputError  = 1
	ExitNotInstalled = 2
	ExitTimeout      = 3
)

// ExitCode maps an error to the process exit code contract:
// 0 success, 1 output missing/invalid (and any other failure),
// 2 executable not installed or authentication required, 3 timeout.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Is(err, ErrNotInstalled), Is(err, ErrAuthRequired):
		return ExitNotInstalled
	case Is(err, ErrTimeout):
		return ExitTimeout
	default:
		return ExitOutputError
	}
}

// PhaseOf maps an error to the tick phase it belongs to. A StageError's
// explicit phase wins; otherwise the sentinel chain decides.
func PhaseOf(err error) Phase {
	var stageErr *StageError
	if As(err, &stageErr) {
		return stageErr.Phase
	}
	switch {
	case Is(err, ErrArtifactMissing):
		return PhaseInputValidation
	case Is(err, ErrNotInstalled), Is(err, ErrAuthRequired):
		return PhaseCLICheck
	case Is(err, ErrOutputMissing), Is(err, ErrOutputEmpty), Is(err, ErrOutputNotJSON),
		Is(err, ErrOutputMissingField), Is(err, ErrOutputInvalidStatus):
		return PhaseOutputValidation
	default:
		return PhaseExecution
	}
}

// IsRetryable reports whether re-running the same orchestration tick may
// succeed. Iteration-cap exhaustion and escalation require a human first;
// everything else is retryable by another tick.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !Is(err, ErrIterationCapExceeded) && !Is(err, ErrEscalated)
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
