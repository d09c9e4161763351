package analysis

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition reports an operation that is not legal in the
// record's current orchestrator state.
var ErrInvalidTransition = errors.New("operation not allowed in current state")

// ValidationError reports malformed metadata supplied by the caller. It is
// surfaced synchronously and never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that an analysis is already in flight for the record.
// The caller may retry after the in-flight operation settles.
type ConflictError struct {
	RecordID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("analysis already in progress for record %s", e.RecordID)
}

// AnalyzerError reports a failed or timed-out inference call. No iteration is
// committed; the prior committed iteration remains authoritative.
type AnalyzerError struct {
	Err error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer invocation failed: %v", e.Err)
}

func (e *AnalyzerError) Unwrap() error {
	return e.Err
}

// CommitError reports that persisting a computed result failed. A half-written
// iteration must never become visible; the request is retried by resubmission.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("failed to commit iteration: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
