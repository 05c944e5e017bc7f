package capture

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for job/workspace operations. Checked with errors.Is().
var (
	ErrJobNotFound           = errors.New("job not found")
	ErrJobNotRunning         = errors.New("job is not running")
	ErrCaptureOutsideWorkspace = errors.New("capture path outside job workspace")
	ErrNoCapturesKept        = errors.New("review_export requires at least one kept capture")
	ErrROITooSmall           = errors.New("roi area below minimum threshold")
	ErrEmptyRange            = errors.New("end_sec must be greater than start_sec")
)

// Code is the taxonomized error_code reported on a failed job, per the
// error handling design: every stage failure rolls up into exactly one of
// these before the job moves to the error state.
type Code string

const (
	CodeInputInvalid       Code = "input_invalid"
	CodeSourceUnavailable  Code = "source_unavailable"
	CodeDecodeFailed       Code = "decode_failed"
	CodeTrackingLost       Code = "tracking_lost"
	CodeStitchFailed       Code = "stitch_failed"
	CodeUpscaleUnavailable Code = "upscale_unavailable"
	CodeUpscaleFailed      Code = "upscale_failed"
	CodeExportFailed       Code = "export_failed"
	CodeCancelled          Code = "cancelled"
	CodeInternal           Code = "internal"
)

// StageError is a stage failure carrying both the taxonomized code the
// orchestrator rolls it up into and the underlying cause for logs.
type StageError struct {
	Code  Code
	Cause error
}

func (e *StageError) Error() string {
	if e.Cause == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// NewStageError wraps cause with a taxonomized code.
func NewStageError(code Code, cause error) *StageError {
	return &StageError{Code: code, Cause: cause}
}

// AsStageError returns err as a *StageError, unwrapping it if it already
// is one and otherwise rolling it up into CodeInternal. ctx.Canceled is
// rolled up into CodeCancelled so the orchestrator doesn't need a special
// case for cooperative cancellation reaching this far.
func AsStageError(err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) {
		return NewStageError(CodeCancelled, err)
	}
	return NewStageError(CodeInternal, err)
}

// jobNotFoundError returns a wrapped error for a missing job.
func jobNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// JobNotFoundError is the exported constructor used by store/orchestrator.
func JobNotFoundError(id string) error { return jobNotFoundError(id) }

// jobNotRunningError returns a wrapped error for a job in an unexpected state.
func jobNotRunningError(id string, state State) error {
	return fmt.Errorf("%w (state: %s): %s", ErrJobNotRunning, state, id)
}

// JobNotRunningError is the exported constructor used by the orchestrator.
func JobNotRunningError(id string, state State) error {
	return jobNotRunningError(id, state)
}

// CaptureOutsideWorkspaceError reports a path-traversal attempt.
func CaptureOutsideWorkspaceError(path string) error {
	return fmt.Errorf("%w: %s", ErrCaptureOutsideWorkspace, path)
}
