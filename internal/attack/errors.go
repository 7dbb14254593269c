package attack

import (
	"errors"
	"fmt"
)

// ErrRuntimeTimeout indicates the hard wall-clock ceiling was exceeded
// and the process was terminated. Always wins over a concurrent
// cancellation request.
var ErrRuntimeTimeout = errors.New("runtime ceiling exceeded")

// ErrCancelled indicates cooperative termination was requested through
// the job store. Not an error condition for the job, its terminal state
// is cancelled.
var ErrCancelled = errors.New("job cancelled")

// ValidationError reports a path or config rejection detected before any
// process was spawned. Always recoverable, never touches the OS process.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExtractionError reports that the extraction collaborator failed to
// produce an attack-ready artifact. Fatal for the run, not retryable.
type ExtractionError struct {
	CapturePath string
	Err         error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.CapturePath, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ProcessError reports a spawn or runtime failure of the hashcat process
// itself, carrying the tail of captured stderr for the job's error
// message.
type ProcessError struct {
	Err        error
	StderrTail string
}

func (e *ProcessError) Error() string {
	if e.StderrTail != "" {
		return fmt.Sprintf("process error: %v: %s", e.Err, e.StderrTail)
	}
	return fmt.Sprintf("process error: %v", e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
