package loader

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is; each typed error below matches exactly one.
var (
	ErrInvalidSource     = errors.New("invalid source")
	ErrReconfiguration   = errors.New("worker reconfiguration")
	ErrWorkerUnavailable = errors.New("worker unavailable")
	ErrWorkerTerminated  = errors.New("worker terminated")
	ErrParse             = errors.New("parse failed")
)

// InvalidSourceError reports a source that cannot be located or embedded.
type InvalidSourceError struct {
	Reason string
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid source: %s", e.Reason)
}

func (e *InvalidSourceError) Is(target error) bool { return target == ErrInvalidSource }

// ReconfigurationError reports an attempt to point the worker somewhere else.
type ReconfigurationError struct {
	Current   string
	Requested string
}

func (e *ReconfigurationError) Error() string {
	return fmt.Sprintf("worker already configured as %q, refusing %q", e.Current, e.Requested)
}

func (e *ReconfigurationError) Is(target error) bool { return target == ErrReconfiguration }

// WorkerUnavailableError reports a dispatch with no usable worker.
type WorkerUnavailableError struct {
	Cause error
}

func (e *WorkerUnavailableError) Error() string {
	if e.Cause == nil {
		return "worker unavailable: no worker configured"
	}
	return fmt.Sprintf("worker unavailable: %v", e.Cause)
}

func (e *WorkerUnavailableError) Unwrap() error        { return e.Cause }
func (e *WorkerUnavailableError) Is(target error) bool { return target == ErrWorkerUnavailable }

// WorkerTerminatedError reports that the worker channel went away with the
// request still outstanding.
type WorkerTerminatedError struct {
	Cause error
}

func (e *WorkerTerminatedError) Error() string {
	if e.Cause == nil {
		return "worker terminated"
	}
	return fmt.Sprintf("worker terminated: %v", e.Cause)
}

func (e *WorkerTerminatedError) Unwrap() error        { return e.Cause }
func (e *WorkerTerminatedError) Is(target error) bool { return target == ErrWorkerTerminated }

// ParseError carries a worker-reported failure.
type ParseError struct {
	Reason  string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed (%s): %s", e.Reason, e.Message)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }
