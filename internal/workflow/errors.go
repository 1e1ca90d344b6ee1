package workflow

import (
	"errors"
	"fmt"

	"github.com/jacklau/sonarfix/internal/fix"
)

// ErrorKind tags why an invocation failed.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindGeneration
	KindStore
	KindRetryExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindGeneration:
		return "generation"
	case KindStore:
		return "store"
	case KindRetryExhausted:
		return "retry_exhausted"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// GenerationError means the model call itself failed or timed out.
type GenerationError struct {
	Mode fix.SamplingMode
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Mode, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StoreError means embedding or persisting a record, or searching the
// store, failed. Op names the step: embed, upsert or search.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InternalError is an engine fault: a phase with no step, a transition the
// table forbids, or a run that hit the step guard.
type InternalError struct {
	Phase Phase
	Err   error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("workflow fault in phase %s: %v", e.Phase, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned when every repair attempt still failed
// validation. Last is the final validation error.
type RetryExhaustedError struct {
	Attempts int
	Last     *fix.ValidationError
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("no valid fix after %d repair attempt(s): %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// Classify maps err to its ErrorKind. RetryExhausted is checked before
// Validation because it wraps the last validation error. Engine faults and
// unknown errors are reported as generation failures; callers tell engine
// faults apart with errors.As on *InternalError.
func Classify(err error) ErrorKind {
	var (
		exhausted *RetryExhaustedError
		verr      *fix.ValidationError
		gerr      *GenerationError
		serr      *StoreError
		ierr      *InternalError
	)
	switch {
	case errors.As(err, &exhausted):
		return KindRetryExhausted
	case errors.As(err, &serr):
		return KindStore
	case errors.As(err, &gerr):
		return KindGeneration
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &ierr):
		return KindGeneration
	default:
		return KindGeneration
	}
}

// ErrorInfo is the error recorded in a State.
type ErrorInfo struct {
	Kind ErrorKind
	Err  error
}

func newErrorInfo(err error) *ErrorInfo {
	return &ErrorInfo{Kind: Classify(err), Err: err}
}

// Message returns the error text shown to callers.
func (e *ErrorInfo) Message() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}
