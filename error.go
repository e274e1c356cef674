package farez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors returned by the engine and its collaborators.
var (
	ErrNilResponse      = errors.New("response is nil")
	ErrStageOrder       = errors.New("stage called out of order")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Error describes a host defect raised while a stage was running: a panic
// inside a check, a canceled context, or a failed report dump. Business-rule
// violations are never reported this way; they live in the Report.
type Error[T any] struct {
	Timestamp time.Time
	InputData T
	Err       error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface.
func (e *Error[T]) Error() string {
	location := strings.Join(e.Path, " -> ")
	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error[T]) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the error was caused by a deadline.
func (e *Error[T]) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled reports whether the error was caused by cancellation.
func (e *Error[T]) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// panicError carries a recovered panic value.
type panicError struct {
	value any
	check Name
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic in %q: %v", p.check, p.value)
}

// recoverFromPanic converts a panic inside a check into an *Error[T] so the
// caller sees a loud failure instead of a crashed test binary.
func recoverFromPanic[T any](result *T, err *error, name Name, input T) {
	if r := recover(); r != nil {
		var zero T
		*result = zero
		*err = &Error[T]{
			Timestamp: time.Now(),
			InputData: input,
			Err:       &panicError{check: name, value: r},
			Path:      []Name{name},
		}
	}
}

// ValidationError is the single error a Report raises for all of its
// error-severity failures.
type ValidationError struct {
	Stage    StageName
	RunID    string
	Failures []Failure
}

// Error lists every failure, one per line.
func (v *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s validation failed with %d failure(s) [run %s]", v.Stage, len(v.Failures), v.RunID)
	for i := range v.Failures {
		b.WriteString("\n  ")
		b.WriteString(v.Failures[i].String())
	}
	return b.String()
}
