package farez

import (
	"context"
	"errors"
	"time"
)

// Check creates a Processor that runs a soft-assertion check.
//
// The function inspects the stage value and records findings through the
// Recorder it receives, which is scoped to name. It returns nothing, so a
// failed assertion can never stop the stage; later checks always run. A
// panic inside fn is converted into an *Error[T] by the enclosing Stage.
//
// Example:
//
//	sorted := farez.Check("offers-sorted", func(_ context.Context, run *searchRun, rec farez.Recorder) {
//	    farez.CheckSortedByTotal(rec, "$.offers", run.Response.Offers)
//	})
func Check[T Subject](name Name, fn func(context.Context, T, Recorder)) Processor[T] {
	return Processor[T]{
		name: name,
		fn: func(ctx context.Context, value T) (T, error) {
			fn(ctx, value, value.Collector().Recorder(name))
			return value, nil
		},
	}
}

// Effect creates a Processor that performs a side effect which may fail
// with a host error, such as writing a report dump. The value passes
// through unchanged; an error stops the stage and is wrapped in *Error[T].
func Effect[T any](name Name, fn func(context.Context, T) error) Processor[T] {
	return Processor[T]{
		name: name,
		fn: func(ctx context.Context, value T) (T, error) {
			start := time.Now()
			if err := fn(ctx, value); err != nil {
				var zero T
				return zero, &Error[T]{
					Path:      []Name{name},
					InputData: value,
					Err:       err,
					Timestamp: time.Now(),
					Duration:  time.Since(start),
					Timeout:   errors.Is(err, context.DeadlineExceeded),
					Canceled:  errors.Is(err, context.Canceled),
				}
			}
			return value, nil
		},
	}
}
