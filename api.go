// Package farez validates the contract of a flight-booking API workflow.
//
// # Overview
//
// A booking transaction is a chain of dependent calls: Search, FareConfirm,
// Book and Retrieve. farez asserts that the monetary, referential and
// structural invariants of every response hold, and that successive steps
// agree with each other. A quoted price must survive FareConfirm, and a
// paid booking must be reproduced exactly by Retrieve.
//
// # Core Concepts
//
// Every check is a Chainable over a stage value:
//
//	type Chainable[T any] interface {
//	    Process(context.Context, T) (T, error)
//	    Name() Name
//	}
//
// Checks never stop a stage. They record failures into the stage's
// Collector through a Recorder scoped to the check name, and the stage
// surfaces every failure at once when it finishes:
//
//	taxes := farez.Check("taxes", func(_ context.Context, run *bookRun, rec farez.Recorder) {
//	    farez.CheckTaxSum(rec, "$.order.priceDetails", run.order().PriceDetails.TaxesAndFees, run.order().PriceDetails.Taxes)
//	})
//
// Only host defects, such as a panic inside a check or a failure to write a
// report dump, abort a stage. Those surface as *Error[T].
//
// # Entry Points
//
// The Engine exposes one entry point per booking step:
//
//	engine := farez.NewEngine(cfg)
//	report, err := engine.ValidateSearchOffer(ctx, farez.SearchInput{Response: resp, Payload: payload})
//	if err != nil {
//	    return err // tooling defect
//	}
//	if err := report.Err(); err != nil {
//	    t.Fatal(err) // every business-rule violation in one error
//	}
//
// Transaction chains the steps, carrying the selected offer, the
// FareConfirm snapshot and the saved booking context between them.
//
// # Observability
//
// Stages publish metricz counters, tracez spans and hookz events the same
// way every connector does, so a caller can watch failures as they are
// recorded without waiting for the report.
package farez

import "context"

// Chainable is the interface implemented by every check and stage.
type Chainable[T any] interface {
	Process(context.Context, T) (T, error)
	Name() Name
}

// Name is a type alias for check and stage names.
// Names appear in failure entries, span tags and Error[T].Path.
type Name = string

// Subject is implemented by stage values that carry a Collector.
// Check uses it to hand each check function a scoped Recorder.
type Subject interface {
	Collector() *Collector
}

// Processor is a named check. Processors are created through Check and
// Effect and are immutable values.
type Processor[T any] struct {
	fn   func(context.Context, T) (T, error)
	name Name
}

// Process implements the Chainable interface.
func (p Processor[T]) Process(ctx context.Context, data T) (T, error) {
	return p.fn(ctx, data)
}

// Name returns the name of the processor.
func (p Processor[T]) Name() Name {
	return p.name
}
