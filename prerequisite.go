package farez

import (
	"context"
	"sync"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Prerequisite connector.
const (
	PrerequisiteProcessedTotal = metricz.Key("prerequisite.processed.total")
	PrerequisiteMetTotal       = metricz.Key("prerequisite.met.total")
	PrerequisiteSkippedTotal   = metricz.Key("prerequisite.skipped.total")

	PrerequisiteProcessSpan = tracez.Key("prerequisite.process")

	PrerequisiteTagCheck  = tracez.Tag("prerequisite.check")
	PrerequisiteTagMet    = tracez.Tag("prerequisite.met")
	PrerequisiteTagReason = tracez.Tag("prerequisite.reason")
)

// Condition decides whether a guarded check applies to a stage value. When
// it does not, reason explains why and is recorded as a skip.
type Condition[T any] func(ctx context.Context, value T) (ok bool, reason string)

// Prerequisite runs a check only when its condition holds. Otherwise it
// records exactly one KindPrerequisiteSkip entry under the check's name, so
// "not applicable here" is reported distinctly from a violated rule and the
// rest of the stage carries on.
//
// Example:
//
//	fareConfirmMatch := farez.NewPrerequisite("fare-confirm-snapshot",
//	    func(_ context.Context, run *bookRun) (bool, string) {
//	        return run.FareConfirm != nil, "no FareConfirm snapshot for this offer"
//	    },
//	    compareWithFareConfirm,
//	)
type Prerequisite[T Subject] struct {
	check     Chainable[T]
	condition Condition[T]
	metrics   *metricz.Registry
	tracer    *tracez.Tracer
	name      Name
	mu        sync.RWMutex
}

// NewPrerequisite creates a Prerequisite guarding check.
func NewPrerequisite[T Subject](name Name, condition Condition[T], check Chainable[T]) *Prerequisite[T] {
	registry := metricz.New()
	registry.Counter(PrerequisiteProcessedTotal)
	registry.Counter(PrerequisiteMetTotal)
	registry.Counter(PrerequisiteSkippedTotal)

	return &Prerequisite[T]{
		name:      name,
		condition: condition,
		check:     check,
		metrics:   registry,
		tracer:    tracez.New(),
	}
}

// Process evaluates the condition and runs the guarded check when it holds.
func (p *Prerequisite[T]) Process(ctx context.Context, value T) (T, error) {
	p.mu.RLock()
	condition := p.condition
	check := p.check
	p.mu.RUnlock()

	ctx, span := p.tracer.StartSpan(ctx, PrerequisiteProcessSpan)
	defer span.Finish()
	span.SetTag(PrerequisiteTagCheck, string(check.Name()))

	p.metrics.Counter(PrerequisiteProcessedTotal).Inc()

	ok, reason := condition(ctx, value)
	if !ok {
		p.metrics.Counter(PrerequisiteSkippedTotal).Inc()
		span.SetTag(PrerequisiteTagMet, "false")
		span.SetTag(PrerequisiteTagReason, reason)
		value.Collector().Recorder(check.Name()).Skip("%s", reason)
		return value, nil
	}

	p.metrics.Counter(PrerequisiteMetTotal).Inc()
	span.SetTag(PrerequisiteTagMet, "true")
	return check.Process(ctx, value)
}

// Name returns the name of this connector.
func (p *Prerequisite[T]) Name() Name {
	return p.name
}

// Metrics returns the metrics registry for this connector.
func (p *Prerequisite[T]) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer returns the tracer for this connector.
func (p *Prerequisite[T]) Tracer() *tracez.Tracer {
	return p.tracer
}

// Close shuts down observability components.
func (p *Prerequisite[T]) Close() error {
	if p.tracer != nil {
		p.tracer.Close()
	}
	return nil
}
