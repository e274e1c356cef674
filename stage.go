package farez

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Stage runner.
const (
	// Metrics.
	StageProcessedTotal = metricz.Key("stage.processed.total")
	StageChecksTotal    = metricz.Key("stage.checks.total")
	StageFailuresTotal  = metricz.Key("stage.failures.total")
	StageSkipsTotal     = metricz.Key("stage.skips.total")
	StageAbortedTotal   = metricz.Key("stage.aborted.total")
	StageDurationMs     = metricz.Key("stage.duration.ms")

	// Spans.
	StageProcessSpan = tracez.Key("stage.process")
	StageCheckSpan   = tracez.Key("stage.check")

	// Tags.
	StageTagName       = tracez.Tag("stage.name")
	StageTagCheckCount = tracez.Tag("stage.check_count")
	StageTagCheckName  = tracez.Tag("stage.check_name")
	StageTagFailures   = tracez.Tag("stage.failures")
	StageTagError      = tracez.Tag("stage.error")

	// Hook event keys.
	StageEventCheckComplete = hookz.Key("stage.check_complete")
	StageEventComplete      = hookz.Key("stage.complete")
)

// StageEvent is emitted via hookz as each check finishes and once the whole
// stage has run.
type StageEvent struct {
	Timestamp     time.Time     // When the event occurred
	Error         error         // Host error that aborted the stage, if any
	Name          Name          // Stage name
	CheckName     Name          // Check that just finished (check_complete only)
	CheckNumber   int           // 1-based position of the check
	TotalChecks   int           // Checks registered on the stage
	Failures      int           // Entries recorded by this check, or by the stage for complete
	Duration      time.Duration // Check duration, or total stage duration for complete
	ChecksCounted int           // Checks that ran to completion
}

// Stage runs an ordered list of checks over one stage value.
//
// Unlike a fail-fast pipeline, a Stage always runs every check: findings go
// to the value's Collector and never interrupt the run. Only a host error
// (a panic, a canceled context, a failing Effect) stops it early.
//
// # Observability
//
// Metrics:
//   - stage.processed.total: Counter of stage runs
//   - stage.checks.total: Counter of checks executed
//   - stage.failures.total: Counter of error-severity failures recorded
//   - stage.skips.total: Counter of prerequisite skips recorded
//   - stage.aborted.total: Counter of runs stopped by a host error
//   - stage.duration.ms: Gauge of the last run's duration
//
// Traces:
//   - stage.process: Parent span for the whole run
//   - stage.check: Child span per check, tagged with its failure count
//
// Events (via hooks):
//   - stage.check_complete: Fired as each check finishes
//   - stage.complete: Fired once the run ends, successfully or not
type Stage[T Subject] struct {
	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[StageEvent]
	name    Name
	checks  []Chainable[T]
	mu      sync.RWMutex
}

// NewStage creates a Stage with optional initial checks.
func NewStage[T Subject](name Name, checks ...Chainable[T]) *Stage[T] {
	metrics := metricz.New()
	metrics.Counter(StageProcessedTotal)
	metrics.Counter(StageChecksTotal)
	metrics.Counter(StageFailuresTotal)
	metrics.Counter(StageSkipsTotal)
	metrics.Counter(StageAbortedTotal)
	metrics.Gauge(StageDurationMs)

	return &Stage[T]{
		name:    name,
		checks:  slices.Clone(checks),
		clock:   clockz.RealClock,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[StageEvent](),
	}
}

// WithClock sets the clock used for durations and event timestamps.
func (s *Stage[T]) WithClock(clock clockz.Clock) *Stage[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// Register appends checks to the stage.
func (s *Stage[T]) Register(checks ...Chainable[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, checks...)
}

// Process runs every check in order against value.
func (s *Stage[T]) Process(ctx context.Context, value T) (result T, err error) {
	s.mu.RLock()
	checks := slices.Clone(s.checks)
	clock := s.clock
	s.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}

	collector := value.Collector()
	before := collector.Len()
	completed := 0

	s.metrics.Counter(StageProcessedTotal).Inc()
	start := clock.Now()

	ctx, span := s.tracer.StartSpan(ctx, StageProcessSpan)
	span.SetTag(StageTagName, string(s.name))
	span.SetTag(StageTagCheckCount, fmt.Sprintf("%d", len(checks)))
	defer func() {
		elapsed := clock.Since(start)
		s.metrics.Gauge(StageDurationMs).Set(float64(elapsed.Milliseconds()))
		recorded := collector.Failures()[before:]
		span.SetTag(StageTagFailures, fmt.Sprintf("%d", len(recorded)))
		if err != nil {
			s.metrics.Counter(StageAbortedTotal).Inc()
			span.SetTag(StageTagError, err.Error())
		}
		span.Finish()

		_ = s.hooks.Emit(ctx, StageEventComplete, StageEvent{ //nolint:errcheck
			Name:          s.name,
			TotalChecks:   len(checks),
			ChecksCounted: completed,
			Failures:      len(recorded),
			Duration:      elapsed,
			Error:         err,
			Timestamp:     clock.Now(),
		})
	}()

	result = value
	for i, check := range checks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, &Error[T]{
				Err:       ctxErr,
				InputData: value,
				Path:      []Name{s.name},
				Timeout:   errors.Is(ctxErr, context.DeadlineExceeded),
				Canceled:  errors.Is(ctxErr, context.Canceled),
				Timestamp: clock.Now(),
			}
		}

		checkCtx, checkSpan := s.tracer.StartSpan(ctx, StageCheckSpan)
		checkSpan.SetTag(StageTagCheckName, string(check.Name()))

		mark := collector.Len()
		checkStart := clock.Now()
		result, err = s.run(checkCtx, check, result)
		checkDuration := clock.Since(checkStart)

		recorded := collector.Failures()[mark:]
		s.metrics.Counter(StageChecksTotal).Inc()
		for j := range recorded {
			switch {
			case recorded[j].Kind == KindPrerequisiteSkip:
				s.metrics.Counter(StageSkipsTotal).Inc()
			case recorded[j].IsError():
				s.metrics.Counter(StageFailuresTotal).Inc()
			}
		}
		checkSpan.SetTag(StageTagFailures, fmt.Sprintf("%d", len(recorded)))
		checkSpan.Finish()

		_ = s.hooks.Emit(ctx, StageEventCheckComplete, StageEvent{ //nolint:errcheck
			Name:        s.name,
			CheckName:   check.Name(),
			CheckNumber: i + 1,
			TotalChecks: len(checks),
			Failures:    len(recorded),
			Duration:    checkDuration,
			Error:       err,
			Timestamp:   clock.Now(),
		})

		if err != nil {
			var stageErr *Error[T]
			if errors.As(err, &stageErr) {
				stageErr.Path = append([]Name{s.name}, stageErr.Path...)
				return result, stageErr
			}
			return result, &Error[T]{
				Timestamp: clock.Now(),
				InputData: value,
				Err:       err,
				Path:      []Name{s.name, check.Name()},
				Duration:  checkDuration,
			}
		}
		completed++
	}

	return result, nil
}

// run executes one check, converting a panic into an *Error[T].
func (*Stage[T]) run(ctx context.Context, check Chainable[T], value T) (result T, err error) {
	defer recoverFromPanic(&result, &err, check.Name(), value)
	return check.Process(ctx, value)
}

// Len returns the number of registered checks.
func (s *Stage[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.checks)
}

// Names returns the names of all checks in order.
func (s *Stage[T]) Names() []Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]Name, len(s.checks))
	for i, check := range s.checks {
		names[i] = check.Name()
	}
	return names
}

// Remove removes the first check with the given name.
func (s *Stage[T]) Remove(name Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, check := range s.checks {
		if check.Name() == name {
			s.checks = slices.Delete(s.checks, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("check %q not found", name)
}

// Name returns the name of this stage.
func (s *Stage[T]) Name() Name {
	return s.name
}

// Metrics returns the metrics registry for this stage.
func (s *Stage[T]) Metrics() *metricz.Registry {
	return s.metrics
}

// Tracer returns the tracer for this stage.
func (s *Stage[T]) Tracer() *tracez.Tracer {
	return s.tracer
}

// OnCheckComplete registers a handler called asynchronously as each check
// finishes.
func (s *Stage[T]) OnCheckComplete(handler func(context.Context, StageEvent) error) error {
	_, err := s.hooks.Hook(StageEventCheckComplete, handler)
	return err
}

// OnComplete registers a handler called asynchronously when a run ends.
func (s *Stage[T]) OnComplete(handler func(context.Context, StageEvent) error) error {
	_, err := s.hooks.Hook(StageEventComplete, handler)
	return err
}

// Close shuts down observability components.
func (s *Stage[T]) Close() error {
	if s.tracer != nil {
		s.tracer.Close()
	}
	s.hooks.Close()
	return nil
}
