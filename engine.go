package farez

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Engine.
const (
	// Metrics.
	EngineRunsTotal    = metricz.Key("engine.runs.total")
	EnginePassedTotal  = metricz.Key("engine.passed.total")
	EngineFailedTotal  = metricz.Key("engine.failed.total")
	EngineSkippedTotal = metricz.Key("engine.skipped.total")
	EngineGatedTotal   = metricz.Key("engine.gated.total")

	// Spans.
	EngineValidateSpan = tracez.Key("engine.validate")

	// Tags.
	EngineTagStage    = tracez.Tag("engine.stage")
	EngineTagRunID    = tracez.Tag("engine.run_id")
	EngineTagFailures = tracez.Tag("engine.failures")
	EngineTagError    = tracez.Tag("engine.error")

	// Hook event keys.
	EngineEventFailure = hookz.Key("failure.recorded")
	EngineEventReport  = hookz.Key("report.complete")
)

// Names of the checks the engine records under itself, outside any suite.
const (
	RuleResponseStatus = "response-status"
	RuleResponseBody   = "response-body"
	RuleBookingFlow    = "booking-flow"
)

// EngineEvent is emitted via hookz for every recorded failure and once per
// finished report.
type EngineEvent struct {
	Timestamp time.Time
	Failure   *Failure  // Set for failure.recorded
	Report    *Report   // Set for report.complete
	RunID     string
	Stage     StageName
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for timestamps and durations.
func WithClock(clock clockz.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDump writes every finished report to w as indented JSON.
func WithDump(w io.Writer) Option {
	return func(e *Engine) {
		e.dump = w
	}
}

// Engine validates the responses of one booking flow, one step at a time.
//
// An Engine is built once per test case configuration and is safe for
// concurrent use: every call gets its own Collector and Report, and the
// stage suites hold no per-run state.
//
// # Observability
//
// Metrics:
//   - engine.runs.total: Counter of validation calls
//   - engine.passed.total: Counter of reports without error-severity failures
//   - engine.failed.total: Counter of reports with error-severity failures
//   - engine.skipped.total: Counter of stages skipped as a whole
//   - engine.gated.total: Counter of stages not run because of status or body
//
// Traces:
//   - engine.validate: Span per call, tagged with stage, run id and failures
//
// Events (via hooks):
//   - failure.recorded: Fired for every recorded failure
//   - report.complete: Fired once per finished report
type Engine struct {
	clock       clockz.Clock
	logger      *slog.Logger
	dump        io.Writer
	metrics     *metricz.Registry
	tracer      *tracez.Tracer
	hooks       *hookz.Hooks[EngineEvent]
	search      *Stage[*searchRun]
	fareConfirm *Stage[*fareConfirmRun]
	book        *Stage[*bookRun]
	retrieve    *Stage[*retrieveRun]
	rejection   *Stage[*rejectionRun]
	cfg         Config
}

// NewEngine creates an Engine for cfg. The configuration is validated
// first.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics := metricz.New()
	metrics.Counter(EngineRunsTotal)
	metrics.Counter(EnginePassedTotal)
	metrics.Counter(EngineFailedTotal)
	metrics.Counter(EngineSkippedTotal)
	metrics.Counter(EngineGatedTotal)

	e := &Engine{
		cfg:     cfg,
		clock:   clockz.RealClock,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[EngineEvent](),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.search = newSearchStage().WithClock(e.clock)
	e.fareConfirm = newFareConfirmStage().WithClock(e.clock)
	e.book = newBookStage().WithClock(e.clock)
	e.retrieve = newRetrieveStage().WithClock(e.clock)
	e.rejection = newRejectionStage().WithClock(e.clock)
	return e, nil
}

// Config returns the configuration the engine validates against.
func (e *Engine) Config() Config {
	return e.cfg
}

// Metrics returns the metrics registry for this engine.
func (e *Engine) Metrics() *metricz.Registry {
	return e.metrics
}

// Tracer returns the tracer for this engine.
func (e *Engine) Tracer() *tracez.Tracer {
	return e.tracer
}

// OnFailure registers a handler called asynchronously for every recorded
// failure.
func (e *Engine) OnFailure(handler func(context.Context, EngineEvent) error) error {
	_, err := e.hooks.Hook(EngineEventFailure, handler)
	return err
}

// OnReport registers a handler called asynchronously for every finished
// report.
func (e *Engine) OnReport(handler func(context.Context, EngineEvent) error) error {
	_, err := e.hooks.Hook(EngineEventReport, handler)
	return err
}

// Close shuts down observability components of the engine and its stages.
func (e *Engine) Close() error {
	e.search.Close()
	e.fareConfirm.Close()
	e.book.Close()
	e.retrieve.Close()
	e.rejection.Close()
	e.tracer.Close()
	e.hooks.Close()
	return nil
}

// gate describes whether a response may be validated at all.
type gate struct {
	status    int  // HTTP status, zero when unknown
	present   bool // whether a response body was received
	rejection bool // the request was meant to be refused
	skip      string
}

// expectedStatus is the status the response must carry, zero for any.
func (g gate) expectedStatus(cfg Config) int {
	if g.rejection {
		return cfg.RejectionStatus
	}
	return cfg.ExpectedStatus
}

// validate runs one stage suite over value and builds its Report. Findings
// never surface as the returned error; only host defects do.
func validate[T Subject](ctx context.Context, e *Engine, stage *Stage[T], name StageName, g gate, value T) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := uuid.NewString()
	started := e.clock.Now()
	logger := e.logger.With("run_id", runID, "stage", string(name))

	e.metrics.Counter(EngineRunsTotal).Inc()
	ctx, span := e.tracer.StartSpan(ctx, EngineValidateSpan)
	defer span.Finish()
	span.SetTag(EngineTagStage, string(name))
	span.SetTag(EngineTagRunID, runID)

	collector := value.Collector()
	collector.onFailure = func(f Failure) {
		switch {
		case f.Kind == KindPrerequisiteSkip:
			logger.Info("check skipped", "check", f.Check, "reason", f.Message)
		case f.Severity == SeverityWarning:
			logger.Warn(f.Message, "check", f.Check, "path", f.Path)
		default:
			logger.Debug(f.Message, "check", f.Check, "path", f.Path, "kind", f.Kind.String())
		}
		_ = e.hooks.Emit(ctx, EngineEventFailure, EngineEvent{ //nolint:errcheck
			Timestamp: f.Timestamp,
			RunID:     runID,
			Stage:     name,
			Failure:   &f,
		})
	}
	collector.onNote = func(n Note) {
		logger.Info(n.Message, "check", n.Check, "path", n.Path)
	}

	report := &Report{Started: started, RunID: runID, Stage: name}

	want := g.expectedStatus(e.cfg)
	switch {
	case want != 0 && g.status != 0 && g.status != want:
		e.metrics.Counter(EngineGatedTotal).Inc()
		collector.Recorder(RuleResponseStatus).Mismatch(Root,
			fmt.Sprintf("%s returned an unexpected HTTP status; suite not run", name),
			want, g.status)
	case !g.present:
		e.metrics.Counter(EngineGatedTotal).Inc()
		collector.Recorder(RuleResponseBody).Missing(Root, "%s response body is empty; suite not run", name)
	case g.skip != "":
		e.metrics.Counter(EngineSkippedTotal).Inc()
		report.SkipReason = g.skip
		collector.Recorder(RuleBookingFlow).Skip("%s", g.skip)
	default:
		if _, err := stage.Process(ctx, value); err != nil {
			span.SetTag(EngineTagError, err.Error())
			logger.Error("validation aborted", "error", err)
			return nil, err
		}
	}

	report.Failures = collector.Failures()
	report.Notes = collector.Notes()
	report.Duration = e.clock.Since(started)

	if report.Passed() {
		e.metrics.Counter(EnginePassedTotal).Inc()
	} else {
		e.metrics.Counter(EngineFailedTotal).Inc()
	}
	span.SetTag(EngineTagFailures, fmt.Sprintf("%d", len(report.Errors())))
	logger.Info("stage validated",
		"failures", len(report.Errors()),
		"warnings", len(report.Warnings()),
		"skips", len(report.Skips()),
		"duration", report.Duration,
	)

	if e.dump != nil {
		w := e.dump
		dump := Effect("dump", func(_ context.Context, r *Report) error {
			return r.Dump(w)
		})
		if _, err := dump.Process(ctx, report); err != nil {
			span.SetTag(EngineTagError, err.Error())
			return nil, err
		}
	}

	_ = e.hooks.Emit(ctx, EngineEventReport, EngineEvent{ //nolint:errcheck
		Timestamp: e.clock.Now(),
		RunID:     runID,
		Stage:     name,
		Report:    report,
	})
	return report, nil
}

// newCollector returns a collector stamped with the engine clock.
func (e *Engine) newCollector() *Collector {
	return NewCollector().WithClock(e.clock)
}
