package farez

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracez"
)

func failing(name Name, messages ...string) Processor[*testRun] {
	return Check(name, func(_ context.Context, run *testRun, rec Recorder) {
		run.n++
		for _, m := range messages {
			rec.Fail(Root, "%s", m)
		}
	})
}

func TestStage(t *testing.T) {
	t.Run("Runs Every Check", func(t *testing.T) {
		stage := NewStage("suite",
			failing("first", "broken"),
			failing("second"),
			failing("third", "also broken", "twice"),
		)
		defer stage.Close()

		run := newTestRun()
		result, err := stage.Process(context.Background(), run)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.n != 3 {
			t.Errorf("expected all 3 checks to run, ran %d", result.n)
		}
		if got := run.collector.Len(); got != 3 {
			t.Errorf("expected 3 failures, got %d", got)
		}
	})

	t.Run("Register Names Remove", func(t *testing.T) {
		stage := NewStage[*testRun]("suite")
		stage.Register(failing("a"), failing("b"), failing("c"))

		if !reflect.DeepEqual(stage.Names(), []Name{"a", "b", "c"}) {
			t.Errorf("unexpected names %v", stage.Names())
		}
		if err := stage.Remove("b"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stage.Len() != 2 {
			t.Errorf("expected 2 checks, got %d", stage.Len())
		}
		if err := stage.Remove("missing"); err == nil {
			t.Error("expected error removing unknown check")
		}
	})

	t.Run("Panic Becomes Error", func(t *testing.T) {
		stage := NewStage("suite",
			failing("before"),
			Check("explode", func(_ context.Context, _ *testRun, _ Recorder) {
				panic("boom")
			}),
			failing("after"),
		)
		defer stage.Close()

		run := newTestRun()
		_, err := stage.Process(context.Background(), run)
		var stageErr *Error[*testRun]
		if !errors.As(err, &stageErr) {
			t.Fatalf("expected *Error, got %T: %v", err, err)
		}
		if !reflect.DeepEqual(stageErr.Path, []Name{"suite", "explode"}) {
			t.Errorf("unexpected path %v", stageErr.Path)
		}
		if run.n != 1 {
			t.Errorf("checks after a panic must not run, ran %d", run.n)
		}
		if stage.Metrics().Counter(StageAbortedTotal).Value() != 1 {
			t.Error("expected aborted counter to be 1")
		}
	})

	t.Run("Effect Error Is Wrapped", func(t *testing.T) {
		errDump := errors.New("disk full")
		stage := NewStage("suite",
			Effect("dump", func(_ context.Context, _ *testRun) error { return errDump }),
		)
		defer stage.Close()

		_, err := stage.Process(context.Background(), newTestRun())
		if !errors.Is(err, errDump) {
			t.Fatalf("expected wrapped errDump, got %v", err)
		}
		var stageErr *Error[*testRun]
		if errors.As(err, &stageErr) && stageErr.Path[0] != "suite" {
			t.Errorf("expected path to start with stage name, got %v", stageErr.Path)
		}
	})

	t.Run("Canceled Context", func(t *testing.T) {
		stage := NewStage("suite", failing("a"), failing("b"))
		defer stage.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		run := newTestRun()
		_, err := stage.Process(ctx, run)
		var stageErr *Error[*testRun]
		if !errors.As(err, &stageErr) {
			t.Fatalf("expected *Error, got %v", err)
		}
		if !stageErr.IsCanceled() {
			t.Error("expected canceled error")
		}
		if run.n != 0 {
			t.Errorf("no check should run on a canceled context, ran %d", run.n)
		}
	})

	t.Run("Metrics And Spans", func(t *testing.T) {
		skip := NewPrerequisite("guard",
			func(_ context.Context, _ *testRun) (bool, string) { return false, "not today" },
			failing("guarded"),
		)
		stage := NewStage("suite",
			failing("one", "x"),
			failing("two"),
			skip,
		)
		defer stage.Close()

		var spans []tracez.Span
		var spanMu sync.Mutex
		stage.Tracer().OnSpanComplete(func(span tracez.Span) {
			spanMu.Lock()
			spans = append(spans, span)
			spanMu.Unlock()
		})

		if _, err := stage.Process(context.Background(), newTestRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if v := stage.Metrics().Counter(StageProcessedTotal).Value(); v != 1 {
			t.Errorf("expected 1 run, got %f", v)
		}
		if v := stage.Metrics().Counter(StageChecksTotal).Value(); v != 3 {
			t.Errorf("expected 3 checks, got %f", v)
		}
		if v := stage.Metrics().Counter(StageFailuresTotal).Value(); v != 1 {
			t.Errorf("expected 1 failure, got %f", v)
		}
		if v := stage.Metrics().Counter(StageSkipsTotal).Value(); v != 1 {
			t.Errorf("expected 1 skip, got %f", v)
		}

		spanMu.Lock()
		defer spanMu.Unlock()
		if len(spans) != 4 {
			t.Fatalf("expected 4 spans (1 stage + 3 checks), got %d", len(spans))
		}
		for _, span := range spans {
			switch span.Name {
			case StageProcessSpan:
				if span.Tags[StageTagCheckCount] != "3" {
					t.Errorf("expected check_count 3, got %q", span.Tags[StageTagCheckCount])
				}
				if span.Tags[StageTagFailures] != "2" {
					t.Errorf("expected 2 entries on stage span, got %q", span.Tags[StageTagFailures])
				}
			case StageCheckSpan:
				if _, ok := span.Tags[StageTagCheckName]; !ok {
					t.Error("check span missing check_name tag")
				}
			}
		}
	})

	t.Run("Hooks", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		stage := NewStage("suite", failing("a", "x"), failing("b")).WithClock(clock)
		defer stage.Close()

		var mu sync.Mutex
		var checks []StageEvent
		var complete *StageEvent
		if err := stage.OnCheckComplete(func(_ context.Context, e StageEvent) error {
			mu.Lock()
			checks = append(checks, e)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		if err := stage.OnComplete(func(_ context.Context, e StageEvent) error {
			mu.Lock()
			complete = &e
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatal(err)
		}

		if _, err := stage.Process(context.Background(), newTestRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			done := complete != nil && len(checks) == 2
			mu.Unlock()
			if done {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}

		mu.Lock()
		defer mu.Unlock()
		if len(checks) != 2 {
			t.Fatalf("expected 2 check events, got %d", len(checks))
		}
		if complete == nil {
			t.Fatal("expected complete event")
		}
		if complete.TotalChecks != 2 || complete.ChecksCounted != 2 || complete.Failures != 1 {
			t.Errorf("unexpected complete event %+v", *complete)
		}
	})

	t.Run("Nested Stage", func(t *testing.T) {
		inner := NewStage("inner", failing("x", "bad"), failing("y"))
		outer := NewStage("outer", failing("first"), inner, failing("last"))
		defer outer.Close()
		defer inner.Close()

		run := newTestRun()
		if _, err := outer.Process(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.n != 4 {
			t.Errorf("expected 4 checks to run, got %d", run.n)
		}
		if run.collector.Failures()[0].Check != "x" {
			t.Error("nested failures keep their check name")
		}
	})
}
