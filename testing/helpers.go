// Package testing provides fixtures and assertion helpers for code that
// validates booking flows with farez.
//
// The fixtures are complete, internally consistent response trees for each
// step of one booking: two passenger types, one non-stop journey, all
// amounts in USD. Tests mutate a tree to break exactly one rule, encode it
// and assert on the resulting report.
//
// Example usage:
//
//	func TestUnsortedOffers(t *testing.T) {
//		tree := fareztesting.SearchResponse()
//		offers := tree["offers"].([]any)
//		offers[0], offers[1] = offers[1], offers[0]
//
//		resp, err := farez.ParseSearchResponse(fareztesting.Marshal(t, tree))
//		if err != nil {
//			t.Fatal(err)
//		}
//		report, err := engine.ValidateSearchOffer(ctx, farez.SearchInput{Response: resp})
//		if err != nil {
//			t.Fatal(err)
//		}
//		fareztesting.AssertFailure(t, report, farez.RuleOffersSorted)
//	}
package testing

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/farez"
)

// MockCheck is a configurable check for exercising stages. It counts calls,
// records the failures it is told to record and can return an error or
// panic.
type MockCheck[T farez.Subject] struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t         *testing.T
	name      string
	callCount int64
	failures  []string
	returnErr error
	panicMsg  string
	delay     time.Duration
	mu        sync.RWMutex
}

// NewMockCheck creates a mock check that records nothing.
func NewMockCheck[T farez.Subject](t *testing.T, name string) *MockCheck[T] {
	return &MockCheck[T]{t: t, name: name}
}

// WithFailures makes every call record one assertion failure per message.
func (m *MockCheck[T]) WithFailures(messages ...string) *MockCheck[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = messages
	return m
}

// WithError makes every call return err as a host error.
func (m *MockCheck[T]) WithError(err error) *MockCheck[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnErr = err
	return m
}

// WithPanic makes every call panic with msg.
func (m *MockCheck[T]) WithPanic(msg string) *MockCheck[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithDelay makes every call wait, honoring context cancellation.
func (m *MockCheck[T]) WithDelay(d time.Duration) *MockCheck[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Name returns the check name.
func (m *MockCheck[T]) Name() farez.Name {
	return m.name
}

// Process implements farez.Chainable.
func (m *MockCheck[T]) Process(ctx context.Context, value T) (T, error) {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.RLock()
	failures, err, panicMsg, delay := m.failures, m.returnErr, m.panicMsg, m.delay
	m.mu.RUnlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return value, ctx.Err()
		}
	}
	rec := value.Collector().Recorder(m.name)
	for _, msg := range failures {
		rec.Fail(farez.Root, "%s", msg)
	}
	return value, err
}

// CallCount returns how many times the check ran.
func (m *MockCheck[T]) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// AssertCalled fails the test unless the mock ran exactly n times.
func AssertCalled[T farez.Subject](t *testing.T, mock *MockCheck[T], n int) {
	t.Helper()
	if got := mock.CallCount(); got != n {
		t.Errorf("expected check %s to run %d times, but it ran %d times", mock.name, n, got)
	}
}

// AssertNoFailures fails the test when the report holds any error-severity
// failure, listing all of them.
func AssertNoFailures(t *testing.T, report *farez.Report) {
	t.Helper()
	if report == nil {
		t.Fatal("report is nil")
	}
	if err := report.Err(); err != nil {
		t.Errorf("expected no failures, got:\n%v", err)
	}
}

// AssertFailure fails the test unless check recorded at least one
// error-severity failure, and returns the first one.
func AssertFailure(t *testing.T, report *farez.Report, check string) farez.Failure {
	t.Helper()
	for _, f := range report.ByCheck(check) {
		if f.IsError() {
			return f
		}
	}
	t.Errorf("expected a failure from %s, got %s", check, describe(report))
	return farez.Failure{}
}

// AssertNoFailure fails the test when check recorded an error-severity
// failure.
func AssertNoFailure(t *testing.T, report *farez.Report, check string) {
	t.Helper()
	for _, f := range report.ByCheck(check) {
		if f.IsError() {
			t.Errorf("expected no failure from %s, got %s", check, f)
		}
	}
}

// AssertKind fails the test unless check recorded an entry of kind, and
// returns the first one.
func AssertKind(t *testing.T, report *farez.Report, check string, kind farez.FailureKind) farez.Failure {
	t.Helper()
	for _, f := range report.ByCheck(check) {
		if f.Kind == kind {
			return f
		}
	}
	t.Errorf("expected a %s entry from %s, got %s", kind, check, describe(report))
	return farez.Failure{}
}

// AssertMessageContains fails the test unless check recorded an entry whose
// message contains substr.
func AssertMessageContains(t *testing.T, report *farez.Report, check, substr string) {
	t.Helper()
	for _, f := range report.ByCheck(check) {
		if strings.Contains(f.Message, substr) {
			return
		}
	}
	t.Errorf("expected a %s entry containing %q, got %s", check, substr, describe(report))
}

func describe(report *farez.Report) string {
	if len(report.Failures) == 0 {
		return "no entries"
	}
	lines := make([]string, len(report.Failures))
	for i, f := range report.Failures {
		lines[i] = f.String()
	}
	return "\n  " + strings.Join(lines, "\n  ")
}

// Marshal encodes v as JSON, failing the test on error.
func Marshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

// WaitFor polls cond until it holds or the timeout passes. Hook handlers run
// asynchronously, so tests observing them wait this way.
func WaitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// ParallelTest runs testFunc in parallel goroutines and waits for all of
// them.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}

	wg.Wait()
}
