package farez

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// testRun is the smallest stage value: a collector and a counter.
type testRun struct {
	collector *Collector
	n         int
}

func (r *testRun) Collector() *Collector { return r.collector }

func newTestRun() *testRun {
	return &testRun{collector: NewCollector()}
}

func TestRecorder(t *testing.T) {
	t.Run("Entries Carry Check Name", func(t *testing.T) {
		c := NewCollector()
		rec := c.Recorder("totals")

		rec.Fail("$.offers[0]", "total %s is wrong", "330.00")
		rec.Mismatch("$.offers[0].total", "total mismatch", "330.00", "331.00")
		rec.Missing("$.offers[0].priceDetails", "priceDetails is missing")
		rec.Malformed("$.offers[0].base", "abc", errors.New("not a number"))
		rec.Skip("no payload")
		rec.Warn("$.offers", "odd but legal")

		failures := c.Failures()
		if len(failures) != 6 {
			t.Fatalf("expected 6 entries, got %d", len(failures))
		}
		for _, f := range failures {
			if f.Check != "totals" {
				t.Errorf("expected check totals, got %q", f.Check)
			}
		}

		kinds := []FailureKind{KindAssertion, KindAssertion, KindMissingData, KindMalformed, KindPrerequisiteSkip, KindAssertion}
		for i, want := range kinds {
			if failures[i].Kind != want {
				t.Errorf("entry %d: expected kind %s, got %s", i, want, failures[i].Kind)
			}
		}
		if failures[0].Message != "total 330.00 is wrong" {
			t.Errorf("unexpected message %q", failures[0].Message)
		}
		if failures[1].Expected != "330.00" || failures[1].Actual != "331.00" {
			t.Errorf("unexpected mismatch values %q / %q", failures[1].Expected, failures[1].Actual)
		}
		if !strings.Contains(failures[3].Message, `"abc"`) {
			t.Errorf("malformed message should quote the raw value, got %q", failures[3].Message)
		}
		if failures[5].Severity != SeverityWarning {
			t.Errorf("expected warning severity, got %s", failures[5].Severity)
		}
	})

	t.Run("Zero Recorder Discards", func(t *testing.T) {
		var rec Recorder
		rec.Fail(Root, "nothing")
		rec.Info(Root, "nothing")
		if rec.Check() != "" {
			t.Errorf("expected empty check name, got %q", rec.Check())
		}
	})

	t.Run("Notes Are Separate", func(t *testing.T) {
		c := NewCollector()
		c.Recorder("tolerance").Info("$.total", "differs by %s", "0.01")

		if c.Len() != 0 {
			t.Errorf("notes must not count as failures, got %d", c.Len())
		}
		notes := c.Notes()
		if len(notes) != 1 || notes[0].Check != "tolerance" {
			t.Errorf("unexpected notes %+v", notes)
		}
	})

	t.Run("Timestamps Use Clock", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		c := NewCollector().WithClock(clock)

		c.Recorder("a").Fail(Root, "first")
		clock.Advance(time.Minute)
		c.Recorder("a").Fail(Root, "second")

		failures := c.Failures()
		if got := failures[1].Timestamp.Sub(failures[0].Timestamp); got != time.Minute {
			t.Errorf("expected one minute between entries, got %v", got)
		}
	})

	t.Run("Failures Returns Copy", func(t *testing.T) {
		c := NewCollector()
		c.Recorder("a").Fail(Root, "x")
		got := c.Failures()
		got[0].Message = "changed"
		if c.Failures()[0].Message != "x" {
			t.Error("Failures must return a copy")
		}
	})

	t.Run("Concurrent Recording", func(t *testing.T) {
		c := NewCollector()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Recorder("parallel").Fail(Root, "x")
			}()
		}
		wg.Wait()
		if c.Len() != 50 {
			t.Errorf("expected 50 failures, got %d", c.Len())
		}
	})
}

func TestFailure(t *testing.T) {
	t.Run("IsError", func(t *testing.T) {
		cases := []struct {
			f    Failure
			want bool
		}{
			{Failure{Kind: KindAssertion}, true},
			{Failure{Kind: KindMissingData}, true},
			{Failure{Kind: KindMalformed}, true},
			{Failure{Kind: KindPrerequisiteSkip}, false},
			{Failure{Kind: KindAssertion, Severity: SeverityWarning}, false},
		}
		for _, tc := range cases {
			if got := tc.f.IsError(); got != tc.want {
				t.Errorf("%s/%s: expected IsError %v, got %v", tc.f.Kind, tc.f.Severity, tc.want, got)
			}
		}
	})

	t.Run("String", func(t *testing.T) {
		f := Failure{
			Check:    "fare-arithmetic",
			Kind:     KindAssertion,
			Path:     "$.offers[0].priceDetails",
			Message:  "total mismatch",
			Expected: "330.00",
			Actual:   "331.00",
		}
		want := "[assertion/fare-arithmetic] total mismatch at $.offers[0].priceDetails (expected [330.00] but found [331.00])"
		if got := f.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("Kind And Severity Names", func(t *testing.T) {
		if KindPrerequisiteSkip.String() != "skip" {
			t.Errorf("unexpected kind name %q", KindPrerequisiteSkip)
		}
		if FailureKind(42).String() != "kind(42)" {
			t.Errorf("unexpected unknown kind name %q", FailureKind(42))
		}
		text, err := SeverityWarning.MarshalText()
		if err != nil || string(text) != "warning" {
			t.Errorf("unexpected severity text %q, %v", text, err)
		}
	})
}
