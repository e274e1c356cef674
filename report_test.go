package farez

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func sampleReport() *Report {
	return &Report{
		Stage: StageSearch,
		RunID: "run-1",
		Failures: []Failure{
			{Check: "a", Kind: KindAssertion, Message: "broken"},
			{Check: "b", Kind: KindMissingData, Message: "absent"},
			{Check: "b", Kind: KindAssertion, Severity: SeverityWarning, Message: "odd"},
			{Check: "c", Kind: KindPrerequisiteSkip, Message: "n/a"},
		},
		Notes: []Note{{Check: "d", Message: "fyi"}},
	}
}

func TestReport(t *testing.T) {
	t.Run("Partitions Entries", func(t *testing.T) {
		r := sampleReport()
		if got := len(r.Errors()); got != 2 {
			t.Errorf("expected 2 errors, got %d", got)
		}
		if got := len(r.Warnings()); got != 1 {
			t.Errorf("expected 1 warning, got %d", got)
		}
		if got := len(r.Skips()); got != 1 {
			t.Errorf("expected 1 skip, got %d", got)
		}
		if got := len(r.ByCheck("b")); got != 2 {
			t.Errorf("expected 2 entries from b, got %d", got)
		}
		if r.Passed() {
			t.Error("report with errors must not pass")
		}
	})

	t.Run("Err Aggregates Every Error", func(t *testing.T) {
		err := sampleReport().Err()
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected *ValidationError, got %T", err)
		}
		if len(verr.Failures) != 2 {
			t.Errorf("expected 2 failures, got %d", len(verr.Failures))
		}
		msg := err.Error()
		if !strings.Contains(msg, "search validation failed with 2 failure(s) [run run-1]") {
			t.Errorf("unexpected header in %q", msg)
		}
		if !strings.Contains(msg, "broken") || !strings.Contains(msg, "absent") {
			t.Errorf("expected both failures in %q", msg)
		}
		if strings.Contains(msg, "odd") || strings.Contains(msg, "n/a") {
			t.Errorf("warnings and skips must not be in %q", msg)
		}
	})

	t.Run("Skips And Warnings Pass", func(t *testing.T) {
		r := &Report{Failures: []Failure{
			{Check: "a", Kind: KindPrerequisiteSkip},
			{Check: "b", Kind: KindAssertion, Severity: SeverityWarning},
		}}
		if !r.Passed() {
			t.Error("expected report to pass")
		}
		if err := r.Err(); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("Summary", func(t *testing.T) {
		r := sampleReport()
		if got := r.Summary(); !strings.HasPrefix(got, "search: 2 error(s), 1 warning(s), 1 skip(s), 1 note(s)") {
			t.Errorf("unexpected summary %q", got)
		}
		skipped := &Report{Stage: StageBook, SkipReason: "hold flow"}
		if got := skipped.Summary(); got != "book skipped: hold flow" {
			t.Errorf("unexpected summary %q", got)
		}
	})

	t.Run("Dump", func(t *testing.T) {
		var buf bytes.Buffer
		if err := sampleReport().Dump(&buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("dump is not JSON: %v", err)
		}
		failures := decoded["failures"].([]any)
		first := failures[0].(map[string]any)
		if first["kind"] != "assertion" || first["severity"] != "error" {
			t.Errorf("kind and severity should render by name, got %v", first)
		}
	})
}
