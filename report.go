package farez

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StageName identifies a booking step.
type StageName string

// Booking steps, in transaction order.
const (
	StageSearch      StageName = "search"
	StageFareConfirm StageName = "fare-confirm"
	StageBook        StageName = "book"
	StageRetrieve    StageName = "retrieve"
)

// Report is the aggregated outcome of one stage run. It is returned whole,
// never streamed.
type Report struct {
	Started    time.Time     `json:"started"`
	RunID      string        `json:"run_id"`
	Stage      StageName     `json:"stage"`
	SkipReason string        `json:"skip_reason,omitempty"`
	Failures   []Failure     `json:"failures"`
	Notes      []Note        `json:"notes,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Errors returns the error-severity failures.
func (r *Report) Errors() []Failure {
	return r.filter(func(f Failure) bool { return f.IsError() })
}

// Warnings returns the warning-severity failures.
func (r *Report) Warnings() []Failure {
	return r.filter(func(f Failure) bool {
		return f.Severity == SeverityWarning && f.Kind != KindPrerequisiteSkip
	})
}

// Skips returns the prerequisite skips.
func (r *Report) Skips() []Failure {
	return r.filter(func(f Failure) bool { return f.Kind == KindPrerequisiteSkip })
}

// ByCheck returns every entry recorded by the named check.
func (r *Report) ByCheck(check Name) []Failure {
	return r.filter(func(f Failure) bool { return f.Check == check })
}

func (r *Report) filter(keep func(Failure) bool) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// Skipped reports whether the stage's suite did not run at all.
func (r *Report) Skipped() bool {
	return r.SkipReason != ""
}

// Passed reports whether the stage recorded no error-severity failure.
func (r *Report) Passed() bool {
	return len(r.Errors()) == 0
}

// Err returns nil when the stage passed, otherwise one *ValidationError
// carrying every error-severity failure.
func (r *Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Stage: r.Stage, RunID: r.RunID, Failures: errs}
}

// Summary renders a one-line outcome.
func (r *Report) Summary() string {
	if r.Skipped() {
		return fmt.Sprintf("%s skipped: %s", r.Stage, r.SkipReason)
	}
	return fmt.Sprintf("%s: %d error(s), %d warning(s), %d skip(s), %d note(s) in %v",
		r.Stage, len(r.Errors()), len(r.Warnings()), len(r.Skips()), len(r.Notes), r.Duration)
}

// Dump writes the report as indented JSON.
func (r *Report) Dump(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
