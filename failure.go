package farez

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// FailureKind classifies a recorded entry.
type FailureKind int

// Failure kinds.
const (
	// KindAssertion is an expected-vs-actual mismatch.
	KindAssertion FailureKind = iota
	// KindMissingData is a required field or list that is absent.
	KindMissingData
	// KindMalformed is a value that could not be parsed.
	KindMalformed
	// KindPrerequisiteSkip marks a check that does not apply to this run.
	KindPrerequisiteSkip
)

func (k FailureKind) String() string {
	switch k {
	case KindAssertion:
		return "assertion"
	case KindMissingData:
		return "missing-data"
	case KindMalformed:
		return "malformed"
	case KindPrerequisiteSkip:
		return "skip"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind by name.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Severity separates hard failures from warnings.
type Severity int

// Severities.
const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalText renders the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Failure is one recorded finding.
type Failure struct {
	Timestamp time.Time   `json:"timestamp"`
	Check     Name        `json:"check"`
	Path      string      `json:"path,omitempty"`
	Expected  string      `json:"expected,omitempty"`
	Actual    string      `json:"actual,omitempty"`
	Message   string      `json:"message"`
	Kind      FailureKind `json:"kind"`
	Severity  Severity    `json:"severity"`
}

// IsError reports whether the failure should fail the stage.
func (f Failure) IsError() bool {
	return f.Severity == SeverityError && f.Kind != KindPrerequisiteSkip
}

// String renders the failure on one line.
func (f Failure) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%s] %s", f.Kind, f.Check, f.Message)
	if f.Path != "" {
		fmt.Fprintf(&b, " at %s", f.Path)
	}
	if f.Expected != "" || f.Actual != "" {
		fmt.Fprintf(&b, " (expected [%s] but found [%s])", f.Expected, f.Actual)
	}
	return b.String()
}

// Note is an informational entry that never fails a stage, such as an
// amount that differs within the rounding tolerance.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Check     Name      `json:"check"`
	Path      string    `json:"path,omitempty"`
	Message   string    `json:"message"`
}

// Collector accumulates every failure and note recorded during one stage.
// A Collector belongs to a single stage run; nothing is shared between runs.
type Collector struct {
	clock     clockz.Clock
	onFailure func(Failure)
	onNote    func(Note)
	failures  []Failure
	notes     []Note
	mu        sync.Mutex
}

// NewCollector creates an empty collector using the real clock.
func NewCollector() *Collector {
	return &Collector{clock: clockz.RealClock}
}

// WithClock sets the clock used to timestamp entries.
func (c *Collector) WithClock(clock clockz.Clock) *Collector {
	c.clock = clock
	return c
}

// Recorder returns a writer scoped to the named check.
func (c *Collector) Recorder(check Name) Recorder {
	return Recorder{c: c, check: check}
}

// Failures returns a copy of every recorded failure in recording order.
func (c *Collector) Failures() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Failure, len(c.failures))
	copy(out, c.failures)
	return out
}

// Notes returns a copy of every recorded note.
func (c *Collector) Notes() []Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Note, len(c.notes))
	copy(out, c.notes)
	return out
}

// Len returns the number of recorded failures, warnings and skips included.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures)
}

// countFor returns how many failures the named check recorded.
func (c *Collector) countFor(check Name) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.failures {
		if c.failures[i].Check == check {
			n++
		}
	}
	return n
}

func (c *Collector) add(f Failure) {
	f.Timestamp = c.clock.Now()
	c.mu.Lock()
	c.failures = append(c.failures, f)
	fn := c.onFailure
	c.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

func (c *Collector) addNote(n Note) {
	n.Timestamp = c.clock.Now()
	c.mu.Lock()
	c.notes = append(c.notes, n)
	fn := c.onNote
	c.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// Recorder writes entries for one check into a Collector.
// The zero Recorder discards everything.
type Recorder struct {
	c     *Collector
	check Name
}

// Check returns the name entries are recorded under.
func (r Recorder) Check() Name {
	return r.check
}

func (r Recorder) record(f Failure) {
	if r.c == nil {
		return
	}
	f.Check = r.check
	r.c.add(f)
}

// Fail records an assertion failure.
func (r Recorder) Fail(path, format string, args ...any) {
	r.record(Failure{Kind: KindAssertion, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Mismatch records an assertion failure with expected and actual values.
func (r Recorder) Mismatch(path, message string, expected, actual any) {
	r.record(Failure{
		Kind:     KindAssertion,
		Path:     path,
		Message:  message,
		Expected: render(expected),
		Actual:   render(actual),
	})
}

// Missing records a MissingData failure for an absent required value.
func (r Recorder) Missing(path, format string, args ...any) {
	r.record(Failure{Kind: KindMissingData, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Malformed records a value that could not be parsed. The raw value is
// included in the message.
func (r Recorder) Malformed(path string, raw any, err error) {
	msg := fmt.Sprintf("malformed value %q", render(raw))
	if err != nil {
		msg += ": " + err.Error()
	}
	r.record(Failure{Kind: KindMalformed, Path: path, Message: msg, Actual: render(raw)})
}

// Skip records that the check does not apply to this run.
func (r Recorder) Skip(format string, args ...any) {
	r.record(Failure{Kind: KindPrerequisiteSkip, Message: fmt.Sprintf(format, args...)})
}

// Warn records a warning-severity finding.
func (r Recorder) Warn(path, format string, args ...any) {
	r.record(Failure{Kind: KindAssertion, Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Record appends a prepared failure under this check.
func (r Recorder) Record(f Failure) {
	r.record(f)
}

// Info records an informational note.
func (r Recorder) Info(path, format string, args ...any) {
	if r.c == nil {
		return
	}
	r.c.addNote(Note{Check: r.check, Path: path, Message: fmt.Sprintf(format, args...)})
}

func render(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
