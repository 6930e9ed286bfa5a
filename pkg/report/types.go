// Package report holds the state machine behind the live test reporter.
// Harness signals enter through a Bridge, are applied one at a time by an
// Aggregator to a single Run, and Project derives the renderable view.
package report

import (
	"time"
)

// Status is the lifecycle position of a Test.
type Status int

const (
	// StatusPending means the test was added but has not started.
	StatusPending Status = iota
	// StatusRunning means the test is in flight.
	StatusRunning
	// StatusPassed means the test ended with ok results.
	StatusPassed
	// StatusFailed means the test ended with non-ok or missing results.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ended reports whether the status is terminal.
func (s Status) Ended() bool {
	return s == StatusPassed || s == StatusFailed
}

// Directive marks an assertion as skipped or todo.
type Directive string

// Directives understood by the aggregator.
const (
	DirectiveNone Directive = ""
	DirectiveSkip Directive = "skip"
	DirectiveTodo Directive = "todo"
)

// Diagnostic is the structured payload attached to an assertion
// (found/wanted values or arbitrary metadata).
type Diagnostic map[string]any

// FoundWanted returns the found and wanted values when both are present.
func (d Diagnostic) FoundWanted() (found, wanted any, ok bool) {
	if d == nil {
		return nil, nil, false
	}
	found, hasFound := d["found"]
	wanted, hasWanted := d["wanted"]
	return found, wanted, hasFound && hasWanted
}

// Assertion is one reported outcome. Immutable once received.
type Assertion struct {
	Test      string     `json:"test"`
	ID        int        `json:"id,omitempty"`
	OK        bool       `json:"ok"`
	Name      string     `json:"name"`
	Directive Directive  `json:"directive,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Diag      Diagnostic `json:"diag,omitempty"`
}

// Counts tallies accepted assertions. Total always equals the sum of the
// per-kind counters.
type Counts struct {
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
	Skip  int `json:"skip"`
	Todo  int `json:"todo"`
}

// Outcome is the accounting bucket of one accepted assertion.
type Outcome int

// Assertion outcomes.
const (
	OutcomePass Outcome = iota
	OutcomeFail
	OutcomeSkip
	OutcomeTodo
)

func (c *Counts) add(o Outcome) {
	switch o {
	case OutcomePass:
		c.Pass++
	case OutcomeFail:
		c.Fail++
	case OutcomeSkip:
		c.Skip++
	case OutcomeTodo:
		c.Todo++
	}
	c.Total++
}

// Results is the end-of-test summary reported by the harness.
type Results struct {
	OK       bool          `json:"ok"`
	Counts   Counts        `json:"counts"`
	Plan     int           `json:"plan,omitempty"`
	Bailout  string        `json:"bailout,omitempty"`
	ExitCode int           `json:"exit_code,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Test is a tracked test program or subtest.
type Test struct {
	Name      string
	Parent    string
	Status    Status
	Results   *Results
	AddedAt   time.Time
	StartedAt time.Time
	EndedAt   time.Time

	// Counts holds this test's own accepted assertions.
	Counts Counts
	// Assertions is every assertion reported directly against the test,
	// including suppressed restatements.
	Assertions []Assertion
}

// Duration is the wall time between start and end, or zero when either
// is unknown.
func (t *Test) Duration() time.Duration {
	if t.Results != nil && t.Results.Duration > 0 {
		return t.Results.Duration
	}
	if t.StartedAt.IsZero() || t.EndedAt.IsZero() {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}

func (t *Test) clone() Test {
	c := *t
	c.Assertions = append([]Assertion(nil), t.Assertions...)
	if t.Results != nil {
		r := *t.Results
		c.Results = &r
	}
	return c
}

// FailureEntry is one accepted failing assertion in the failure log.
type FailureEntry struct {
	Seq       int
	Assertion Assertion
}

// Summary is captured exactly once when the run ends.
type Summary struct {
	OK       bool
	Counts   Counts
	Passed   []string
	Failed   []string
	Timings  []Timing
	Duration time.Duration
	Root     *Results
}

func (s *Summary) clone() *Summary {
	c := *s
	c.Passed = append([]string(nil), s.Passed...)
	c.Failed = append([]string(nil), s.Failed...)
	c.Timings = append([]Timing(nil), s.Timings...)
	if s.Root != nil {
		r := *s.Root
		c.Root = &r
	}
	return &c
}

// Timing is the per-test row of the closing summary.
type Timing struct {
	Name     string
	Status   Status
	Counts   Counts
	Duration time.Duration
}
