package report

import (
	"time"
)

// EntryKind classifies a record in the run's append-only journal.
type EntryKind int

const (
	// EntryFailure is an accepted failing assertion.
	EntryFailure EntryKind = iota
	// EntrySummary is the closing summary, appended once at run-ended.
	EntrySummary
	// EntryViolation is a rejected event (protocol or ordering violation).
	EntryViolation
)

// Violation records an event that was rejected rather than applied.
type Violation struct {
	Event Event
	Err   error
}

// Entry is one append-only journal record. Exactly one of Failure,
// Summary or Violation is set, matching Kind.
type Entry struct {
	Kind      EntryKind
	Failure   *FailureEntry
	Summary   *Summary
	Violation *Violation
}

// Run is the single aggregate owning every Test, the Counts and the
// journal. Only an Aggregator mutates it; everything else reads through
// the accessors, which return copies.
type Run struct {
	id       string
	openedAt time.Time

	tests   []*Test
	byName  map[string]*Test
	running []*Test
	passed  []*Test
	failed  []*Test

	counts     Counts
	suppressed int
	journal    []Entry
	failures   int

	summary *Summary
	closed  bool
}

// NewRun opens an empty run.
func NewRun(id string, openedAt time.Time) *Run {
	return &Run{
		id:       id,
		openedAt: openedAt,
		byName:   make(map[string]*Test),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// OpenedAt returns when the run was opened.
func (r *Run) OpenedAt() time.Time { return r.openedAt }

// Counts returns the current tallies.
func (r *Run) Counts() Counts { return r.counts }

// Suppressed returns how many failing parent restatements were dropped.
func (r *Run) Suppressed() int { return r.suppressed }

// Closed reports whether run-ended has been processed.
func (r *Run) Closed() bool { return r.closed }

// Summary returns the closing summary, or nil while the run is open.
func (r *Run) Summary() *Summary {
	if r.summary == nil {
		return nil
	}
	return r.summary.clone()
}

// Test returns a copy of the named test.
func (r *Run) Test(name string) (Test, bool) {
	t, ok := r.byName[name]
	if !ok {
		return Test{}, false
	}
	return t.clone(), true
}

// Tests returns every test in the order it was first seen.
func (r *Run) Tests() []Test {
	return cloneTests(r.tests)
}

// Running returns the in-flight tests in start order.
func (r *Run) Running() []Test {
	return cloneTests(r.running)
}

// Passed returns the names in the pass bucket, in end order.
func (r *Run) Passed() []string {
	return names(r.passed)
}

// Failed returns the names in the fail bucket, in end order.
func (r *Run) Failed() []string {
	return names(r.failed)
}

// Journal returns the append-only record of failures, the summary and
// violations in the order they occurred.
func (r *Run) Journal() []Entry {
	return append([]Entry(nil), r.journal...)
}

// Failures returns the failure log in delivery order.
func (r *Run) Failures() []FailureEntry {
	out := make([]FailureEntry, 0, r.failures)
	for _, e := range r.journal {
		if e.Kind == EntryFailure {
			out = append(out, *e.Failure)
		}
	}
	return out
}

// Violations returns every rejected event in order.
func (r *Run) Violations() []Violation {
	var out []Violation
	for _, e := range r.journal {
		if e.Kind == EntryViolation {
			out = append(out, *e.Violation)
		}
	}
	return out
}

func cloneTests(in []*Test) []Test {
	out := make([]Test, len(in))
	for i, t := range in {
		out[i] = t.clone()
	}
	return out
}

func names(in []*Test) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = t.Name
	}
	return out
}
