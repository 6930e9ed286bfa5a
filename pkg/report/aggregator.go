package report

import (
	"slices"
)

// Aggregator applies normalized events to a Run. Each event is handled to
// completion before the next; there is no internal locking, so an
// Aggregator must only be driven from one goroutine.
type Aggregator struct {
	run *Run
}

// NewAggregator creates an aggregator owning run.
func NewAggregator(run *Run) *Aggregator {
	return &Aggregator{run: run}
}

// Run returns the aggregate being mutated.
func (a *Aggregator) Run() *Run { return a.run }

// Apply runs the transition for ev. A non-nil error means the event was
// rejected and recorded as a violation; no state other than the journal
// changed.
func (a *Aggregator) Apply(ev Event) error {
	r := a.run
	if r.closed {
		return a.reject(ev, &ClosedRunError{RunID: r.id, Kind: ev.Kind, Test: ev.Test})
	}

	var err error
	switch ev.Kind {
	case TestAdded:
		a.testAdded(ev)
	case TestStarted:
		err = a.testStarted(ev)
	case AssertionReported:
		a.assertion(ev)
	case TestEnded:
		err = a.testEnded(ev)
	case RunEnded:
		a.runEnded(ev)
	default:
		err = &UnknownKindError{Kind: ev.Kind}
	}
	if err != nil {
		return a.reject(ev, err)
	}
	return nil
}

func (a *Aggregator) reject(ev Event, err error) error {
	a.run.journal = append(a.run.journal, Entry{
		Kind:      EntryViolation,
		Violation: &Violation{Event: ev, Err: err},
	})
	return err
}

// testAdded registers the test as pending. Adding a known name again only
// fills in a missing parent.
func (a *Aggregator) testAdded(ev Event) {
	t := a.lookupOrAdd(ev)
	if t.Parent == "" {
		t.Parent = ev.Parent
	}
}

// testStarted puts the test in the running set, superseding any running
// entry with the same name. Ended tests cannot restart.
func (a *Aggregator) testStarted(ev Event) error {
	t := a.lookupOrAdd(ev)
	if t.Status.Ended() {
		return &TestEndedError{Test: t.Name, Kind: ev.Kind, Status: t.Status}
	}
	a.removeRunning(t.Name)
	t.Status = StatusRunning
	t.StartedAt = ev.At
	a.run.running = append(a.run.running, t)
	return nil
}

// assertion accounts one outcome exactly once. Directives win over ok;
// an undirected failure goes through the duplicate suppressor before it
// is counted and journaled. Assertions on an already ended test are
// counted against the run but not recorded on the frozen test.
func (a *Aggregator) assertion(ev Event) {
	if ev.Assertion == nil {
		return
	}
	as := *ev.Assertion
	if as.Test == "" {
		as.Test = ev.Test
	}

	r := a.run
	owner := r.byName[as.Test]
	if owner != nil && owner.Status.Ended() {
		owner = nil
	}
	if owner != nil {
		owner.Assertions = append(owner.Assertions, as)
	}

	var kind Outcome
	switch {
	case as.Directive == DirectiveTodo:
		kind = OutcomeTodo
	case as.Directive == DirectiveSkip:
		kind = OutcomeSkip
	case as.OK:
		kind = OutcomePass
	default:
		if r.restatesFailedSubtest(as.Test, as.Name) {
			r.suppressed++
			return
		}
		kind = OutcomeFail
		r.failures++
		r.journal = append(r.journal, Entry{
			Kind:    EntryFailure,
			Failure: &FailureEntry{Seq: r.failures, Assertion: as},
		})
	}

	r.counts.add(kind)
	if owner != nil {
		owner.Counts.add(kind)
	}
}

// testEnded removes the test from the running set and places it in
// exactly one bucket. Missing results classify as failed.
func (a *Aggregator) testEnded(ev Event) error {
	t := a.lookupOrAdd(ev)
	if t.Status.Ended() {
		return &TestEndedError{Test: t.Name, Kind: ev.Kind, Status: t.Status}
	}
	a.removeRunning(t.Name)
	t.EndedAt = ev.At
	if ev.Results != nil {
		res := *ev.Results
		t.Results = &res
	}

	if t.Results != nil && t.Results.OK {
		t.Status = StatusPassed
		a.run.passed = append(a.run.passed, t)
	} else {
		t.Status = StatusFailed
		a.run.failed = append(a.run.failed, t)
	}
	return nil
}

// runEnded freezes the run and captures the summary.
func (a *Aggregator) runEnded(ev Event) {
	r := a.run
	s := &Summary{
		Counts: r.counts,
		Passed: names(r.passed),
		Failed: names(r.failed),
	}
	if ev.Results != nil {
		root := *ev.Results
		s.Root = &root
		s.Duration = root.Duration
	}
	if s.Duration == 0 && !r.openedAt.IsZero() && !ev.At.IsZero() {
		s.Duration = ev.At.Sub(r.openedAt)
	}
	s.OK = (s.Root == nil || s.Root.OK) && r.counts.Fail == 0 && len(r.failed) == 0

	for _, t := range r.tests {
		if !t.Status.Ended() {
			continue
		}
		s.Timings = append(s.Timings, Timing{
			Name:     t.Name,
			Status:   t.Status,
			Counts:   t.Counts,
			Duration: t.Duration(),
		})
	}

	r.summary = s
	r.closed = true
	r.journal = append(r.journal, Entry{Kind: EntrySummary, Summary: s})
}

func (a *Aggregator) lookupOrAdd(ev Event) *Test {
	r := a.run
	if t, ok := r.byName[ev.Test]; ok {
		return t
	}
	t := &Test{
		Name:    ev.Test,
		Parent:  ev.Parent,
		Status:  StatusPending,
		AddedAt: ev.At,
	}
	r.tests = append(r.tests, t)
	r.byName[t.Name] = t
	return t
}

func (a *Aggregator) removeRunning(name string) {
	a.run.running = slices.DeleteFunc(a.run.running, func(t *Test) bool {
		return t.Name == name
	})
}
