package report

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var epoch = time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // fixed test clock

// feed applies events through an aggregator, advancing a fake clock one
// millisecond per event, and checks the count invariant after each one.
type feed struct {
	t   *testing.T
	agg *Aggregator
	now time.Time
}

func newFeed(t *testing.T) *feed {
	t.Helper()
	return &feed{t: t, agg: NewAggregator(NewRun("run-1", epoch)), now: epoch}
}

func (f *feed) apply(ev Event) error {
	f.t.Helper()
	f.now = f.now.Add(time.Millisecond)
	ev.At = f.now
	err := f.agg.Apply(ev)
	c := f.agg.Run().Counts()
	if c.Total != c.Pass+c.Fail+c.Skip+c.Todo {
		f.t.Fatalf("count invariant broken after %s: %+v", ev.Kind, c)
	}
	return err
}

func (f *feed) must(ev Event) {
	f.t.Helper()
	if err := f.apply(ev); err != nil {
		f.t.Fatalf("apply %s %q: %v", ev.Kind, ev.Test, err)
	}
}

func (f *feed) add(name, parent string) { f.must(Event{Kind: TestAdded, Test: name, Parent: parent}) }
func (f *feed) start(name string)       { f.must(Event{Kind: TestStarted, Test: name}) }
func (f *feed) end(name string, res *Results) {
	f.must(Event{Kind: TestEnded, Test: name, Results: res})
}

func (f *feed) assert(test string, ok bool, name string, diag Diagnostic) {
	f.must(Event{Kind: AssertionReported, Test: test, Assertion: &Assertion{Test: test, OK: ok, Name: name, Diag: diag}})
}

func (f *feed) directive(test, name string, d Directive, ok bool) {
	f.must(Event{Kind: AssertionReported, Test: test, Assertion: &Assertion{Test: test, OK: ok, Name: name, Directive: d}})
}

func TestScenarioSingleFailingTest(t *testing.T) {
	f := newFeed(t)
	f.add("t1", "")
	f.start("t1")
	for range 3 {
		f.assert("t1", true, "works", nil)
	}
	f.assert("t1", false, "should be equal", Diagnostic{"found": 1, "wanted": 2})
	f.end("t1", &Results{OK: false})

	r := f.agg.Run()
	want := Counts{Total: 4, Pass: 3, Fail: 1}
	if diff := cmp.Diff(want, r.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if got := len(r.Failures()); got != 1 {
		t.Errorf("failure log has %d entries, want 1", got)
	}
	if got := len(r.Running()); got != 0 {
		t.Errorf("running set has %d entries, want 0", got)
	}
	if diff := cmp.Diff([]string{"t1"}, r.Failed()); diff != "" {
		t.Errorf("fail bucket mismatch (-want +got):\n%s", diff)
	}
	if len(r.Passed()) != 0 {
		t.Errorf("pass bucket = %v, want empty", r.Passed())
	}
}

func TestScenarioParentRestatementSuppressed(t *testing.T) {
	f := newFeed(t)
	f.add("root", "")
	f.start("root")
	f.add("root/sub", "")
	f.start("root/sub")
	f.assert("root/sub", false, "inner check", nil)
	f.end("root/sub", &Results{OK: false})

	before := f.agg.Run().Counts()
	f.assert("root", false, "root/sub", nil)
	after := f.agg.Run().Counts()
	f.end("root", &Results{OK: false})

	r := f.agg.Run()
	if before != after {
		t.Errorf("restatement changed counts: before %+v after %+v", before, after)
	}
	if r.Counts().Fail != 1 {
		t.Errorf("fail = %d, want 1", r.Counts().Fail)
	}
	if len(r.Failures()) != 1 {
		t.Fatalf("failure log has %d entries, want 1", len(r.Failures()))
	}
	if got := r.Failures()[0].Assertion.Test; got != "root/sub" {
		t.Errorf("surviving failure owned by %q, want root/sub", got)
	}
	if r.Suppressed() != 1 {
		t.Errorf("suppressed = %d, want 1", r.Suppressed())
	}
	if diff := cmp.Diff([]string{"root/sub", "root"}, r.Failed()); diff != "" {
		t.Errorf("fail bucket mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioMissingResultsFails(t *testing.T) {
	f := newFeed(t)
	f.add("t1", "")
	f.start("t1")
	f.assert("t1", true, "fine", nil)
	f.end("t1", nil)

	r := f.agg.Run()
	if diff := cmp.Diff([]string{"t1"}, r.Failed()); diff != "" {
		t.Errorf("fail bucket mismatch (-want +got):\n%s", diff)
	}
	if len(r.Passed()) != 0 {
		t.Errorf("pass bucket = %v, want empty", r.Passed())
	}
	tst, _ := r.Test("t1")
	if tst.Status != StatusFailed {
		t.Errorf("status = %s, want failed", tst.Status)
	}
}

func TestSuppressionRules(t *testing.T) {
	tests := []struct {
		name           string
		setup          func(f *feed)
		owner, label   string
		wantSuppressed bool
	}{
		{
			name: "qualified subtest name under owner",
			setup: func(f *feed) {
				f.add("file.js", "")
				f.start("file.js")
				f.add("file.js/sub", "file.js")
				f.start("file.js/sub")
				f.end("file.js/sub", &Results{OK: false})
			},
			owner: "file.js", label: "sub",
			wantSuppressed: true,
		},
		{
			name: "subtest still running is accepted",
			setup: func(f *feed) {
				f.add("p", "")
				f.start("p")
				f.add("p/sub", "p")
				f.start("p/sub")
			},
			owner: "p", label: "sub",
			wantSuppressed: false,
		},
		{
			name: "subtest ended ok is accepted",
			setup: func(f *feed) {
				f.add("p", "")
				f.start("p")
				f.add("p/sub", "p")
				f.start("p/sub")
				f.end("p/sub", &Results{OK: true})
			},
			owner: "p", label: "sub",
			wantSuppressed: false,
		},
		{
			name: "failed test belonging to another parent is accepted",
			setup: func(f *feed) {
				f.add("a", "")
				f.add("b", "")
				f.start("b")
				f.add("shared", "a")
				f.start("shared")
				f.end("shared", &Results{OK: false})
			},
			owner: "b", label: "shared",
			wantSuppressed: false,
		},
		{
			name: "failed top-level program named by another program is accepted",
			setup: func(f *feed) {
				f.add("a.sh", "")
				f.add("b.sh", "")
				f.start("a.sh")
				f.start("b.sh")
				f.assert("a.sh", false, "boom", nil)
				f.end("a.sh", &Results{OK: false})
			},
			owner: "b.sh", label: "a.sh",
			wantSuppressed: false,
		},
		{
			name: "parentless subtest qualified under owner",
			setup: func(f *feed) {
				f.add("p", "")
				f.start("p")
				f.add("p/sub", "")
				f.start("p/sub")
				f.end("p/sub", &Results{OK: false})
			},
			owner: "p", label: "sub",
			wantSuppressed: true,
		},
		{
			name: "unrelated name is accepted",
			setup: func(f *feed) {
				f.add("leaf", "")
				f.start("leaf")
			},
			owner: "leaf", label: "should be equal",
			wantSuppressed: false,
		},
		{
			name: "top-level restatement of failed program",
			setup: func(f *feed) {
				f.add("prog", "")
				f.start("prog")
				f.end("prog", &Results{OK: false})
			},
			owner: "", label: "prog",
			wantSuppressed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFeed(t)
			tt.setup(f)
			r := f.agg.Run()
			before, logBefore := r.Counts(), len(r.Failures())

			f.assert(tt.owner, false, tt.label, nil)

			after, logAfter := r.Counts(), len(r.Failures())
			if tt.wantSuppressed {
				if before != after || logBefore != logAfter {
					t.Errorf("expected suppression, counts %+v -> %+v, log %d -> %d", before, after, logBefore, logAfter)
				}
				return
			}
			if after.Fail != before.Fail+1 || after.Total != before.Total+1 {
				t.Errorf("expected fail and total +1, got %+v -> %+v", before, after)
			}
			if logAfter != logBefore+1 {
				t.Errorf("expected one new failure entry, log %d -> %d", logBefore, logAfter)
			}
		})
	}
}

func TestDirectivesCountSeparately(t *testing.T) {
	f := newFeed(t)
	f.add("t", "")
	f.start("t")
	f.directive("t", "later", DirectiveTodo, false)
	f.directive("t", "not here", DirectiveSkip, true)
	f.directive("t", "flaky", DirectiveSkip, false)
	f.assert("t", true, "ok", nil)

	want := Counts{Total: 4, Pass: 1, Skip: 2, Todo: 1}
	if diff := cmp.Diff(want, f.agg.Run().Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	if n := len(f.agg.Run().Failures()); n != 0 {
		t.Errorf("directive assertions produced %d failures", n)
	}
	tst, _ := f.agg.Run().Test("t")
	if diff := cmp.Diff(want, tst.Counts); diff != "" {
		t.Errorf("per-test counts mismatch (-want +got):\n%s", diff)
	}
}

func TestRestartSupersedesRunningEntry(t *testing.T) {
	f := newFeed(t)
	f.add("t", "")
	f.start("t")
	f.start("t")

	running := f.agg.Run().Running()
	if len(running) != 1 {
		t.Fatalf("running has %d entries, want 1", len(running))
	}
	if !running[0].StartedAt.Equal(epoch.Add(3 * time.Millisecond)) {
		t.Errorf("running entry not superseded, StartedAt = %v", running[0].StartedAt)
	}
}

func TestEndedTestIsImmutable(t *testing.T) {
	f := newFeed(t)
	f.add("t", "")
	f.start("t")
	f.end("t", &Results{OK: true})

	err := f.apply(Event{Kind: TestStarted, Test: "t"})
	var endedErr *TestEndedError
	if !errors.As(err, &endedErr) {
		t.Fatalf("restart after end: got %v, want *TestEndedError", err)
	}
	if len(f.agg.Run().Running()) != 0 {
		t.Error("ended test reappeared in running set")
	}

	err = f.apply(Event{Kind: TestEnded, Test: "t", Results: &Results{OK: false}})
	if !errors.As(err, &endedErr) {
		t.Fatalf("second end: got %v, want *TestEndedError", err)
	}
	if diff := cmp.Diff([]string{"t"}, f.agg.Run().Passed()); diff != "" {
		t.Errorf("bucket changed by second end (-want +got):\n%s", diff)
	}
	if n := len(f.agg.Run().Violations()); n != 2 {
		t.Errorf("violations = %d, want 2", n)
	}
}

func TestEventsAfterRunEndedRejected(t *testing.T) {
	f := newFeed(t)
	f.add("t", "")
	f.start("t")
	f.assert("t", false, "boom", nil)
	f.end("t", &Results{OK: false})
	f.must(Event{Kind: RunEnded, Results: &Results{OK: false}})

	r := f.agg.Run()
	frozenCounts := r.Counts()
	frozenFailed := r.Failed()
	frozenSummary := r.Summary()

	late := []Event{
		{Kind: TestAdded, Test: "late"},
		{Kind: TestStarted, Test: "late"},
		{Kind: AssertionReported, Test: "t", Assertion: &Assertion{Test: "t", OK: false, Name: "late failure"}},
		{Kind: TestEnded, Test: "late", Results: &Results{OK: true}},
		{Kind: RunEnded},
	}
	for _, ev := range late {
		err := f.apply(ev)
		var closedErr *ClosedRunError
		if !errors.As(err, &closedErr) {
			t.Errorf("%s after close: got %v, want *ClosedRunError", ev.Kind, err)
		}
	}

	if r.Counts() != frozenCounts {
		t.Errorf("counts changed after close: %+v -> %+v", frozenCounts, r.Counts())
	}
	if diff := cmp.Diff(frozenFailed, r.Failed()); diff != "" {
		t.Errorf("fail bucket changed after close:\n%s", diff)
	}
	if len(r.Passed()) != 0 || len(r.Running()) != 0 {
		t.Errorf("late events leaked into state: passed=%v running=%d", r.Passed(), len(r.Running()))
	}
	if diff := cmp.Diff(frozenSummary, r.Summary()); diff != "" {
		t.Errorf("summary changed after close:\n%s", diff)
	}
	if n := len(r.Violations()); n != len(late) {
		t.Errorf("violations = %d, want %d", n, len(late))
	}
}

func TestFailureLogKeepsDeliveryOrder(t *testing.T) {
	f := newFeed(t)
	f.add("a", "")
	f.add("b", "")
	f.start("a")
	f.start("b")
	// Interleaved streams from two concurrently running programs.
	f.assert("b", false, "b1", nil)
	f.assert("a", false, "a1", nil)
	f.assert("a", true, "a-pass", nil)
	f.assert("b", false, "b2", nil)
	f.assert("a", false, "a2", nil)

	var got []string
	for _, e := range f.agg.Run().Failures() {
		got = append(got, e.Assertion.Test+":"+e.Assertion.Name)
	}
	want := []string{"b:b1", "a:a1", "b:b2", "a:a2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("failure order mismatch (-want +got):\n%s", diff)
	}
	for i, e := range f.agg.Run().Failures() {
		if e.Seq != i+1 {
			t.Errorf("entry %d has Seq %d", i, e.Seq)
		}
	}
}

func TestRunEndedSummary(t *testing.T) {
	f := newFeed(t)
	f.add("fast", "")
	f.add("slow", "")
	f.start("fast")
	f.start("slow")
	f.assert("fast", true, "a", nil)
	f.end("fast", &Results{OK: true})
	f.assert("slow", true, "b", nil)
	f.end("slow", &Results{OK: true, Duration: 2 * time.Second})
	f.must(Event{Kind: RunEnded, Results: &Results{OK: true}})

	s := f.agg.Run().Summary()
	if s == nil {
		t.Fatal("summary not set")
	}
	if !s.OK {
		t.Error("summary not ok")
	}
	if diff := cmp.Diff([]string{"fast", "slow"}, s.Passed); diff != "" {
		t.Errorf("passed mismatch:\n%s", diff)
	}
	if len(s.Timings) != 2 {
		t.Fatalf("timings = %d, want 2", len(s.Timings))
	}
	if s.Timings[0].Duration != 3*time.Millisecond {
		t.Errorf("fast duration = %v, want 3ms", s.Timings[0].Duration)
	}
	if s.Timings[1].Duration != 2*time.Second {
		t.Errorf("slow duration = %v, want results duration 2s", s.Timings[1].Duration)
	}
	if s.Duration != 9*time.Millisecond {
		t.Errorf("run duration = %v, want 9ms", s.Duration)
	}
}

func TestRunningNeverContainsEndedTest(t *testing.T) {
	f := newFeed(t)
	names := []string{"c", "a", "b"}
	for _, n := range names {
		f.add(n, "")
		f.start(n)
	}
	f.end("a", &Results{OK: true})

	for _, rt := range f.agg.Run().Running() {
		if rt.Name == "a" {
			t.Fatal("ended test still running")
		}
	}
	if got := len(f.agg.Run().Running()); got != 2 {
		t.Errorf("running = %d, want 2", got)
	}
}

func TestSummaryIsACopy(t *testing.T) {
	f := newFeed(t)
	f.add("a", "")
	f.start("a")
	f.end("a", &Results{OK: true})
	f.add("b", "")
	f.start("b")
	f.end("b", &Results{OK: false})
	f.must(Event{Kind: RunEnded, Results: &Results{OK: false}})

	r := f.agg.Run()
	got := r.Summary()
	got.Passed[0] = "mutated"
	got.Failed[0] = "mutated"
	got.Timings[0].Name = "mutated"
	got.Root.OK = true

	fresh := r.Summary()
	if fresh.Passed[0] != "a" || fresh.Failed[0] != "b" || fresh.Timings[0].Name != "a" {
		t.Errorf("summary shares memory with the run: %+v", fresh)
	}
	if fresh.Root.OK {
		t.Error("root results share memory with the run")
	}
}
