package report

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestProjectLiveRegionSortedByName(t *testing.T) {
	f := newFeed(t)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		f.add(n, "")
		f.start(n)
	}

	v := Project(f.agg.Run(), f.now.Add(time.Second))

	var got []string
	for _, l := range v.Live {
		got = append(got, l.Name)
		if l.Elapsed <= 0 {
			t.Errorf("%s: elapsed = %v, want > 0", l.Name, l.Elapsed)
		}
		if l.Indicator == "" {
			t.Errorf("%s: empty indicator", l.Name)
		}
	}
	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, got); diff != "" {
		t.Errorf("live order mismatch (-want +got):\n%s", diff)
	}

	// Start order inside the run is untouched by projection.
	if first := f.agg.Run().Running()[0].Name; first != "zeta" {
		t.Errorf("projection reordered run state, first running = %q", first)
	}
}

func TestProjectLogIsAppendOnly(t *testing.T) {
	f := newFeed(t)
	f.add("t", "")
	f.start("t")
	f.assert("t", false, "first", nil)

	v1 := Project(f.agg.Run(), f.now)

	f.assert("t", true, "pass", nil)
	f.assert("t", false, "second", Diagnostic{"found": "a", "wanted": "b"})
	f.end("t", &Results{OK: false})
	f.must(Event{Kind: RunEnded})
	_ = f.apply(Event{Kind: TestStarted, Test: "late"})

	v2 := Project(f.agg.Run(), f.now)

	if len(v2.Log) < len(v1.Log) {
		t.Fatalf("log shrank: %d -> %d", len(v1.Log), len(v2.Log))
	}
	if diff := cmp.Diff(v1.Log, v2.Log[:len(v1.Log)]); diff != "" {
		t.Errorf("earlier lines changed (-before +after):\n%s", diff)
	}

	kinds := make([]EntryKind, len(v2.Log))
	for i, l := range v2.Log {
		kinds[i] = l.Kind
	}
	want := []EntryKind{EntryFailure, EntryFailure, EntrySummary, EntryViolation}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("log kinds mismatch (-want +got):\n%s", diff)
	}
	if !v2.Closed || v2.Summary == nil {
		t.Error("closed view lacks summary")
	}
	if !strings.HasPrefix(v2.Log[2].Text, "FAIL") {
		t.Errorf("summary line = %q, want FAIL prefix", v2.Log[2].Text)
	}
}

func TestFailureLineCarriesNames(t *testing.T) {
	f := newFeed(t)
	f.add("suite.sh", "")
	f.start("suite.sh")
	f.assert("suite.sh", false, "adds numbers", Diagnostic{"found": 3, "wanted": 4})

	l := Project(f.agg.Run(), f.now).Log[0]
	if l.Test != "suite.sh" || l.Name != "adds numbers" {
		t.Errorf("line identity = %q/%q", l.Test, l.Name)
	}
	if !strings.Contains(l.Text, "suite.sh > adds numbers") {
		t.Errorf("text missing names: %q", l.Text)
	}
	if !strings.Contains(l.Diag, "wanted") || !strings.Contains(l.Diag, "found") {
		t.Errorf("diag missing comparison header: %q", l.Diag)
	}
}

func TestRenderDiagnostic(t *testing.T) {
	tests := []struct {
		name         string
		diag         Diagnostic
		wantContains []string
		wantEmpty    bool
	}{
		{
			name:      "empty",
			diag:      nil,
			wantEmpty: true,
		},
		{
			name:         "found and wanted differ",
			diag:         Diagnostic{"found": 1, "wanted": 2, "at": "test.js:3"},
			wantContains: []string{"--- wanted", "+++ found", "1", "2", "at: test.js:3"},
		},
		{
			name:         "structured values",
			diag:         Diagnostic{"found": map[string]any{"a": 1}, "wanted": map[string]any{"a": 2}},
			wantContains: []string{"--- wanted", `"a"`},
		},
		{
			name:         "only found is raw",
			diag:         Diagnostic{"found": "x", "operator": "ok"},
			wantContains: []string{"found: x", "operator: ok"},
		},
		{
			name:         "equal found and wanted falls back to raw",
			diag:         Diagnostic{"found": 1, "wanted": 1},
			wantContains: []string{"found: 1", "wanted: 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderDiagnostic(tt.diag)
			if tt.wantEmpty {
				if got != "" {
					t.Errorf("RenderDiagnostic() = %q, want empty", got)
				}
				return
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("RenderDiagnostic() missing %q, got:\n%s", want, got)
				}
			}
		})
	}
}

func TestLogCursor(t *testing.T) {
	f := newFeed(t)
	f.add("t", "")
	f.start("t")
	f.assert("t", false, "one", nil)

	var c LogCursor
	first := c.Next(Project(f.agg.Run(), f.now))
	if len(first) != 1 {
		t.Fatalf("first batch = %d, want 1", len(first))
	}
	if again := c.Next(Project(f.agg.Run(), f.now)); len(again) != 0 {
		t.Errorf("cursor re-emitted %d lines", len(again))
	}

	f.assert("t", false, "two", nil)
	f.assert("t", false, "three", nil)
	next := c.Next(Project(f.agg.Run(), f.now))
	if len(next) != 2 || next[0].Name != "two" || next[1].Name != "three" {
		t.Errorf("second batch = %+v", next)
	}
	if c.Emitted() != 3 {
		t.Errorf("Emitted() = %d, want 3", c.Emitted())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0ms"},
		{42 * time.Millisecond, "42ms"},
		{1234 * time.Millisecond, "1.23s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayNameAndIndent(t *testing.T) {
	if got := DisplayName(""); got != "(unnamed)" {
		t.Errorf("DisplayName(\"\") = %q", got)
	}
	if got := DisplayName("adds"); got != "adds" {
		t.Errorf("DisplayName(adds) = %q", got)
	}
	if got := Indent("a\nb", "  "); got != "  a\n  b" {
		t.Errorf("Indent() = %q", got)
	}
}
