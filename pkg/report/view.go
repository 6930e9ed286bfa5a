package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

// View is everything a renderer needs, derived from a Run by Project.
type View struct {
	// Log is append-only: a line, once present, keeps its position and
	// content in every later View of the same run.
	Log []Line
	// Live is the in-flight set, sorted by test name. Renderers rewrite it
	// in place on every update.
	Live    []LiveLine
	Counts  Counts
	Summary *Summary
	Closed  bool
}

// Line is one renderable entry of the append-only log.
type Line struct {
	Kind EntryKind
	// Test and Name identify the failing assertion (EntryFailure only).
	Test string
	Name string
	// Diag is the rendered diagnostic, possibly multi-line.
	Diag string
	// Text is the complete plain rendering of the line.
	Text string
	OK   bool
}

// LiveLine is one row of the live region.
type LiveLine struct {
	Name      string
	Indicator string
	Elapsed   time.Duration
}

// Project derives the view of r at now. It never mutates r.
func Project(r *Run, now time.Time) View {
	v := View{
		Counts:  r.counts,
		Summary: r.Summary(),
		Closed:  r.closed,
	}

	for _, e := range r.journal {
		v.Log = append(v.Log, projectEntry(e))
	}

	live := make([]LiveLine, 0, len(r.running))
	for _, t := range r.running {
		var elapsed time.Duration
		if !t.StartedAt.IsZero() && now.After(t.StartedAt) {
			elapsed = now.Sub(t.StartedAt)
		}
		live = append(live, LiveLine{Name: t.Name, Indicator: "…", Elapsed: elapsed})
	}
	slices.SortStableFunc(live, func(a, b LiveLine) int {
		return strings.Compare(a.Name, b.Name)
	})
	v.Live = live

	return v
}

func projectEntry(e Entry) Line {
	switch e.Kind {
	case EntryFailure:
		as := e.Failure.Assertion
		l := Line{
			Kind: EntryFailure,
			Test: as.Test,
			Name: as.Name,
			Diag: RenderDiagnostic(as.Diag),
		}
		l.Text = fmt.Sprintf("not ok %s > %s", DisplayName(as.Test), DisplayName(as.Name))
		if l.Diag != "" {
			l.Text += "\n" + Indent(l.Diag, "  ")
		}
		return l
	case EntrySummary:
		return Line{Kind: EntrySummary, Text: SummaryLine(e.Summary), OK: e.Summary.OK}
	default:
		return Line{Kind: EntryViolation, Test: e.Violation.Event.Test, Text: "protocol violation: " + e.Violation.Err.Error()}
	}
}

// SummaryLine renders the one-line closing tally.
func SummaryLine(s *Summary) string {
	status := "PASS"
	if !s.OK {
		status = "FAIL"
	}
	c := s.Counts
	return fmt.Sprintf("%s  total %d  pass %d  fail %d  skip %d  todo %d  (%s)",
		status, c.Total, c.Pass, c.Fail, c.Skip, c.Todo, FormatDuration(s.Duration))
}

// RenderDiagnostic renders a structural comparison when both found and
// wanted are present and differ, otherwise the diagnostic as YAML.
func RenderDiagnostic(d Diagnostic) string {
	if len(d) == 0 {
		return ""
	}
	if found, wanted, ok := d.FoundWanted(); ok {
		if diff := cmp.Diff(wanted, found); diff != "" {
			out := "--- wanted\n+++ found\n" + strings.TrimRight(diff, "\n")
			rest := maps.Clone(d)
			delete(rest, "found")
			delete(rest, "wanted")
			if len(rest) > 0 {
				out += "\n" + rawDiagnostic(rest)
			}
			return out
		}
	}
	return rawDiagnostic(d)
}

func rawDiagnostic(d Diagnostic) string {
	b, err := yaml.Marshal(map[string]any(d))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(d))
	}
	return strings.TrimRight(string(b), "\n")
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}

// DisplayName substitutes a placeholder for an empty test or assertion name.
func DisplayName(s string) string {
	if s == "" {
		return "(unnamed)"
	}
	return s
}

// Indent prefixes every line of s.
func Indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// LogCursor remembers how much of a View's append-only log a renderer has
// already emitted.
type LogCursor struct {
	emitted int
}

// Next returns the log lines of v not yet emitted and advances the cursor.
func (c *LogCursor) Next(v View) []Line {
	if c.emitted >= len(v.Log) {
		return nil
	}
	out := v.Log[c.emitted:]
	c.emitted = len(v.Log)
	return out
}

// Emitted returns the number of lines already handed out.
func (c *LogCursor) Emitted() int { return c.emitted }
