package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"taplive/pkg/eventlog"
	"taplive/pkg/report"
)

// renderLine styles one append-only log line.
func renderLine(l report.Line, st Styles) string {
	switch l.Kind {
	case report.EntryFailure:
		head := st.Failure.Render("not ok") + " " + st.Bold.Render(report.DisplayName(l.Test)) + " > " + report.DisplayName(l.Name)
		if l.Diag == "" {
			return head
		}
		return head + "\n" + st.Diag.Render(report.Indent(l.Diag, "  "))
	case report.EntrySummary:
		if l.OK {
			return st.SummaryOK.Render(l.Text)
		}
		return st.SummaryKO.Render(l.Text)
	default:
		return st.Violation.Render(l.Text)
	}
}

// renderLive renders the rewritable region: one row per running test and
// a status line with the running tallies.
func renderLive(v report.View, st Styles, indicator string) string {
	var b strings.Builder
	for _, l := range v.Live {
		ind := indicator
		if ind == "" {
			ind = l.Indicator
		}
		fmt.Fprintf(&b, "%s %s %s\n",
			st.Running.Render(ind),
			l.Name,
			st.Elapsed.Render(report.FormatDuration(l.Elapsed)))
	}
	b.WriteString(statusLine(v, st))
	return b.String()
}

func statusLine(v report.View, st Styles) string {
	c := v.Counts
	return fmt.Sprintf("%s  %s  %s  %s  %s",
		st.Running.Render(fmt.Sprintf("running %d", len(v.Live))),
		st.Pass.Render(fmt.Sprintf("pass %d", c.Pass)),
		st.Fail.Render(fmt.Sprintf("fail %d", c.Fail)),
		st.Skip.Render(fmt.Sprintf("skip %d", c.Skip)),
		st.Skip.Render(fmt.Sprintf("todo %d", c.Todo)))
}

// renderTimings renders the per-test timing table of a closed run.
func renderTimings(s *report.Summary, color bool) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"Test", "Status", "Asserts", "Pass", "Fail", "Skip", "Todo", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Asserts", Align: text.AlignRight},
		{Name: "Pass", Align: text.AlignRight},
		{Name: "Fail", Align: text.AlignRight},
		{Name: "Skip", Align: text.AlignRight},
		{Name: "Todo", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, tm := range s.Timings {
		t.AppendRow(table.Row{
			report.DisplayName(tm.Name),
			statusWord(tm.Status == report.StatusPassed),
			tm.Counts.Total,
			tm.Counts.Pass,
			tm.Counts.Fail,
			tm.Counts.Skip,
			tm.Counts.Todo,
			report.FormatDuration(tm.Duration),
		})
	}

	c := s.Counts
	t.AppendFooter(table.Row{
		"TOTAL", statusWord(s.OK), c.Total, c.Pass, c.Fail, c.Skip, c.Todo, report.FormatDuration(s.Duration),
	})

	applyTableStyle(t, color, s.OK, c.Skip+c.Todo > 0)
	t.Render()
	return buf.String()
}

// renderHistory renders stored runs, newest first.
func renderHistory(runs []eventlog.RunRecord, color bool) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"Run", "Started", "Duration", "Status", "Total", "Pass", "Fail", "Skip", "Todo"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Total", Align: text.AlignRight},
		{Name: "Pass", Align: text.AlignRight},
		{Name: "Fail", Align: text.AlignRight},
		{Name: "Skip", Align: text.AlignRight},
		{Name: "Todo", Align: text.AlignRight},
	})

	allOK := true
	for _, r := range runs {
		status := "INCOMPLETE"
		if r.Finished() {
			status = statusWord(r.OK)
		}
		allOK = allOK && r.Finished() && r.OK
		t.AppendRow(table.Row{
			shortID(r.ID),
			r.StartedAt.Local().Format(time.DateTime),
			report.FormatDuration(r.Duration()),
			status,
			r.Counts.Total,
			r.Counts.Pass,
			r.Counts.Fail,
			r.Counts.Skip,
			r.Counts.Todo,
		})
	}

	applyTableStyle(t, color, allOK, false)
	t.Render()
	return buf.String()
}

func applyTableStyle(t table.Writer, color, ok, skipped bool) {
	switch {
	case !color:
		t.SetStyle(table.StyleLight)
	case !ok:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case skipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
}

func statusWord(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
