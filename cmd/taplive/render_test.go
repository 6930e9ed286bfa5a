package main

import (
	"testing"

	"taplive/pkg/report"
)

func TestRenderLineFailure(t *testing.T) {
	st := NewStyles(DefaultTheme(), false)
	got := renderLine(report.Line{Kind: report.EntryFailure, Test: "a.sh", Diag: "found: 1\nwanted: 2"}, st)
	want := "not ok a.sh > (unnamed)\n  found: 1\n  wanted: 2"
	if got != want {
		t.Errorf("renderLine() = %q, want %q", got, want)
	}
}
