package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"taplive/pkg/eventlog"
	"taplive/pkg/harness"
	"taplive/pkg/report"
)

// plainSink applies events synchronously and prints each new log line as
// soon as it exists. It has no live region, so it suits pipes and CI logs.
type plainSink struct {
	rec    *eventlog.Recorder
	run    *report.Run
	out    io.Writer
	styles Styles
	cursor report.LogCursor
	now    func() time.Time
}

func newPlainSink(rec *eventlog.Recorder, run *report.Run, out io.Writer, styles Styles) *plainSink {
	return &plainSink{rec: rec, run: run, out: out, styles: styles, now: time.Now}
}

// Apply implements report.Sink.
func (s *plainSink) Apply(ev report.Event) error {
	err := s.rec.Apply(ev)
	s.flush()
	return err
}

func (s *plainSink) flush() {
	for _, l := range s.cursor.Next(report.Project(s.run, s.now())) {
		fmt.Fprintln(s.out, renderLine(l, s.styles))
	}
}

// runPlain runs programs with the line reporter and prints the timing
// table once the run has closed.
func runPlain(ctx context.Context, env runEnv) error {
	sink := newPlainSink(env.recorder, env.run, env.out, env.styles)
	bridge := report.NewBridge(sink, env.logger)
	_, err := harness.New(bridge, env.harnessOpts).Run(ctx, env.programs)
	if s := env.run.Summary(); s != nil && len(s.Timings) > 0 {
		fmt.Fprint(env.out, renderTimings(s, env.color))
	}
	return err
}
