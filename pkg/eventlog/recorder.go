package eventlog

import (
	"context"
	"io"
	"log"
	"time"

	"taplive/pkg/report"
)

// Recorder is a report.Sink that applies each event to an aggregator and
// then stores it, together with any violation, under the aggregator's run
// ID. Storage failures are logged and never block reporting.
type Recorder struct {
	agg    *report.Aggregator
	w      *Writer
	logger *log.Logger
	seq    int
	failed bool
}

// NewRecorder starts a run row for agg's run and returns the sink. A nil
// writer records nothing and only forwards to agg.
func NewRecorder(ctx context.Context, agg *report.Aggregator, w *Writer, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rec := &Recorder{agg: agg, w: w, logger: logger}
	if w != nil {
		run := agg.Run()
		if err := w.StartRun(ctx, run.ID(), run.OpenedAt()); err != nil {
			rec.disable(err)
		}
	}
	return rec
}

// Apply implements report.Sink.
func (r *Recorder) Apply(ev report.Event) error {
	applyErr := r.agg.Apply(ev)
	if r.w == nil || r.failed {
		return applyErr
	}

	ctx := context.Background()
	run := r.agg.Run()
	r.seq++
	if err := r.w.Record(ctx, run.ID(), r.seq, ev, applyErr); err != nil {
		r.disable(err)
		return applyErr
	}
	if ev.Kind == report.RunEnded && applyErr == nil {
		endedAt := ev.At
		if endedAt.IsZero() {
			endedAt = time.Now()
		}
		if err := r.w.FinishRun(ctx, run.ID(), *run.Summary(), endedAt); err != nil {
			r.disable(err)
		}
	}
	return applyErr
}

// Seq returns how many events have been stored.
func (r *Recorder) Seq() int { return r.seq }

func (r *Recorder) disable(err error) {
	r.failed = true
	r.logger.Printf("eventlog: recording disabled: %v", err)
}
