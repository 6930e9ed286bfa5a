package eventlog

import (
	"context"
	"fmt"

	"taplive/pkg/report"
)

// Replay feeds the stored events of a run through a fresh aggregator in
// their original order and returns the resulting run. Events that were
// rejected when recorded are rejected again, so the journal matches the
// live one.
func (r *Reader) Replay(ctx context.Context, runID string) (*report.Run, error) {
	rec, err := r.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	records, err := r.Events(ctx, QueryOpts{RunID: rec.ID})
	if err != nil {
		return nil, err
	}

	agg := report.NewAggregator(report.NewRun(rec.ID, rec.StartedAt))
	for _, stored := range records {
		applyErr := agg.Apply(stored.Event)
		if (applyErr != nil) != (stored.Violation != "") {
			return agg.Run(), fmt.Errorf("replay of run %s diverged at event %d (%s): recorded %q, got %v",
				rec.ID, stored.Seq, stored.Event.Kind, stored.Violation, applyErr)
		}
	}
	return agg.Run(), nil
}

// Failures returns the failure log of a stored run, reproduced by replay
// so suppressed restatements stay suppressed.
func (r *Reader) Failures(ctx context.Context, runID string) ([]report.FailureEntry, error) {
	run, err := r.Replay(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Failures(), nil
}
