package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"taplive/pkg/report"
)

// Writer appends runs and their events to the history database.
type Writer struct {
	db *sql.DB
}

// OpenWriter opens (creating if needed) the database at path, applies
// WAL mode with a 5-second busy timeout so concurrent taplive processes
// and readers do not block each other, and ensures the schema exists.
func OpenWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema on %s: %w", path, err)
	}
	return &Writer{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	return db, nil
}

// Close releases the database connection. Safe to call multiple times.
func (w *Writer) Close() error {
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}

// StartRun inserts the row for a new run.
func (w *Writer) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		runID, startedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	return nil
}

// Record stores one event at position seq. applyErr is the violation the
// aggregator returned for it, if any; rejected events are kept so a replay
// reproduces the same journal.
func (w *Writer) Record(ctx context.Context, runID string, seq int, ev report.Event, applyErr error) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	var violation sql.NullString
	if applyErr != nil {
		violation = sql.NullString{String: applyErr.Error(), Valid: true}
	}
	_, err = w.db.ExecContext(ctx,
		`INSERT INTO events (run_id, seq, kind, test, payload, violation) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, seq, ev.Kind.String(), ev.Test, string(payload), violation,
	)
	if err != nil {
		return fmt.Errorf("insert event %d of run %s: %w", seq, runID, err)
	}
	return nil
}

// FinishRun stores the closing summary of a run.
func (w *Writer) FinishRun(ctx context.Context, runID string, s report.Summary, endedAt time.Time) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, ok = ?, total = ?, pass = ?, fail = ?, skip = ?, todo = ? WHERE id = ?`,
		endedAt.UTC().Format(timeLayout), s.OK,
		s.Counts.Total, s.Counts.Pass, s.Counts.Fail, s.Counts.Skip, s.Counts.Todo,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
