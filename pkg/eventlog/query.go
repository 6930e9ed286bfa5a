// Package eventlog persists every normalized report event in a SQLite
// database so past runs can be listed, queried and replayed through a
// fresh aggregator.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"taplive/pkg/report"
)

// ErrRunNotFound is returned when a run ID has no row in the database.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID        string
	StartedAt time.Time
	// EndedAt is zero for a run that never reached run-ended.
	EndedAt time.Time
	OK      bool
	Counts  report.Counts
}

// Finished reports whether run-ended was recorded.
func (r RunRecord) Finished() bool { return !r.EndedAt.IsZero() }

// Duration is the wall time between start and end, zero when unfinished.
func (r RunRecord) Duration() time.Duration {
	if !r.Finished() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Record is one stored event.
type Record struct {
	ID    int64
	RunID string
	Seq   int
	Event report.Event
	// Violation is the rejection message, empty when the event applied.
	Violation string
	CreatedAt time.Time
}

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// RunID filters events to one run.
	RunID string

	// Kind filters to one event kind; zero matches every kind.
	Kind report.Kind

	// Test filters to events naming this test.
	Test string

	// ViolationsOnly keeps only rejected events.
	ViolationsOnly bool

	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Reader provides read-only access to the history database.
type Reader struct {
	db *sql.DB
}

// NewReader opens the history database in read-only mode.
// Returns an error if the database doesn't exist or cannot be opened.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	// Read-only so a running taplive keeps write access.
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Reader{db: db}, nil
}

// Close releases the database connection.
// Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (r *Reader) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	query := "SELECT id, started_at, ended_at, ok, total, pass, fail, skip, todo FROM runs ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Run returns one run by ID. An ID prefix is accepted when it is unique,
// so the short form printed by `history` works.
func (r *Reader) Run(ctx context.Context, id string) (RunRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, started_at, ended_at, ok, total, pass, fail, skip, todo FROM runs WHERE id = ? OR id LIKE ? || '%' LIMIT 2",
		id, id,
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("query run %s: %w", id, err)
	}
	defer rows.Close()

	var found []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return RunRecord{}, err
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return RunRecord{}, fmt.Errorf("iterate runs: %w", err)
	}
	switch len(found) {
	case 0:
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	case 1:
		return found[0], nil
	default:
		return RunRecord{}, fmt.Errorf("run prefix %s is ambiguous", id)
	}
}

// Latest returns the most recently started run.
func (r *Reader) Latest(ctx context.Context) (RunRecord, error) {
	runs, err := r.Runs(ctx, 1)
	if err != nil {
		return RunRecord{}, err
	}
	if len(runs) == 0 {
		return RunRecord{}, ErrRunNotFound
	}
	return runs[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		run              RunRecord
		started          string
		ended            sql.NullString
		ok               int
		total, pass      int
		fail, skip, todo int
	)
	if err := s.Scan(&run.ID, &started, &ended, &ok, &total, &pass, &fail, &skip, &todo); err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return RunRecord{}, fmt.Errorf("parse started_at of %s: %w", run.ID, err)
	}
	if ended.Valid {
		if run.EndedAt, err = parseTime(ended.String); err != nil {
			return RunRecord{}, fmt.Errorf("parse ended_at of %s: %w", run.ID, err)
		}
	}
	run.OK = ok != 0
	run.Counts = report.Counts{Total: total, Pass: pass, Fail: fail, Skip: skip, Todo: todo}
	return run, nil
}

// Events retrieves events matching the given filter criteria in delivery
// order. Returns an empty slice if no events match.
func (r *Reader) Events(ctx context.Context, opts QueryOpts) ([]Record, error) {
	query, args := buildQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			payload   string
			violation sql.NullString
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Seq, &payload, &violation, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if rec.Event, err = decodeEvent(payload); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", rec.ID, err)
		}
		rec.Violation = violation.String
		if createdAt != "" {
			if rec.CreatedAt, err = parseTime(createdAt); err != nil {
				return nil, fmt.Errorf("parse created_at: %w", err)
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return records, nil
}

// decodeEvent reverses the JSON payload written by Record. Diagnostic
// numbers come back as int when integral, as the TAP parser produces them,
// so replayed diagnostics render the same as live ones.
func decodeEvent(payload string) (report.Event, error) {
	var ev report.Event
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return report.Event{}, err
	}
	if ev.Assertion != nil && ev.Assertion.Diag != nil {
		for k, v := range ev.Assertion.Diag {
			ev.Assertion.Diag[k] = normalizeNumbers(v)
		}
	}
	return ev, nil
}

func normalizeNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeNumbers(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeNumbers(e)
		}
		return v
	default:
		return v
	}
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, run_id, seq, payload, violation, created_at FROM events WHERE 1=1"

	if opts.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, opts.RunID)
	}

	if opts.Kind != 0 {
		conditions = append(conditions, "kind = ?")
		args = append(args, opts.Kind.String())
	}

	if opts.Test != "" {
		conditions = append(conditions, "test = ?")
		args = append(args, opts.Test)
	}

	if opts.ViolationsOnly {
		conditions = append(conditions, "violation IS NOT NULL")
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY run_id, seq"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	return query, args
}

// parseTime accepts the package's own layout and SQLite's datetime('now').
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
