package eventlog

// SchemaDDL defines the SQLite schema for the run history database.
// Tables: runs (one row per run, filled in at run-ended) and events (every
// normalized event in delivery order, including rejected ones).
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- One row per run; ended_at stays NULL until run-ended was applied
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    ended_at TEXT,
    ok INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    pass INTEGER NOT NULL DEFAULT 0,
    fail INTEGER NOT NULL DEFAULT 0,
    skip INTEGER NOT NULL DEFAULT 0,
    todo INTEGER NOT NULL DEFAULT 0
);

-- Normalized events as delivered to the aggregator
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id),
    seq INTEGER NOT NULL,
    kind TEXT NOT NULL,
    test TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL,
    violation TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_events_run_seq ON events(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`

// timeLayout is used for every timestamp the package writes.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
