package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pikaboard/pikausage/internal/model"
)

// keepScans is how many scan journal rows survive pruning
const keepScans = 500

// DB wraps the SQL database connection. It holds browser sessions and the scan
// journal; usage itself is always recomputed from the session logs.
type DB struct {
	*sql.DB
}

// ScanRun is one row of the scan journal
type ScanRun struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"startedAt"`
	DurationMs     int64     `json:"durationMs"`
	Files          int       `json:"files"`
	Sessions       int       `json:"sessions"`
	Events         int       `json:"events"`
	Malformed      int       `json:"malformed"`
	NonUsage       int       `json:"nonUsage"`
	UnpricedTokens int64     `json:"unpricedTokens"`
	Errors         int       `json:"errors"`
}

// Open opens a SQLite database connection
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors under concurrent load
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// Migrate creates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);

	CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER NOT NULL,
		files INTEGER NOT NULL,
		sessions INTEGER NOT NULL,
		events INTEGER NOT NULL,
		malformed INTEGER NOT NULL,
		non_usage INTEGER NOT NULL,
		unpriced_tokens INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at);
	`

	_, err := db.Exec(schema)
	return err
}

// RecordScan appends a scan to the journal and prunes the oldest rows
func (db *DB) RecordScan(ctx context.Context, diag model.ScanDiagnostics) error {
	var unpriced int64
	for _, tokens := range diag.Unpriced {
		unpriced += tokens
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scan_runs (id, started_at, duration_ms, files, sessions, events, malformed, non_usage, unpriced_tokens, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		diag.ID, diag.StartedAt.UTC(), diag.Duration.Milliseconds(), diag.Files, diag.Sessions,
		diag.Events, diag.Malformed, diag.NonUsage, unpriced, len(diag.Errors),
	)
	if err != nil {
		return fmt.Errorf("insert scan run: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM scan_runs WHERE id NOT IN (
			SELECT id FROM scan_runs ORDER BY started_at DESC LIMIT ?
		)`,
		keepScans,
	)
	if err != nil {
		return fmt.Errorf("prune scan runs: %w", err)
	}

	return tx.Commit()
}

// ListScans returns the most recent scans, newest first
func (db *DB) ListScans(ctx context.Context, limit int) ([]ScanRun, error) {
	if limit <= 0 || limit > keepScans {
		limit = keepScans
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, files, sessions, events, malformed, non_usage, unpriced_tokens, errors
		 FROM scan_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []ScanRun{}
	for rows.Next() {
		var r ScanRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.DurationMs, &r.Files, &r.Sessions,
			&r.Events, &r.Malformed, &r.NonUsage, &r.UnpricedTokens, &r.Errors); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
