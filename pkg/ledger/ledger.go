// Package ledger records ingestion runs and processed files in SQLite so
// that watch mode can skip files it already ingested.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	_ "modernc.org/sqlite"
)

// File is a row from the ingested_files table.
type File struct {
	Path             string
	Size             int64
	ModTime          int64
	RunID            string
	Provider         string
	Status           string
	Products         int
	TotalRows        int
	SkippedRows      int
	CoercionFailures int
	Uncategorized    int
	DuplicatePairs   int
	Error            *string
	ProcessedAt      int64
}

// Run is a row from the runs table.
type Run struct {
	RunID      string
	StartedAt  int64
	FinishedAt int64
	Files      int
	Failed     int
	Products   int
}

// File statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Ledger manages the runs and ingested_files SQLite tables.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures both
// tables exist.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	const ddl = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id       TEXT PRIMARY KEY,
		started_at   INTEGER NOT NULL,
		finished_at  INTEGER NOT NULL,
		files        INTEGER NOT NULL,
		failed       INTEGER NOT NULL,
		products     INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS ingested_files (
		path              TEXT PRIMARY KEY,
		size              INTEGER NOT NULL,
		mod_time          INTEGER NOT NULL,
		run_id            TEXT NOT NULL,
		provider          TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		products          INTEGER NOT NULL DEFAULT 0,
		total_rows        INTEGER NOT NULL DEFAULT 0,
		skipped_rows      INTEGER NOT NULL DEFAULT 0,
		coercion_failures INTEGER NOT NULL DEFAULT 0,
		uncategorized     INTEGER NOT NULL DEFAULT 0,
		duplicate_pairs   INTEGER NOT NULL DEFAULT 0,
		error             TEXT,
		processed_at      INTEGER NOT NULL
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger tables: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the SQLite connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Seen reports whether path was already ingested with the same size and
// modification time.
func (l *Ledger) Seen(path string, size, modTime int64) (bool, error) {
	var n int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM ingested_files WHERE path = ? AND size = ? AND mod_time = ?`,
		path, size, modTime,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("seen %s: %w", path, err)
	}
	return n > 0, nil
}

// Stat is the file identity recorded with each result.
type Stat struct {
	Size    int64
	ModTime int64
}

// RecordRun persists a batch report and one row per file. stats maps file
// paths to their identity at ingestion time; missing entries record zeros.
func (l *Ledger) RecordRun(rep *pipeline.Report, stats map[string]Stat) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO runs (run_id, started_at, finished_at, files, failed, products) VALUES (?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.StartedAt.Unix(), rep.FinishedAt.Unix(), len(rep.Files), rep.Failed, rep.Products,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", rep.RunID, err)
	}

	const q = `INSERT OR REPLACE INTO ingested_files
		(path, size, mod_time, run_id, provider, status, products, total_rows, skipped_rows,
		 coercion_failures, uncategorized, duplicate_pairs, error, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().Unix()
	for _, res := range rep.Files {
		status := StatusOK
		var errPtr *string
		if res.Err != nil {
			status = StatusFailed
			msg := res.Err.Error()
			errPtr = &msg
		}
		st := stats[res.File]
		s := res.Summary
		if _, err := tx.Exec(q, res.File, st.Size, st.ModTime, rep.RunID, res.Provider, status,
			len(res.Products), s.TotalRows, s.SkippedRows, s.CoercionFailures, s.UncategorizedCount,
			s.DuplicatePairsFound, errPtr, now); err != nil {
			return fmt.Errorf("record %s: %w", res.File, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first, at most limit rows.
func (l *Ledger) ListRuns(limit int) ([]Run, error) {
	rows, err := l.db.Query(`SELECT run_id, started_at, finished_at, files, failed, products
		FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Files, &r.Failed, &r.Products); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListFiles returns the files of a run ordered by path.
func (l *Ledger) ListFiles(runID string) ([]File, error) {
	rows, err := l.db.Query(`SELECT path, size, mod_time, run_id, provider, status, products,
		total_rows, skipped_rows, coercion_failures, uncategorized, duplicate_pairs, error, processed_at
		FROM ingested_files WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Path, &f.Size, &f.ModTime, &f.RunID, &f.Provider, &f.Status, &f.Products,
			&f.TotalRows, &f.SkippedRows, &f.CoercionFailures, &f.Uncategorized, &f.DuplicatePairs,
			&f.Error, &f.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
