// internal/history/db.go
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/marvinous/internal/protocol"
	_ "modernc.org/sqlite"
)

// tsLayout is fixed-width so text ordering matches time ordering
const tsLayout = "2006-01-02T15:04:05.000000Z"

// DB is the run log: one row per guarded hourly or daily run
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL lets the dashboard read while a run is being recorded
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		outcome TEXT NOT NULL,
		severity TEXT,
		report_file TEXT,
		error TEXT,
		attempts INTEGER,
		latency_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// InsertRun stores a finished run and sets r.ID
func (d *DB) InsertRun(r *protocol.RunRecord) error {
	res, err := d.db.Exec(`
		INSERT INTO runs (run_id, kind, started_at, finished_at, outcome, severity, report_file, error, attempts, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.Kind,
		r.StartedAt.UTC().Format(tsLayout), r.FinishedAt.UTC().Format(tsLayout),
		r.Outcome, r.Severity, r.ReportFile, r.Error, r.Attempts, r.LatencyMs)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// Recent returns the latest runs, newest first
func (d *DB) Recent(limit int) ([]protocol.RunRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, run_id, kind, started_at, finished_at, outcome, severity, report_file, error, attempts, latency_ms
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Failures returns the latest runs that did not succeed
func (d *DB) Failures(limit int) ([]protocol.RunRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, run_id, kind, started_at, finished_at, outcome, severity, report_file, error, attempts, latency_ms
		FROM runs
		WHERE outcome = 'failed'
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// OutcomeCounts returns count of runs by outcome
func (d *DB) OutcomeCounts() (map[string]int, error) {
	rows, err := d.db.Query(`
		SELECT outcome, COUNT(*) FROM runs GROUP BY outcome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}

func scanRuns(rows *sql.Rows) ([]protocol.RunRecord, error) {
	runs := []protocol.RunRecord{}
	for rows.Next() {
		var r protocol.RunRecord
		var startedStr, finishedStr string
		var severity, reportFile, errText sql.NullString
		var attempts, latency sql.NullInt64

		err := rows.Scan(&r.ID, &r.RunID, &r.Kind, &startedStr, &finishedStr, &r.Outcome,
			&severity, &reportFile, &errText, &attempts, &latency)
		if err != nil {
			return nil, err
		}

		r.StartedAt, _ = time.Parse(tsLayout, startedStr)
		r.FinishedAt, _ = time.Parse(tsLayout, finishedStr)
		r.Severity = severity.String
		r.ReportFile = reportFile.String
		r.Error = errText.String
		r.Attempts = int(attempts.Int64)
		r.LatencyMs = latency.Int64

		runs = append(runs, r)
	}
	return runs, rows.Err()
}
