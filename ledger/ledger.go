// Package ledger records every extraction run in a local SQLite file.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNoRuns is returned by Last when nothing was recorded for a mode.
var ErrNoRuns = errors.New("no run recorded")

// timeLayout has a fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	target_date TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	row_count INTEGER NOT NULL DEFAULT 0,
	created INTEGER NOT NULL DEFAULT 0,
	closed INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	archive TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
)`

type Run struct {
	ID         string
	Mode       string
	TargetDate string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Error      string

	Result
}

// Result is what a completed run produced.
type Result struct {
	Rows    int
	Created int
	Closed  int
	Skipped int
	Archive string
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the ledger file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening ledger %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("error creating ledger schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Begin records a run as started.
func (s *Store) Begin(ctx context.Context, id, mode, targetDate string) error {
	const q = `INSERT INTO runs (id, mode, target_date, started_at, status) VALUES (?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, q, id, mode, targetDate, s.timestamp(), StatusRunning); err != nil {
		return fmt.Errorf("error recording run %s: %w", id, err)
	}

	return nil
}

// Complete marks the run completed with its counters.
func (s *Store) Complete(ctx context.Context, id string, r Result) error {
	const q = `UPDATE runs SET finished_at = ?, status = ?, row_count = ?, created = ?, closed = ?, skipped = ?, archive = ?
		WHERE id = ?`

	return s.finish(ctx, id, q, s.timestamp(), StatusCompleted, r.Rows, r.Created, r.Closed, r.Skipped, r.Archive, id)
}

// Fail marks the run failed with the error message.
func (s *Store) Fail(ctx context.Context, id string, runErr error) error {
	const q = `UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`

	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	return s.finish(ctx, id, q, s.timestamp(), StatusFailed, msg, id)
}

func (s *Store) finish(ctx context.Context, id, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("error updating run %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("error updating run %s: unknown run", id)
	}

	return nil
}

// Last returns the most recently started run of mode.
func (s *Store) Last(ctx context.Context, mode string) (*Run, error) {
	const q = `SELECT id, mode, target_date, started_at, COALESCE(finished_at, ''), status,
		row_count, created, closed, skipped, archive, error
		FROM runs WHERE mode = ? ORDER BY started_at DESC LIMIT 1`

	var (
		r                 Run
		started, finished string
	)

	err := s.db.QueryRowContext(ctx, q, mode).Scan(
		&r.ID, &r.Mode, &r.TargetDate, &started, &finished, &r.Status,
		&r.Rows, &r.Created, &r.Closed, &r.Skipped, &r.Archive, &r.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}

	if err != nil {
		return nil, fmt.Errorf("error reading last %s run: %w", mode, err)
	}

	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("error reading run %s: %w", r.ID, err)
	}

	if finished != "" {
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("error reading run %s: %w", r.ID, err)
		}
	}

	return &r, nil
}
