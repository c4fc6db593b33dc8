package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/Tpgainz/sirene-export/normalize"
)

const maxBatchSize = 50

type dbEntry struct {
	RunID      string
	Schema     string
	Siret      string
	TargetDate string
	Payload    string
	CreatedAt  time.Time
}

// Open connects to dsn with the pgx driver and creates the mirror table.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("error connecting to postgres: %w", err)
	}

	for _, q := range []string{createRowsTable, createRowsIndex} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("error creating sirene_rows: %w", err)
		}
	}

	return db, nil
}

// RowWriter mirrors exported rows into sirene_rows, 50 at a time.
type RowWriter struct {
	runID      string
	targetDate string
	now        func() time.Time
	buff       []dbEntry
	saved      int
	save       func(ctx context.Context, entries []dbEntry) error
}

func NewRowWriter(db *sql.DB, runID, targetDate string) *RowWriter {
	w := RowWriter{
		runID:      runID,
		targetDate: targetDate,
		now:        func() time.Time { return time.Now().UTC() },
		buff:       make([]dbEntry, 0, maxBatchSize),
	}

	w.save = func(ctx context.Context, entries []dbEntry) error {
		return batchSave(ctx, db, entries)
	}

	return &w
}

// Add buffers row and saves the batch once it is full.
func (w *RowWriter) Add(ctx context.Context, siret string, row *normalize.Row) error {
	payload, err := json.Marshal(row.Map())
	if err != nil {
		return fmt.Errorf("error encoding row %s: %w", siret, err)
	}

	w.buff = append(w.buff, dbEntry{
		RunID:      w.runID,
		Schema:     row.Schema().Name(),
		Siret:      siret,
		TargetDate: w.targetDate,
		Payload:    string(payload),
		CreatedAt:  w.now(),
	})

	if len(w.buff) >= maxBatchSize {
		return w.Flush(ctx)
	}

	return nil
}

// Flush saves the buffered rows.
func (w *RowWriter) Flush(ctx context.Context) error {
	if len(w.buff) == 0 {
		return nil
	}

	if err := w.save(ctx, w.buff); err != nil {
		return err
	}

	w.saved += len(w.buff)
	w.buff = w.buff[:0]

	return nil
}

// Saved is the number of rows committed so far.
func (w *RowWriter) Saved() int {
	return w.saved
}

func batchSave(ctx context.Context, db *sql.DB, entries []dbEntry) error {
	q, args, ok := NewInsertRowsQuery(entries).Build()
	if !ok {
		return nil
	}

	log := zerolog.Ctx(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("error saving %d rows: %w", len(entries), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing %d rows: %w", len(entries), err)
	}

	log.Debug().Int("rows", len(entries)).Msg("rows mirrored to postgres")

	return nil
}
