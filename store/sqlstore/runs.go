package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// =============================================================================
// INGESTION RUNS
// =============================================================================

const runsSchema = `
	CREATE TABLE IF NOT EXISTS ingestion_runs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		format TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		read_rows INTEGER NOT NULL DEFAULT 0,
		discarded INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		ineligible INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		inserted INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		issues INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	)
`

// Run statuses.
const (
	RunCompleted = "completed"
	RunSkipped   = "skipped"
	RunFailed    = "failed"
)

// IngestionRun records what one run did with one extract.
type IngestionRun struct {
	ID         string
	RunID      string
	Format     string
	Source     string
	Status     string // completed, skipped, failed
	Read       int
	Discarded  int
	Rejected   int
	Ineligible int
	Duplicates int
	Inserted   int
	Updated    int
	Issues     int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SaveRun stores a run record, replacing one with the same ID.
func (s *Store) SaveRun(ctx context.Context, r IngestionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO ingestion_runs (id, run_id, format, source, status, read_rows, discarded,
			rejected, ineligible, duplicates, inserted, updated, issues, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			read_rows = excluded.read_rows,
			discarded = excluded.discarded,
			rejected = excluded.rejected,
			ineligible = excluded.ineligible,
			duplicates = excluded.duplicates,
			inserted = excluded.inserted,
			updated = excluded.updated,
			issues = excluded.issues,
			error = excluded.error,
			finished_at = excluded.finished_at
	`

	_, err := s.db.ExecContext(ctx, s.dialect.bind(query),
		r.ID, r.RunID, r.Format, r.Source, r.Status,
		r.Read, r.Discarded, r.Rejected, r.Ineligible, r.Duplicates,
		r.Inserted, r.Updated, r.Issues, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save ingestion run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent run records first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]IngestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, run_id, format, source, status, read_rows, discarded, rejected,
			ineligible, duplicates, inserted, updated, issues, error, started_at, finished_at
		FROM ingestion_runs
		ORDER BY started_at DESC, format
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion runs: %w", err)
	}
	defer rows.Close()

	var runs []IngestionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read ingestion run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (IngestionRun, error) {
	var r IngestionRun
	var startedAt, finishedAt string
	if err := rows.Scan(
		&r.ID, &r.RunID, &r.Format, &r.Source, &r.Status, &r.Read, &r.Discarded, &r.Rejected,
		&r.Ineligible, &r.Duplicates, &r.Inserted, &r.Updated, &r.Issues, &r.Error,
		&startedAt, &finishedAt,
	); err != nil {
		return IngestionRun{}, err
	}
	var err error
	if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return IngestionRun{}, fmt.Errorf("run %s: started_at: %w", r.ID, err)
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
		return IngestionRun{}, fmt.Errorf("run %s: finished_at: %w", r.ID, err)
	}
	return r, nil
}
