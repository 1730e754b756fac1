package database

import (
	"context"
	"database/sql"
	"fmt"

	"reaper-go/internal/reaper"
)

// Sweep run tracking

func (s *SQLiteStore) CreateSweepRun(ctx context.Context, run *reaper.SweepRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sweep_runs (id, started_at, status) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.Status,
	)
	if err != nil {
		return fmt.Errorf("creating sweep run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishSweepRun(ctx context.Context, run *reaper.SweepRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sweep_runs
		SET finished_at = ?, due = ?, purged = ?, failed = ?, skipped = ?, status = ?
		WHERE id = ?`,
		nullTime(run.FinishedAt), run.Due, run.Purged, run.Failed, run.Skipped, run.Status, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing sweep run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSweepRuns(ctx context.Context, limit int) ([]*reaper.SweepRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, due, purged, failed, skipped, status
		FROM sweep_runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sweep runs: %w", err)
	}
	defer rows.Close()

	var result []*reaper.SweepRun
	for rows.Next() {
		var (
			r        reaper.SweepRun
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Due, &r.Purged, &r.Failed, &r.Skipped, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning sweep run: %w", err)
		}
		r.FinishedAt = timePtr(finished)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sweep runs: %w", err)
	}
	return result, nil
}
