package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"reaper-go/internal/reaper"
)

// PurgeAccount deletes the account's dependent rows kind by kind in registry
// order, inserts the tombstone and deletes the account row, all in one
// transaction. The status check runs inside the transaction, so of two
// concurrent purges of the same account only one can succeed.
func (s *SQLiteStore) PurgeAccount(ctx context.Context, req *reaper.PurgeRequest) (*reaper.Tombstone, error) {
	if req.Registry == nil {
		return nil, fmt.Errorf("purge request has no registry")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkPending(ctx, tx, req.AccountID); err != nil {
		return nil, err
	}

	summary := reaper.PurgeSummary{
		MediaBlobsRemoved: req.MediaBlobsRemoved,
		MediaBlobsFailed:  req.MediaBlobsFailed,
		RowsDeleted:       make(map[string]int64),
	}

	for _, kind := range req.Registry.Kinds() {
		where, args, err := ownershipClause(req.Registry, kind, req.AccountID)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM `+quoteIdent(kind.Name)+` WHERE `+where, args...)
		if err != nil {
			return nil, fmt.Errorf("deleting %s: %w", kind.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("counting deleted %s: %w", kind.Name, err)
		}
		summary.RowsDeleted[kind.Name] = n
	}

	metadata, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encoding tombstone metadata: %w", err)
	}

	tombstone := &reaper.Tombstone{
		ID:        req.TombstoneID,
		AccountID: req.AccountID,
		PurgedAt:  req.PurgedAt.UTC(),
		Summary:   summary,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tombstones (id, account_id, purged_at, metadata) VALUES (?, ?, ?, ?)`,
		tombstone.ID, tombstone.AccountID, tombstone.PurgedAt, string(metadata),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting tombstone: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, req.AccountID); err != nil {
		return nil, fmt.Errorf("deleting account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return tombstone, nil
}

// checkPending fails unless the account exists and is pending deletion.
func checkPending(ctx context.Context, tx *sql.Tx, accountID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM accounts WHERE id = ?`, accountID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tombstones WHERE account_id = ?`, accountID).Scan(&one)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", reaper.ErrAlreadyPurged, accountID)
		case errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("%w: %s", reaper.ErrAccountNotFound, accountID)
		default:
			return fmt.Errorf("checking tombstone: %w", err)
		}
	}
	if err != nil {
		return fmt.Errorf("checking account status: %w", err)
	}
	if reaper.Status(status) != reaper.StatusPendingDeletion {
		return fmt.Errorf("%w: account %s is %s", reaper.ErrInvalidState, accountID, status)
	}
	return nil
}

// ownershipClause builds the WHERE clause selecting the rows of kind owned by
// the account. Nested kinds recurse through their parent:
//
//	session_exercise_id IN (SELECT id FROM session_exercises WHERE session_id IN (...))
func ownershipClause(reg *reaper.Registry, kind reaper.EntityKind, accountID string) (string, []any, error) {
	if len(kind.Owner.Columns) > 0 {
		conds := make([]string, len(kind.Owner.Columns))
		args := make([]any, len(kind.Owner.Columns))
		for i, col := range kind.Owner.Columns {
			conds[i] = quoteIdent(col) + ` = ?`
			args[i] = accountID
		}
		if len(conds) == 1 {
			return conds[0], args, nil
		}
		return "(" + strings.Join(conds, " OR ") + ")", args, nil
	}

	parent, ok := reg.Lookup(kind.Owner.Parent)
	if !ok {
		return "", nil, fmt.Errorf("entity kind %q references unknown parent %q", kind.Name, kind.Owner.Parent)
	}
	inner, args, err := ownershipClause(reg, parent, accountID)
	if err != nil {
		return "", nil, err
	}
	clause := fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)",
		quoteIdent(kind.Owner.ParentColumn), quoteIdent(parent.KeyColumn()), quoteIdent(parent.Name), inner)
	return clause, args, nil
}

// Tombstone operations

func (s *SQLiteStore) FindTombstone(ctx context.Context, accountID string) (*reaper.Tombstone, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, purged_at, metadata FROM tombstones WHERE account_id = ?`, accountID)
	t, err := scanTombstone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding tombstone: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTombstones(ctx context.Context, limit int) ([]*reaper.Tombstone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, purged_at, metadata
		FROM tombstones
		ORDER BY purged_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tombstones: %w", err)
	}
	defer rows.Close()

	var result []*reaper.Tombstone
	for rows.Next() {
		t, err := scanTombstone(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tombstone: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tombstones: %w", err)
	}
	return result, nil
}

func scanTombstone(row rowScanner) (*reaper.Tombstone, error) {
	var (
		t        reaper.Tombstone
		metadata string
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.PurgedAt, &metadata); err != nil {
		return nil, err
	}
	t.PurgedAt = t.PurgedAt.UTC()
	if err := json.Unmarshal([]byte(metadata), &t.Summary); err != nil {
		return nil, fmt.Errorf("decoding tombstone metadata: %w", err)
	}
	return &t, nil
}
