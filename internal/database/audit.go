package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reaper-go/internal/reaper"
)

// Record writes an audit record to the audit_log table. Audit rows carry no
// foreign keys and outlive the accounts they describe.
func (s *SQLiteStore) Record(ctx context.Context, action string, entityID string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding audit metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, entity_id, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), action, entityID, string(encoded), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// ListAuditRecords returns the audit trail for an entity, oldest first.
func (s *SQLiteStore) ListAuditRecords(ctx context.Context, entityID string) ([]*reaper.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_id, metadata, created_at
		FROM audit_log
		WHERE entity_id = ?
		ORDER BY created_at, rowid`, entityID)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	defer rows.Close()

	var result []*reaper.AuditRecord
	for rows.Next() {
		var (
			r        reaper.AuditRecord
			metadata string
		)
		if err := rows.Scan(&r.ID, &r.Action, &r.EntityID, &metadata, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decoding audit metadata: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	return result, nil
}
