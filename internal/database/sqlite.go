package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reaper-go/internal/database/migrations"
	"reaper-go/internal/reaper"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements reaper.Store on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens the database at path. path can be a file path or
// ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. The caller is
// responsible for opening it with OpenConnection.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens a SQLite connection pool with foreign keys enforced on
// every connection and write transactions taking the lock up front, so that a
// status check at the start of a transaction holds until commit.
func OpenConnection(path string) (*sql.DB, error) {
	params := "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	memory := path == ":memory:"
	if !memory {
		params += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", path+"?"+params)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate applies pending schema migrations.
func (s *SQLiteStore) Migrate() error {
	return migrations.Up(s.db)
}

// CheckMigrations verifies the schema is up to date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// MigrationStatus reports the current and latest schema versions.
func (s *SQLiteStore) MigrationStatus() (*migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// Path returns the database file path ("" when wrapping an existing connection).
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Account operations

const accountColumns = `id, email, display_name, status, created_at, deleted_at, purge_due_at, backup_purge_due_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*reaper.Account, error) {
	var (
		a                                   reaper.Account
		status                              string
		deletedAt, purgeDue, backupPurgeDue sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &status, &a.CreatedAt, &deletedAt, &purgeDue, &backupPurgeDue); err != nil {
		return nil, err
	}
	a.Status = reaper.Status(status)
	a.DeletedAt = timePtr(deletedAt)
	a.PurgeDueAt = timePtr(purgeDue)
	a.BackupPurgeDueAt = timePtr(backupPurgeDue)
	return &a, nil
}

func (s *SQLiteStore) FindAccount(ctx context.Context, id string) (*reaper.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, a *reaper.Account) error {
	if a.Status == "" {
		a.Status = reaper.StatusActive
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.DisplayName, string(a.Status), a.CreatedAt.UTC(),
		nullTime(a.DeletedAt), nullTime(a.PurgeDueAt), nullTime(a.BackupPurgeDueAt),
	)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkPendingDeletion(ctx context.Context, accountID string, schedule *reaper.Schedule) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET status = ?, deleted_at = ?, purge_due_at = ?, backup_purge_due_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(reaper.StatusPendingDeletion),
		schedule.ScheduledAt.UTC(), schedule.PurgeDueAt.UTC(), schedule.BackupPurgeDueAt.UTC(),
		accountID, string(reaper.StatusActive), string(reaper.StatusSuspended),
	)
	if err != nil {
		return false, fmt.Errorf("updating account status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	if err := insertStatusHistory(ctx, tx, accountID, reaper.StatusPendingDeletion, schedule.ScheduledAt); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) CancelDeletion(ctx context.Context, accountID string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET status = ?, deleted_at = NULL, purge_due_at = NULL, backup_purge_due_at = NULL
		WHERE id = ? AND status = ? AND purge_due_at > ?`,
		string(reaper.StatusActive), accountID, string(reaper.StatusPendingDeletion), at.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("updating account status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	if err := insertStatusHistory(ctx, tx, accountID, reaper.StatusActive, at); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

func insertStatusHistory(ctx context.Context, tx *sql.Tx, accountID string, status reaper.Status, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO status_history (account_id, status, changed_at) VALUES (?, ?, ?)`,
		accountID, string(status), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording status history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDueAccounts(ctx context.Context, now time.Time) ([]*reaper.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE status = ? AND purge_due_at <= ?
		ORDER BY purge_due_at, id`,
		string(reaper.StatusPendingDeletion), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing due accounts: %w", err)
	}
	defer rows.Close()

	var result []*reaper.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing due accounts: %w", err)
	}
	return result, nil
}

// Media operations

func (s *SQLiteStore) ListMediaObjects(ctx context.Context, accountID string) ([]*reaper.MediaObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, storage_key, content_type, size, created_at
		FROM media_objects
		WHERE account_id = ?
		ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing media objects: %w", err)
	}
	defer rows.Close()

	var result []*reaper.MediaObject
	for rows.Next() {
		var m reaper.MediaObject
		if err := rows.Scan(&m.ID, &m.AccountID, &m.StorageKey, &m.ContentType, &m.Size, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning media object: %w", err)
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing media objects: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) CreateMediaObject(ctx context.Context, m *reaper.MediaObject) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.ContentType == "" {
		m.ContentType = "application/octet-stream"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media_objects (id, account_id, storage_key, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.AccountID, m.StorageKey, m.ContentType, m.Size, m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating media object: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// quoteIdent quotes a registry-supplied table or column name.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Compile-time check that SQLiteStore implements the pipeline's store and audit sink.
var (
	_ reaper.Store     = (*SQLiteStore)(nil)
	_ reaper.AuditSink = (*SQLiteStore)(nil)
)
