package testutil

import (
	"database/sql"
	"testing"

	"reaper-go/internal/database"
	"reaper-go/internal/database/migrations"
)

// NewTestStore creates an in-memory SQLite store with all migrations applied.
// It also returns the raw connection for seeding and assertions. Both are
// closed when the test completes.
func NewTestStore(t *testing.T) (*database.SQLiteStore, *sql.DB) {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.Up(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(sqlDB)

	t.Cleanup(func() {
		store.Close()
	})

	return store, sqlDB
}

// CountRows returns the number of rows in table matching the optional where clause.
func CountRows(t *testing.T, db *sql.DB, table string, where string, args ...any) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}
