package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"reaper-go/internal/reaper"
)

// seedTime is the creation time used for seeded rows.
var seedTime = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// SeedAccount inserts an account in the given status. Pending accounts get a
// schedule with purgeDueAt = purgeDue.
func SeedAccount(t *testing.T, db *sql.DB, id string, status reaper.Status, purgeDue time.Time) {
	t.Helper()

	var deletedAt, purgeDueAt, backupDueAt any
	if status == reaper.StatusPendingDeletion {
		deletedAt = purgeDue.Add(-14 * 24 * time.Hour).UTC()
		purgeDueAt = purgeDue.UTC()
		backupDueAt = purgeDue.Add(21 * 24 * time.Hour).UTC()
	}
	mustExec(t, db, `INSERT INTO accounts (id, email, display_name, status, created_at, deleted_at, purge_due_at, backup_purge_due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, id+"@example.com", "User "+id, string(status), seedTime, deletedAt, purgeDueAt, backupDueAt)
}

// SeedMedia inserts a media row for the account and returns its storage key.
func SeedMedia(t *testing.T, db *sql.DB, accountID, mediaID string) string {
	t.Helper()
	key := fmt.Sprintf("media/%s/%s", accountID, mediaID)
	mustExec(t, db, `INSERT INTO media_objects (id, account_id, storage_key, content_type, size, created_at)
		VALUES (?, ?, ?, 'image/jpeg', 4, ?)`, mediaID, accountID, key, seedTime)
	return key
}

// SeedFollow inserts a social-graph edge.
func SeedFollow(t *testing.T, db *sql.DB, followerID, followedID string) {
	t.Helper()
	mustExec(t, db, `INSERT INTO follows (follower_id, followed_id, created_at) VALUES (?, ?, ?)`,
		followerID, followedID, seedTime)
}

// SeedExercise inserts a catalog exercise authored by authorID ("" for built-in).
func SeedExercise(t *testing.T, db *sql.DB, id, authorID string) {
	t.Helper()
	var author any
	if authorID != "" {
		author = authorID
	}
	mustExec(t, db, `INSERT INTO exercises (id, author_id, name, created_at) VALUES (?, ?, ?, ?)`,
		id, author, "Exercise "+id, seedTime)
}

// SeedOwnedGraph inserts one row of every dependent kind for the account,
// using prefix to keep ids unique. The plan and session reference exerciseID,
// which may be authored by another account; "" leaves the reference NULL.
func SeedOwnedGraph(t *testing.T, db *sql.DB, accountID, prefix, exerciseID string) {
	t.Helper()
	p := func(s string) string { return prefix + "-" + s }
	var exercise any
	if exerciseID != "" {
		exercise = exerciseID
	}

	mustExec(t, db, `INSERT INTO profiles (account_id, bio, updated_at) VALUES (?, 'hi', ?)`, accountID, seedTime)
	mustExec(t, db, `INSERT INTO status_history (account_id, status, changed_at) VALUES (?, 'active', ?)`, accountID, seedTime)
	mustExec(t, db, `INSERT INTO plans (id, account_id, name, created_at) VALUES (?, ?, 'Push day', ?)`, p("plan"), accountID, seedTime)
	mustExec(t, db, `INSERT INTO plan_items (id, plan_id, exercise_id, position) VALUES (?, ?, ?, 1)`, p("item"), p("plan"), exercise)
	mustExec(t, db, `INSERT INTO activity_sessions (id, account_id, plan_id, started_at) VALUES (?, ?, ?, ?)`, p("session"), accountID, p("plan"), seedTime)
	mustExec(t, db, `INSERT INTO session_exercises (id, session_id, exercise_id, position) VALUES (?, ?, ?, 1)`, p("sx"), p("session"), exercise)
	mustExec(t, db, `INSERT INTO logged_sets (id, session_exercise_id, reps, weight_kg, logged_at) VALUES (?, ?, 10, 60.0, ?)`, p("set1"), p("sx"), seedTime)
	mustExec(t, db, `INSERT INTO logged_sets (id, session_exercise_id, reps, weight_kg, logged_at) VALUES (?, ?, 8, 62.5, ?)`, p("set2"), p("sx"), seedTime)
	mustExec(t, db, `INSERT INTO metric_snapshots (id, account_id, weight_kg, captured_at) VALUES (?, ?, 80.5, ?)`, p("metric"), accountID, seedTime)
	mustExec(t, db, `INSERT INTO point_ledger (id, account_id, delta, reason, created_at) VALUES (?, ?, 50, 'workout', ?)`, p("points"), accountID, seedTime)
	mustExec(t, db, `INSERT INTO badges (id, account_id, code, awarded_at) VALUES (?, ?, 'first-workout', ?)`, p("badge"), accountID, seedTime)
	mustExec(t, db, `INSERT INTO auth_sessions (id, account_id, created_at, expires_at) VALUES (?, ?, ?, ?)`, p("authsess"), accountID, seedTime, seedTime.Add(time.Hour))
	mustExec(t, db, `INSERT INTO auth_tokens (id, account_id, token_hash, expires_at) VALUES (?, ?, ?, ?)`, p("token"), accountID, p("token-hash"), seedTime.Add(time.Hour))
	mustExec(t, db, `INSERT INTO refresh_tokens (id, account_id, session_id, token_hash, expires_at) VALUES (?, ?, ?, ?, ?)`, p("refresh"), accountID, p("authsess"), p("refresh-hash"), seedTime.Add(time.Hour))
	mustExec(t, db, `INSERT INTO idempotency_keys (idem_key, account_id, created_at) VALUES (?, ?, ?)`, p("idem"), accountID, seedTime)
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("seeding: %v\nquery: %s", err, query)
	}
}
