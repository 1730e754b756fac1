package reaper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reaper-go/internal/reaper"
	"reaper-go/internal/testutil"
)

// ownedTables lists every table that holds rows for an account.
var ownedTables = []struct {
	table string
	where string
}{
	{"accounts", "id = ?"},
	{"profiles", "account_id = ?"},
	{"status_history", "account_id = ?"},
	{"media_objects", "account_id = ?"},
	{"exercises", "author_id = ?"},
	{"plans", "account_id = ?"},
	{"activity_sessions", "account_id = ?"},
	{"metric_snapshots", "account_id = ?"},
	{"point_ledger", "account_id = ?"},
	{"badges", "account_id = ?"},
	{"follows", "follower_id = ? OR followed_id = ?"},
	{"auth_sessions", "account_id = ?"},
	{"auth_tokens", "account_id = ?"},
	{"refresh_tokens", "account_id = ?"},
	{"idempotency_keys", "account_id = ?"},
}

func countOwned(t *testing.T, h *harness, accountID string) map[string]int {
	t.Helper()
	out := make(map[string]int)
	for _, o := range ownedTables {
		args := []any{accountID}
		if o.table == "follows" {
			args = append(args, accountID)
		}
		out[o.table] = h.count(t, o.table, o.where, args...)
	}
	return out
}

func TestExecutor_ExecuteDeletion(t *testing.T) {
	ctx := context.Background()

	t.Run("purges every owned record", func(t *testing.T) {
		h := newHarness(t)
		key := h.seedPending(t, "acct-1", h.clock.Now())
		testutil.SeedAccount(t, h.db, "acct-2", reaper.StatusActive, time.Time{})
		testutil.SeedOwnedGraph(t, h.db, "acct-2", "a2", "acct-1-ex")
		testutil.SeedFollow(t, h.db, "acct-1", "acct-2")
		testutil.SeedFollow(t, h.db, "acct-2", "acct-1")
		before := countOwned(t, h, "acct-2")

		tomb, err := h.executor.ExecuteDeletion(ctx, "acct-1")
		if err != nil {
			t.Fatalf("ExecuteDeletion() error = %v", err)
		}

		for table, n := range countOwned(t, h, "acct-1") {
			if n != 0 {
				t.Errorf("%s rows for purged account = %d, want 0", table, n)
			}
		}
		if n := h.count(t, "plan_items", "plan_id = ?", "acct-1-plan"); n != 0 {
			t.Errorf("plan_items = %d, want 0", n)
		}
		if n := h.count(t, "session_exercises", "session_id = ?", "acct-1-session"); n != 0 {
			t.Errorf("session_exercises = %d, want 0", n)
		}
		if n := h.count(t, "logged_sets", "session_exercise_id = ?", "acct-1-sx"); n != 0 {
			t.Errorf("logged_sets = %d, want 0", n)
		}

		// The other account only loses its follow edges with the purged one.
		after := countOwned(t, h, "acct-2")
		before["follows"] -= 2
		for table, want := range before {
			if after[table] != want {
				t.Errorf("acct-2 %s rows = %d, want %d", table, after[table], want)
			}
		}
		if n := h.count(t, "logged_sets", "session_exercise_id = ?", "a2-sx"); n != 2 {
			t.Errorf("acct-2 logged_sets = %d, want 2", n)
		}
		// acct-2 logged an exercise authored by acct-1; the reference is cleared.
		if n := h.count(t, "session_exercises", "id = ? AND exercise_id IS NULL", "a2-sx"); n != 1 {
			t.Errorf("acct-2 session_exercises with cleared exercise = %d, want 1", n)
		}

		if h.blobs.Has(key) {
			t.Errorf("blob %s still present", key)
		}
		if got := h.blobs.Deletes(); len(got) != 1 || got[0] != key {
			t.Errorf("DeleteObject calls = %v, want [%s]", got, key)
		}

		if tomb.AccountID != "acct-1" {
			t.Errorf("tombstone AccountID = %q, want acct-1", tomb.AccountID)
		}
		if !tomb.PurgedAt.Equal(h.clock.Now()) {
			t.Errorf("tombstone PurgedAt = %v, want %v", tomb.PurgedAt, h.clock.Now())
		}
		if tomb.Summary.MediaBlobsRemoved != 1 || tomb.Summary.MediaBlobsFailed != 0 {
			t.Errorf("media summary = %d removed / %d failed, want 1 / 0",
				tomb.Summary.MediaBlobsRemoved, tomb.Summary.MediaBlobsFailed)
		}
		if got := tomb.Summary.RowsDeleted["logged_sets"]; got != 2 {
			t.Errorf("RowsDeleted[logged_sets] = %d, want 2", got)
		}
		if got := tomb.Summary.RowsDeleted["follows"]; got != 2 {
			t.Errorf("RowsDeleted[follows] = %d, want 2", got)
		}
		if n := h.count(t, "tombstones", "account_id = ?", "acct-1"); n != 1 {
			t.Errorf("tombstones = %d, want 1", n)
		}

		stored, err := h.store.FindTombstone(ctx, "acct-1")
		if err != nil {
			t.Fatalf("FindTombstone() error = %v", err)
		}
		if stored == nil || stored.ID != tomb.ID {
			t.Fatalf("FindTombstone() = %+v, want id %s", stored, tomb.ID)
		}
		if stored.Summary.TotalRows() != tomb.Summary.TotalRows() {
			t.Errorf("stored TotalRows = %d, want %d", stored.Summary.TotalRows(), tomb.Summary.TotalRows())
		}

		if got := h.audit.Actions("acct-1"); len(got) != 1 || got[0] != reaper.ActionAccountPurged {
			t.Errorf("audit actions = %v, want [%s]", got, reaper.ActionAccountPurged)
		}
		if h.recorder.Succeeded != 1 {
			t.Errorf("PurgeSucceeded count = %d, want 1", h.recorder.Succeeded)
		}
	})

	t.Run("clears other accounts' references to purged plans and sessions", func(t *testing.T) {
		h := newHarness(t)
		h.seedPending(t, "acct-1", h.clock.Now())
		testutil.SeedAccount(t, h.db, "acct-2", reaper.StatusActive, time.Time{})
		mustExec(t, h, `INSERT INTO activity_sessions (id, account_id, plan_id, started_at)
			VALUES ('a2-borrowed', 'acct-2', 'acct-1-plan', '2024-01-10 08:00:00')`)
		mustExec(t, h, `INSERT INTO refresh_tokens (id, account_id, session_id, token_hash, expires_at)
			VALUES ('a2-refresh', 'acct-2', 'acct-1-authsess', 'a2-hash', '2024-02-10 08:00:00')`)

		if _, err := h.executor.ExecuteDeletion(ctx, "acct-1"); err != nil {
			t.Fatalf("ExecuteDeletion() error = %v", err)
		}

		if n := h.count(t, "accounts", "id = ?", "acct-1"); n != 0 {
			t.Errorf("accounts rows for purged account = %d, want 0", n)
		}
		if n := h.count(t, "activity_sessions", "id = ? AND plan_id IS NULL", "a2-borrowed"); n != 1 {
			t.Errorf("acct-2 sessions with cleared plan = %d, want 1", n)
		}
		if n := h.count(t, "refresh_tokens", "id = ? AND session_id IS NULL", "a2-refresh"); n != 1 {
			t.Errorf("acct-2 refresh tokens with cleared session = %d, want 1", n)
		}
	})

	t.Run("every media row is deleted exactly once", func(t *testing.T) {
		h := newHarness(t)
		h.seedPending(t, "acct-1", h.clock.Now())
		k2 := testutil.SeedMedia(t, h.db, "acct-1", "acct-1-m2")
		h.blobs.Put(k2, []byte("png"))
		// No stored object: counts as removed.
		testutil.SeedMedia(t, h.db, "acct-1", "acct-1-m3")

		tomb, err := h.executor.ExecuteDeletion(ctx, "acct-1")
		if err != nil {
			t.Fatalf("ExecuteDeletion() error = %v", err)
		}
		deletes := h.blobs.Deletes()
		if len(deletes) != 3 {
			t.Fatalf("DeleteObject calls = %v, want 3", deletes)
		}
		seen := make(map[string]bool)
		for _, k := range deletes {
			if seen[k] {
				t.Errorf("key %s deleted twice", k)
			}
			seen[k] = true
		}
		if tomb.Summary.MediaBlobsRemoved != 3 {
			t.Errorf("MediaBlobsRemoved = %d, want 3", tomb.Summary.MediaBlobsRemoved)
		}
	})

	t.Run("blob failure still purges", func(t *testing.T) {
		h := newHarness(t)
		key := h.seedPending(t, "acct-1", h.clock.Now())
		h.blobs.FailOn(key, testutil.ErrInjected)

		tomb, err := h.executor.ExecuteDeletion(ctx, "acct-1")
		if err != nil {
			t.Fatalf("ExecuteDeletion() error = %v", err)
		}
		if tomb.Summary.MediaBlobsFailed != 1 || tomb.Summary.MediaBlobsRemoved != 0 {
			t.Errorf("media summary = %d removed / %d failed, want 0 / 1",
				tomb.Summary.MediaBlobsRemoved, tomb.Summary.MediaBlobsFailed)
		}
		if a := h.account(t, "acct-1"); a != nil {
			t.Errorf("account still present: %+v", a)
		}
		if h.recorder.BlobFailures != 1 {
			t.Errorf("BlobDeleteFailed count = %d, want 1", h.recorder.BlobFailures)
		}
	})

	t.Run("audit failure does not fail purge", func(t *testing.T) {
		h := newHarness(t)
		h.seedPending(t, "acct-1", h.clock.Now())
		h.audit.Err = testutil.ErrInjected

		if _, err := h.executor.ExecuteDeletion(ctx, "acct-1"); err != nil {
			t.Fatalf("ExecuteDeletion() error = %v", err)
		}
		if n := h.count(t, "tombstones", "account_id = ?", "acct-1"); n != 1 {
			t.Errorf("tombstones = %d, want 1", n)
		}
	})

	t.Run("active account is rejected without mutation", func(t *testing.T) {
		h := newHarness(t)
		testutil.SeedAccount(t, h.db, "acct-1", reaper.StatusActive, time.Time{})
		testutil.SeedOwnedGraph(t, h.db, "acct-1", "a1", "")
		key := testutil.SeedMedia(t, h.db, "acct-1", "a1-m1")
		h.blobs.Put(key, []byte("jpeg"))
		before := countOwned(t, h, "acct-1")

		_, err := h.executor.ExecuteDeletion(ctx, "acct-1")
		if !errors.Is(err, reaper.ErrInvalidState) {
			t.Fatalf("ExecuteDeletion() error = %v, want ErrInvalidState", err)
		}
		after := countOwned(t, h, "acct-1")
		for table, want := range before {
			if after[table] != want {
				t.Errorf("%s rows = %d, want %d", table, after[table], want)
			}
		}
		if len(h.blobs.Deletes()) != 0 {
			t.Errorf("DeleteObject called %v", h.blobs.Deletes())
		}
		if n := h.count(t, "tombstones", ""); n != 0 {
			t.Errorf("tombstones = %d, want 0", n)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.executor.ExecuteDeletion(ctx, "missing")
		if !errors.Is(err, reaper.ErrAccountNotFound) {
			t.Errorf("ExecuteDeletion() error = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("second execution fails with already purged", func(t *testing.T) {
		h := newHarness(t)
		h.seedPending(t, "acct-1", h.clock.Now())
		if _, err := h.executor.ExecuteDeletion(ctx, "acct-1"); err != nil {
			t.Fatalf("ExecuteDeletion() error = %v", err)
		}

		_, err := h.executor.ExecuteDeletion(ctx, "acct-1")
		if !errors.Is(err, reaper.ErrAlreadyPurged) {
			t.Errorf("ExecuteDeletion() error = %v, want ErrAlreadyPurged", err)
		}
		if n := h.count(t, "tombstones", "account_id = ?", "acct-1"); n != 1 {
			t.Errorf("tombstones = %d, want 1", n)
		}
		if got := len(h.blobs.Deletes()); got != 1 {
			t.Errorf("DeleteObject calls = %d, want 1", got)
		}
	})
}

// failingPurgeStore fails PurgeAccount to exercise the rollback path.
type failingPurgeStore struct {
	reaper.Store
}

func (failingPurgeStore) PurgeAccount(context.Context, *reaper.PurgeRequest) (*reaper.Tombstone, error) {
	return nil, testutil.ErrInjected
}

func TestExecutor_PurgeFailureLeavesAccountPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedPending(t, "acct-1", h.clock.Now())

	exec := reaper.NewExecutor(failingPurgeStore{h.store}, h.blobs, h.audit, nil,
		reaper.NewNopLogger(), h.clock, testutil.NewStubIDGenerator(), h.recorder)

	_, err := exec.ExecuteDeletion(ctx, "acct-1")
	if !errors.Is(err, testutil.ErrInjected) {
		t.Fatalf("ExecuteDeletion() error = %v, want injected failure", err)
	}
	a := h.account(t, "acct-1")
	if a == nil || a.Status != reaper.StatusPendingDeletion {
		t.Fatalf("account = %+v, want pending_deletion", a)
	}
	if n := h.count(t, "tombstones", ""); n != 0 {
		t.Errorf("tombstones = %d, want 0", n)
	}
	if len(h.audit.Actions("acct-1")) != 0 {
		t.Errorf("audit recorded %v, want nothing", h.audit.Actions("acct-1"))
	}
	if h.recorder.Failed != 1 {
		t.Errorf("PurgeFailed count = %d, want 1", h.recorder.Failed)
	}

	// A retry with a working store succeeds.
	if _, err := h.executor.ExecuteDeletion(ctx, "acct-1"); err != nil {
		t.Fatalf("retry ExecuteDeletion() error = %v", err)
	}
}
