package reaper_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"reaper-go/internal/database"
	"reaper-go/internal/reaper"
	"reaper-go/internal/testutil"
)

const day = 24 * time.Hour

func testPolicy() reaper.Policy {
	return reaper.Policy{PurgeDelay: 14 * day, BackupRetention: 35 * day}
}

// harness wires the pipeline over an in-memory database.
type harness struct {
	store    *database.SQLiteStore
	db       *sql.DB
	blobs    *testutil.RecordingBlobStore
	audit    *testutil.RecordingAuditSink
	clock    *testutil.StubClock
	recorder *testutil.CountingRecorder
	sweepIDs *testutil.StubIDGenerator
	planner  *reaper.Planner
	executor *reaper.Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, db := testutil.NewTestStore(t)
	h := &harness{
		store:    store,
		db:       db,
		blobs:    testutil.NewRecordingBlobStore(),
		audit:    testutil.NewRecordingAuditSink(),
		clock:    testutil.FixedClock(),
		recorder: &testutil.CountingRecorder{},
		sweepIDs: testutil.NewPrefixedIDGenerator("sweep"),
	}
	logger := reaper.NewNopLogger()
	h.planner = reaper.NewPlanner(store, h.audit, testPolicy(), logger, h.clock)
	h.executor = reaper.NewExecutor(store, h.blobs, h.audit, nil, logger, h.clock,
		testutil.NewPrefixedIDGenerator("tomb"), h.recorder)
	return h
}

func (h *harness) sweeper(locker reaper.Locker, concurrency int) *reaper.Sweeper {
	return reaper.NewSweeper(h.store, h.executor, locker, reaper.SweepConfig{Concurrency: concurrency},
		reaper.NewNopLogger(), h.clock, h.sweepIDs, h.recorder)
}

// seedPending inserts a pending account due at due, with a full owned graph
// and one stored media blob.
func (h *harness) seedPending(t *testing.T, id string, due time.Time) string {
	t.Helper()
	testutil.SeedAccount(t, h.db, id, reaper.StatusPendingDeletion, due)
	testutil.SeedExercise(t, h.db, id+"-ex", id)
	testutil.SeedOwnedGraph(t, h.db, id, id, id+"-ex")
	key := testutil.SeedMedia(t, h.db, id, id+"-m1")
	h.blobs.Put(key, []byte("jpeg"))
	return key
}

func (h *harness) account(t *testing.T, id string) *reaper.Account {
	t.Helper()
	a, err := h.store.FindAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("FindAccount() error = %v", err)
	}
	return a
}

func (h *harness) count(t *testing.T, table, where string, args ...any) int {
	t.Helper()
	return testutil.CountRows(t, h.db, table, where, args...)
}
