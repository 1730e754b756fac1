package reaper

import "time"

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive          Status = "active"
	StatusSuspended       Status = "suspended"
	StatusPendingDeletion Status = "pending_deletion"
)

// Deletable reports whether an account in this status may be scheduled for deletion.
func (s Status) Deletable() bool {
	return s == StatusActive || s == StatusSuspended
}

// Account is the subset of the account row the pipeline reads and writes.
type Account struct {
	ID               string
	Email            string
	DisplayName      string
	Status           Status
	CreatedAt        time.Time
	DeletedAt        *time.Time // when deletion was requested
	PurgeDueAt       *time.Time // after which the executor may run
	BackupPurgeDueAt *time.Time // after which backups may be purged out of band
}

// Schedule returns the deletion timeline recorded on the account, or nil if
// the account is not pending deletion.
func (a *Account) Schedule() *Schedule {
	if a.Status != StatusPendingDeletion || a.DeletedAt == nil || a.PurgeDueAt == nil || a.BackupPurgeDueAt == nil {
		return nil
	}
	return &Schedule{
		ScheduledAt:      *a.DeletedAt,
		PurgeDueAt:       *a.PurgeDueAt,
		BackupPurgeDueAt: *a.BackupPurgeDueAt,
	}
}

// Schedule is the deletion timeline computed by the Planner.
type Schedule struct {
	ScheduledAt      time.Time
	PurgeDueAt       time.Time
	BackupPurgeDueAt time.Time
}

// MediaObject is a dependent row whose payload lives in the blob store.
type MediaObject struct {
	ID          string
	AccountID   string
	StorageKey  string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Tombstone is the compliance record retained after a purge. It carries no
// personal data beyond the account identifier.
type Tombstone struct {
	ID        string
	AccountID string
	PurgedAt  time.Time
	Summary   PurgeSummary
}

// PurgeSummary counts what a purge removed.
type PurgeSummary struct {
	MediaBlobsRemoved int              `json:"media_blobs_removed"`
	MediaBlobsFailed  int              `json:"media_blobs_failed"`
	RowsDeleted       map[string]int64 `json:"rows_deleted"`
}

// TotalRows returns the number of dependent rows deleted across all kinds.
func (s PurgeSummary) TotalRows() int64 {
	var total int64
	for _, n := range s.RowsDeleted {
		total += n
	}
	return total
}

// AuditRecord is a single entry written to the audit sink.
type AuditRecord struct {
	ID        string
	Action    string
	EntityID  string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Audit actions emitted by the pipeline.
const (
	ActionDeletionScheduled = "account.deletion_scheduled"
	ActionDeletionCancelled = "account.deletion_cancelled"
	ActionAccountPurged     = "account.purged"
)

// SweepRun records one invocation of the sweep.
type SweepRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Due        int
	Purged     int
	Failed     int
	Skipped    int
	Status     string // "running", "success" or "error"
}
