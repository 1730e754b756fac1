package reaper

import (
	"context"
	"fmt"
	"time"
)

// Policy holds the retention windows applied when a deletion is scheduled.
type Policy struct {
	// PurgeDelay is the time from scheduling until the executor may run.
	PurgeDelay time.Duration
	// BackupRetention is the time from scheduling until backups may be purged.
	BackupRetention time.Duration
}

// Validate rejects windows that would break backupPurgeDueAt >= purgeDueAt >= deletedAt.
func (p Policy) Validate() error {
	if p.PurgeDelay < 0 {
		return fmt.Errorf("purge delay must not be negative, got %s", p.PurgeDelay)
	}
	if p.BackupRetention < p.PurgeDelay {
		return fmt.Errorf("backup retention %s is shorter than purge delay %s", p.BackupRetention, p.PurgeDelay)
	}
	return nil
}

// Timeline computes the schedule for a deletion requested at now.
func (p Policy) Timeline(now time.Time) *Schedule {
	purgeDue := now.Add(p.PurgeDelay)
	backupDue := now.Add(p.BackupRetention)
	if backupDue.Before(purgeDue) {
		backupDue = purgeDue
	}
	return &Schedule{
		ScheduledAt:      now,
		PurgeDueAt:       purgeDue,
		BackupPurgeDueAt: backupDue,
	}
}

// Planner schedules and cancels account deletions. It never touches
// dependent rows.
type Planner struct {
	store  Store
	audit  AuditSink
	policy Policy
	logger Logger
	clock  Clock
}

// NewPlanner creates a Planner applying the given policy.
func NewPlanner(store Store, audit AuditSink, policy Policy, logger Logger, clock Clock) *Planner {
	return &Planner{
		store:  store,
		audit:  audit,
		policy: policy,
		logger: logger,
		clock:  clock,
	}
}

// ScheduleDeletion moves the account into pending_deletion and returns the
// computed timeline. An account that is already pending keeps its existing
// schedule, which is returned unchanged.
func (p *Planner) ScheduleDeletion(ctx context.Context, accountID string) (*Schedule, error) {
	account, err := loadAccount(ctx, p.store, accountID)
	if err != nil {
		return nil, err
	}

	if account.Status == StatusPendingDeletion {
		p.logger.Info("deletion already scheduled", "account_id", accountID)
		return existingSchedule(account)
	}
	if !account.Status.Deletable() {
		return nil, fmt.Errorf("%w: account %s is %s", ErrInvalidState, accountID, account.Status)
	}

	schedule := p.policy.Timeline(p.clock.Now().UTC())

	updated, err := p.store.MarkPendingDeletion(ctx, accountID, schedule)
	if err != nil {
		return nil, fmt.Errorf("scheduling deletion: %w", err)
	}
	if !updated {
		// Lost a race with another request; report whatever schedule won.
		account, err = loadAccount(ctx, p.store, accountID)
		if err != nil {
			return nil, err
		}
		if account.Status != StatusPendingDeletion {
			return nil, fmt.Errorf("%w: account %s is %s", ErrInvalidState, accountID, account.Status)
		}
		return existingSchedule(account)
	}

	p.logger.Info("deletion scheduled",
		"account_id", accountID,
		"purge_due_at", schedule.PurgeDueAt,
		"backup_purge_due_at", schedule.BackupPurgeDueAt,
	)
	p.record(ctx, ActionDeletionScheduled, accountID, map[string]any{
		"deleted_at":          schedule.ScheduledAt,
		"purge_due_at":        schedule.PurgeDueAt,
		"backup_purge_due_at": schedule.BackupPurgeDueAt,
	})

	return schedule, nil
}

// CancelDeletion returns a pending account to active. It is refused once
// purgeDueAt has passed.
func (p *Planner) CancelDeletion(ctx context.Context, accountID string) error {
	account, err := loadAccount(ctx, p.store, accountID)
	if err != nil {
		return err
	}
	if account.Status != StatusPendingDeletion {
		return fmt.Errorf("%w: account %s is %s", ErrInvalidState, accountID, account.Status)
	}

	// Once the purge is due the executor may already be deleting media.
	now := p.clock.Now().UTC()
	if account.PurgeDueAt != nil && !now.Before(*account.PurgeDueAt) {
		return fmt.Errorf("%w: purge of account %s was due at %s", ErrInvalidState, accountID, account.PurgeDueAt.Format(time.RFC3339))
	}

	updated, err := p.store.CancelDeletion(ctx, accountID, now)
	if err != nil {
		return fmt.Errorf("cancelling deletion: %w", err)
	}
	if !updated {
		return fmt.Errorf("%w: account %s is no longer pending deletion", ErrInvalidState, accountID)
	}

	p.logger.Info("deletion cancelled", "account_id", accountID)
	metadata := map[string]any{}
	if account.PurgeDueAt != nil {
		metadata["purge_due_at"] = *account.PurgeDueAt
	}
	p.record(ctx, ActionDeletionCancelled, accountID, metadata)
	return nil
}

func (p *Planner) record(ctx context.Context, action, entityID string, metadata map[string]any) {
	if err := p.audit.Record(ctx, action, entityID, metadata); err != nil {
		p.logger.Warn("audit record failed", "action", action, "account_id", entityID, "error", err)
	}
}

// loadAccount returns the account or the not-found/purged error for a missing row.
func loadAccount(ctx context.Context, store Store, accountID string) (*Account, error) {
	account, err := store.FindAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if account != nil {
		return account, nil
	}

	tombstone, err := store.FindTombstone(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading tombstone: %w", err)
	}
	if tombstone != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPurged, accountID)
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
}

func existingSchedule(account *Account) (*Schedule, error) {
	s := account.Schedule()
	if s == nil {
		return nil, fmt.Errorf("account %s is pending deletion without a schedule", account.ID)
	}
	return s, nil
}
