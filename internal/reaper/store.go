package reaper

import (
	"context"
	"time"
)

// Store is the relational store holding accounts, their dependent rows and
// the records the pipeline retains. Lookups return (nil, nil) when the row
// does not exist.
type Store interface {
	// Account operations

	// FindAccount returns the account with the given id.
	FindAccount(ctx context.Context, id string) (*Account, error)

	// CreateAccount inserts a new account row.
	CreateAccount(ctx context.Context, account *Account) error

	// MarkPendingDeletion moves the account into pending_deletion with the given
	// schedule and records the transition in the status history. The update only
	// applies while the account is in a deletable status; it returns false when
	// no row was changed.
	MarkPendingDeletion(ctx context.Context, accountID string, schedule *Schedule) (bool, error)

	// CancelDeletion moves a pending account back to active and clears its
	// schedule. It returns false when the account was not pending or its
	// purge was already due at at.
	CancelDeletion(ctx context.Context, accountID string, at time.Time) (bool, error)

	// ListDueAccounts returns pending accounts whose purge is due at or before now,
	// ordered by due time.
	ListDueAccounts(ctx context.Context, now time.Time) ([]*Account, error)

	// Media operations

	// ListMediaObjects returns every media row owned by the account.
	ListMediaObjects(ctx context.Context, accountID string) ([]*MediaObject, error)

	// CreateMediaObject inserts a media row.
	CreateMediaObject(ctx context.Context, media *MediaObject) error

	// Purge operations

	// PurgeAccount deletes the account and everything the registry says it owns
	// inside a single transaction, inserting the tombstone before the account
	// row is removed. It fails with ErrAccountNotFound or ErrInvalidState if the
	// account is no longer pending deletion when the transaction starts.
	PurgeAccount(ctx context.Context, req *PurgeRequest) (*Tombstone, error)

	// FindTombstone returns the tombstone recorded for an account id.
	FindTombstone(ctx context.Context, accountID string) (*Tombstone, error)

	// ListTombstones returns the most recent tombstones, newest first.
	ListTombstones(ctx context.Context, limit int) ([]*Tombstone, error)

	// Sweep run bookkeeping

	CreateSweepRun(ctx context.Context, run *SweepRun) error
	FinishSweepRun(ctx context.Context, run *SweepRun) error
	ListSweepRuns(ctx context.Context, limit int) ([]*SweepRun, error)

	// Close releases the underlying connection.
	Close() error
}

// PurgeRequest describes a single purge transaction.
type PurgeRequest struct {
	AccountID         string
	TombstoneID       string
	PurgedAt          time.Time
	Registry          *Registry
	MediaBlobsRemoved int
	MediaBlobsFailed  int
}
