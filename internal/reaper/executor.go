package reaper

import (
	"context"
	"errors"
	"fmt"
)

// Executor permanently removes a pending account, its dependent rows and its
// media blobs, leaving a tombstone behind.
type Executor struct {
	store    Store
	blobs    BlobStore
	audit    AuditSink
	registry *Registry
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	recorder Recorder
}

// NewExecutor creates an Executor. A nil registry uses DefaultRegistry and a
// nil recorder discards metrics.
func NewExecutor(store Store, blobs BlobStore, audit AuditSink, registry *Registry, logger Logger, clock Clock, idgen IDGenerator, recorder Recorder) *Executor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Executor{
		store:    store,
		blobs:    blobs,
		audit:    audit,
		registry: registry,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		recorder: recorder,
	}
}

// ExecuteDeletion purges an account that is pending deletion.
//
// Media blobs are deleted first, outside the store transaction; a blob that
// cannot be deleted is logged and counted but does not stop the purge. The
// dependent rows, the tombstone and the account row are then written in one
// transaction, so a failure there leaves the account pending and retryable.
func (e *Executor) ExecuteDeletion(ctx context.Context, accountID string) (*Tombstone, error) {
	account, err := loadAccount(ctx, e.store, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status != StatusPendingDeletion {
		return nil, fmt.Errorf("%w: account %s is %s", ErrInvalidState, accountID, account.Status)
	}

	media, err := e.store.ListMediaObjects(ctx, accountID)
	if err != nil {
		e.recorder.PurgeFailed()
		return nil, fmt.Errorf("listing media objects: %w", err)
	}

	removed, failed := e.deleteBlobs(ctx, accountID, media)

	tombstone, err := e.store.PurgeAccount(ctx, &PurgeRequest{
		AccountID:         accountID,
		TombstoneID:       e.idgen.New(),
		PurgedAt:          e.clock.Now().UTC(),
		Registry:          e.registry,
		MediaBlobsRemoved: removed,
		MediaBlobsFailed:  failed,
	})
	if err != nil {
		e.recorder.PurgeFailed()
		return nil, fmt.Errorf("purging account %s: %w", accountID, err)
	}

	e.recorder.PurgeSucceeded()
	e.logger.Info("account purged",
		"account_id", accountID,
		"media_blobs_removed", removed,
		"media_blobs_failed", failed,
		"rows_deleted", tombstone.Summary.TotalRows(),
	)

	if err := e.audit.Record(ctx, ActionAccountPurged, accountID, map[string]any{
		"tombstone_id":        tombstone.ID,
		"purged_at":           tombstone.PurgedAt,
		"media_blobs_removed": tombstone.Summary.MediaBlobsRemoved,
		"media_blobs_failed":  tombstone.Summary.MediaBlobsFailed,
		"rows_deleted":        tombstone.Summary.RowsDeleted,
	}); err != nil {
		e.logger.Warn("audit record failed", "action", ActionAccountPurged, "account_id", accountID, "error", err)
	}

	return tombstone, nil
}

// deleteBlobs deletes each media row's blob exactly once. A missing blob
// counts as removed.
func (e *Executor) deleteBlobs(ctx context.Context, accountID string, media []*MediaObject) (removed, failed int) {
	for _, m := range media {
		err := e.blobs.DeleteObject(ctx, m.StorageKey)
		if err == nil || errors.Is(err, ErrBlobNotFound) {
			removed++
			continue
		}
		failed++
		e.recorder.BlobDeleteFailed()
		e.logger.Warn("media blob delete failed",
			"account_id", accountID,
			"media_id", m.ID,
			"storage_key", m.StorageKey,
			"error", err,
		)
	}
	return removed, failed
}
