package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"reaper-go/internal/audit"
	"reaper-go/internal/blobstore"
	"reaper-go/internal/config"
	"reaper-go/internal/database"
	"reaper-go/internal/encryption"
	"reaper-go/internal/lock"
	"reaper-go/internal/metrics"
	"reaper-go/internal/reaper"
)

// ReaperApp is the application layer between the CLI and the deletion
// pipeline. It constructs all dependencies from config, exposes the
// operator operations and releases resources on Close.
type ReaperApp struct {
	cfg         *config.Config
	store       *database.SQLiteStore
	blobs       reaper.BlobStore
	encryptor   encryption.Encryptor
	recorder    *metrics.Recorder
	planner     *reaper.Planner
	executor    *reaper.Executor
	sweeper     *reaper.Sweeper
	logger      reaper.Logger
	clock       reaper.Clock
	idgen       reaper.IDGenerator
	op          *Operation
	logFile     *os.File
	closeLocker func() error
}

// Option adjusts how NewReaperApp builds the app.
type Option func(*options)

type options struct {
	clock    reaper.Clock
	idgen    reaper.IDGenerator
	logLevel slog.Leveler
}

// WithClock replaces the wall clock.
func WithClock(c reaper.Clock) Option { return func(o *options) { o.clock = c } }

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(g reaper.IDGenerator) Option { return func(o *options) { o.idgen = g } }

// WithLogLevel sets the minimum level written to the log.
func WithLogLevel(l slog.Leveler) Option { return func(o *options) { o.logLevel = l } }

// NewReaperApp creates a fully wired ReaperApp from the given config.
// command identifies the CLI command being run (e.g. "sweep run").
// The caller must call Close when done.
func NewReaperApp(ctx context.Context, cfg *config.Config, command string, opts ...Option) (*ReaperApp, error) {
	o := options{clock: reaper.RealClock{}, idgen: reaper.UUIDGenerator{}, logLevel: slog.LevelInfo}
	for _, opt := range opts {
		opt(&o)
	}

	policy := reaper.Policy{
		PurgeDelay:      cfg.Deletion.PurgeDelay(),
		BackupRetention: cfg.Deletion.BackupRetention(),
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deletion policy: %w", err)
	}

	op := NewOperation(command, o.clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("command", command)}

	a := &ReaperApp{
		cfg:         cfg,
		logger:      logger,
		clock:       o.clock,
		idgen:       o.idgen,
		op:          op,
		logFile:     logFile,
		closeLocker: func() error { return nil },
	}
	if err := a.build(ctx, policy); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *ReaperApp) build(ctx context.Context, policy reaper.Policy) error {
	cfg := a.cfg

	store, err := database.NewStoreFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.store = store

	if err := store.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date (run `reaper db migrate`): %w", err)
	}

	a.blobs, err = blobstore.NewBlobStoreFromConfig(ctx, cfg.BlobStore)
	if err != nil {
		return fmt.Errorf("creating blob store: %w", err)
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	sink, err := audit.NewAuditSinkFromConfig(cfg.Audit, store, a.logger)
	if err != nil {
		return fmt.Errorf("creating audit sink: %w", err)
	}

	locker, closeLocker, err := lock.NewLockerFromConfig(ctx, cfg.Sweep.Lock, a.clock, a.logger)
	if err != nil {
		return fmt.Errorf("creating sweep lock: %w", err)
	}
	a.closeLocker = closeLocker

	a.recorder = metrics.NewRecorder(nil)

	a.planner = reaper.NewPlanner(store, sink, policy, a.logger, a.clock)
	a.executor = reaper.NewExecutor(store, a.blobs, sink, reaper.DefaultRegistry(), a.logger, a.clock, a.idgen, a.recorder)
	a.sweeper = reaper.NewSweeper(store, a.executor, locker,
		reaper.SweepConfig{Concurrency: cfg.Sweep.Concurrency}, a.logger, a.clock, a.idgen, a.recorder)
	return nil
}

// CreateAccount registers an active account.
func (a *ReaperApp) CreateAccount(ctx context.Context, id, email, displayName string) (*reaper.Account, error) {
	acct := &reaper.Account{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		Status:      reaper.StatusActive,
		CreatedAt:   a.clock.Now().UTC(),
	}
	if err := a.op.Observe(a.store.CreateAccount(ctx, acct)); err != nil {
		return nil, err
	}
	a.logger.Info("account created", "account_id", id)
	return acct, nil
}

// ScheduleDeletion starts the pending window for an account.
func (a *ReaperApp) ScheduleDeletion(ctx context.Context, accountID string) (*reaper.Schedule, error) {
	s, err := a.planner.ScheduleDeletion(ctx, accountID)
	return s, a.op.Observe(err)
}

// CancelDeletion returns a pending account to active.
func (a *ReaperApp) CancelDeletion(ctx context.Context, accountID string) error {
	return a.op.Observe(a.planner.CancelDeletion(ctx, accountID))
}

// PurgeAccount runs the executor for one pending account, regardless of
// whether its purge is due yet.
func (a *ReaperApp) PurgeAccount(ctx context.Context, accountID string) (*reaper.Tombstone, error) {
	t, err := a.executor.ExecuteDeletion(ctx, accountID)
	return t, a.op.Observe(err)
}

// Sweep purges every account due at now. A zero now means the current time.
// Failed accounts mark the invocation as failed.
func (a *ReaperApp) Sweep(ctx context.Context, now time.Time) (*reaper.SweepResult, error) {
	return a.sweep(ctx, now, a.op)
}

// sweep runs one sweep and records its outcome on op.
func (a *ReaperApp) sweep(ctx context.Context, now time.Time, op *Operation) (*reaper.SweepResult, error) {
	if now.IsZero() {
		now = a.clock.Now()
	}
	result, err := a.sweeper.Sweep(ctx, now)
	if err == nil && result.Failed > 0 {
		op.Status = "error"
	}
	return result, op.Observe(err)
}

// AccountView is an account's current state: either the live row and its
// media, or the tombstone left by its purge.
type AccountView struct {
	Account   *reaper.Account
	Media     []*reaper.MediaObject
	Tombstone *reaper.Tombstone
}

// ShowAccount returns the account or its tombstone.
func (a *ReaperApp) ShowAccount(ctx context.Context, accountID string) (*AccountView, error) {
	acct, err := a.store.FindAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		media, err := a.store.ListMediaObjects(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return &AccountView{Account: acct, Media: media}, nil
	}

	tomb, err := a.store.FindTombstone(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if tomb == nil {
		return nil, fmt.Errorf("%w: %s", reaper.ErrAccountNotFound, accountID)
	}
	return &AccountView{Tombstone: tomb}, nil
}

// AddMedia uploads the file at path for the account and records the media
// row. The payload is encrypted when encryption is configured.
func (a *ReaperApp) AddMedia(ctx context.Context, accountID, path, contentType string) (*reaper.MediaObject, error) {
	m, err := a.addMedia(ctx, accountID, path, contentType)
	return m, a.op.Observe(err)
}

func (a *ReaperApp) addMedia(ctx context.Context, accountID, path, contentType string) (*reaper.MediaObject, error) {
	acct, err := a.store.FindAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: %s", reaper.ErrAccountNotFound, accountID)
	}
	if !acct.Status.Deletable() {
		return nil, fmt.Errorf("%w: account %s is %s", reaper.ErrInvalidState, accountID, acct.Status)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening media file: %w", err)
	}
	defer f.Close()

	var sealed bytes.Buffer
	if err := a.encryptor.Encrypt(f, &sealed); err != nil {
		return nil, fmt.Errorf("encrypting media: %w", err)
	}
	size := int64(sealed.Len())

	id := a.idgen.New()
	m := &reaper.MediaObject{
		ID:          id,
		AccountID:   accountID,
		StorageKey:  fmt.Sprintf("media/%s/%s", accountID, id),
		ContentType: contentTypeFor(path, contentType),
		Size:        size,
		CreatedAt:   a.clock.Now().UTC(),
	}

	if err := a.blobs.PutObject(ctx, m.StorageKey, &sealed, size); err != nil {
		return nil, fmt.Errorf("uploading media: %w", err)
	}
	if err := a.store.CreateMediaObject(ctx, m); err != nil {
		if derr := a.blobs.DeleteObject(ctx, m.StorageKey); derr != nil {
			a.logger.Warn("removing orphaned media blob failed", "storage_key", m.StorageKey, "error", derr)
		}
		return nil, err
	}

	a.logger.Info("media added", "account_id", accountID, "media_id", id, "size", size)
	return m, nil
}

// MediaEncrypted reports whether media payloads are age-encrypted, in which
// case GetMedia needs the key passphrase.
func (a *ReaperApp) MediaEncrypted() bool {
	return a.cfg.Encryption.Type == "age"
}

// GetMedia writes the decrypted payload of one of the account's media
// objects to w. passphrase unlocks the age key and is ignored otherwise.
func (a *ReaperApp) GetMedia(ctx context.Context, accountID, mediaID, passphrase string, w io.Writer) (*reaper.MediaObject, error) {
	m, err := a.getMedia(ctx, accountID, mediaID, passphrase, w)
	return m, a.op.Observe(err)
}

func (a *ReaperApp) getMedia(ctx context.Context, accountID, mediaID, passphrase string, w io.Writer) (*reaper.MediaObject, error) {
	acct, err := a.store.FindAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: %s", reaper.ErrAccountNotFound, accountID)
	}

	media, err := a.store.ListMediaObjects(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var m *reaper.MediaObject
	for _, candidate := range media {
		if candidate.ID == mediaID {
			m = candidate
			break
		}
	}
	if m == nil {
		return nil, fmt.Errorf("account %s has no media %s", accountID, mediaID)
	}

	dec, err := encryption.NewDecryptorFromConfig(a.cfg.Encryption, passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking media key: %w", err)
	}

	rc, err := a.blobs.GetObject(ctx, m.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetching media: %w", err)
	}
	defer rc.Close()

	if err := dec.Decrypt(rc, w); err != nil {
		return nil, fmt.Errorf("decrypting media: %w", err)
	}

	a.logger.Info("media exported", "account_id", accountID, "media_id", mediaID)
	return m, nil
}

func contentTypeFor(path, override string) string {
	if override != "" {
		return override
	}
	switch filepath.Ext(path) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// Tombstone returns the tombstone for a purged account, or nil.
func (a *ReaperApp) Tombstone(ctx context.Context, accountID string) (*reaper.Tombstone, error) {
	return a.store.FindTombstone(ctx, accountID)
}

// Tombstones returns the most recent tombstones.
func (a *ReaperApp) Tombstones(ctx context.Context, limit int) ([]*reaper.Tombstone, error) {
	return a.store.ListTombstones(ctx, limit)
}

// AuditTrail returns the database audit records for an entity.
func (a *ReaperApp) AuditTrail(ctx context.Context, entityID string) ([]*reaper.AuditRecord, error) {
	if a.cfg.Audit.Type != "database" {
		return nil, fmt.Errorf("audit trail is only queryable with audit.type = \"database\" (configured: %q)", a.cfg.Audit.Type)
	}
	return a.store.ListAuditRecords(ctx, entityID)
}

// History returns the most recent sweep runs.
func (a *ReaperApp) History(ctx context.Context, limit int) ([]*reaper.SweepRun, error) {
	return a.store.ListSweepRuns(ctx, limit)
}

// Logger returns the app's logger.
func (a *ReaperApp) Logger() reaper.Logger {
	return a.logger
}

// Close logs the operation outcome and closes all resources.
func (a *ReaperApp) Close() error {
	var firstErr error

	if a.logger != nil {
		a.logger.Debug("operation finished",
			"status", a.op.Status,
			"elapsed", a.clock.Now().Sub(a.op.StartedAt),
		)
	}

	if a.closeLocker != nil {
		if err := a.closeLocker(); err != nil {
			firstErr = fmt.Errorf("closing sweep lock: %w", err)
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
