package reaper

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore holds media payloads outside the relational store.
type BlobStore interface {
	// PutObject stores size bytes read from r under key.
	PutObject(ctx context.Context, key string, r io.Reader, size int64) error

	// GetObject opens the object stored under key. It returns ErrBlobNotFound
	// when the key is absent. The caller closes the reader.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// DeleteObject removes the object stored under key. It returns ErrBlobNotFound
	// when there is nothing to delete; callers treat that as success.
	DeleteObject(ctx context.Context, key string) error
}

// AuditSink receives compliance audit records. Failures are reported to the
// caller but never undo the operation being audited.
type AuditSink interface {
	Record(ctx context.Context, action string, entityID string, metadata map[string]any) error
}

// Locker hands out per-key leases so that several sweep workers do not
// execute the same account at once.
type Locker interface {
	// TryLock attempts to take the lease for key. When acquired is false the
	// lease is held elsewhere and release is nil.
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// NopLocker grants every lease.
type NopLocker struct{}

func (NopLocker) TryLock(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

// Recorder receives purge and sweep outcomes for metrics.
type Recorder interface {
	PurgeSucceeded()
	PurgeFailed()
	BlobDeleteFailed()
	SweepCompleted(result *SweepResult, elapsed time.Duration)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) PurgeSucceeded()                            {}
func (NopRecorder) PurgeFailed()                               {}
func (NopRecorder) BlobDeleteFailed()                          {}
func (NopRecorder) SweepCompleted(*SweepResult, time.Duration) {}

// Logger provides structured logging for the pipeline.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so timelines are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
