package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"reaper-go/internal/reaper"
)

// RecordingBlobStore is an in-memory blob store that records every delete
// call and can be told to fail for specific keys.
type RecordingBlobStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	deletes  []string
	failKeys map[string]error
}

func NewRecordingBlobStore() *RecordingBlobStore {
	return &RecordingBlobStore{
		objects:  make(map[string][]byte),
		failKeys: make(map[string]error),
	}
}

func (b *RecordingBlobStore) PutObject(_ context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *RecordingBlobStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, reaper.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *RecordingBlobStore) DeleteObject(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, key)
	if err, ok := b.failKeys[key]; ok {
		return err
	}
	if _, ok := b.objects[key]; !ok {
		return reaper.ErrBlobNotFound
	}
	delete(b.objects, key)
	return nil
}

// Put stores an object directly.
func (b *RecordingBlobStore) Put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
}

// FailOn makes DeleteObject return err for key.
func (b *RecordingBlobStore) FailOn(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failKeys[key] = err
}

func (b *RecordingBlobStore) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// Deletes returns the keys passed to DeleteObject, in call order.
func (b *RecordingBlobStore) Deletes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.deletes))
	copy(out, b.deletes)
	return out
}

// ErrInjected is returned by failing collaborators.
var ErrInjected = errors.New("injected failure")

// AuditEntry is one call captured by RecordingAuditSink.
type AuditEntry struct {
	Action   string
	EntityID string
	Metadata map[string]any
}

// RecordingAuditSink captures audit records in memory.
type RecordingAuditSink struct {
	mu      sync.Mutex
	entries []AuditEntry
	Err     error
}

func NewRecordingAuditSink() *RecordingAuditSink {
	return &RecordingAuditSink{}
}

func (s *RecordingAuditSink) Record(_ context.Context, action, entityID string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.entries = append(s.entries, AuditEntry{Action: action, EntityID: entityID, Metadata: metadata})
	return nil
}

func (s *RecordingAuditSink) Entries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Actions returns the recorded actions for entityID.
func (s *RecordingAuditSink) Actions(entityID string) []string {
	var out []string
	for _, e := range s.Entries() {
		if e.EntityID == entityID {
			out = append(out, e.Action)
		}
	}
	return out
}

// CountingRecorder counts Recorder observations.
type CountingRecorder struct {
	mu              sync.Mutex
	Succeeded       int
	Failed          int
	BlobFailures    int
	Sweeps          int
	LastSweepResult *reaper.SweepResult
}

func (r *CountingRecorder) PurgeSucceeded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Succeeded++
}

func (r *CountingRecorder) PurgeFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
}

func (r *CountingRecorder) BlobDeleteFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.BlobFailures++
}

func (r *CountingRecorder) SweepCompleted(result *reaper.SweepResult, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sweeps++
	r.LastSweepResult = result
}

// DenyLocker refuses leases for the listed keys and grants all others.
type DenyLocker struct {
	Denied map[string]bool
}

func (l DenyLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	if l.Denied[key] {
		return nil, false, nil
	}
	return func() {}, true, nil
}
