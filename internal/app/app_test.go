package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reaper-go/internal/config"
	"reaper-go/internal/encryption"
	"reaper-go/internal/reaper"
	"reaper-go/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig("test-instance", dir)
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.BlobStore = config.BlobStoreConfig{Type: "filesystem", FSRoot: filepath.Join(dir, "media")}
	cfg.Sweep.Lock.Type = "memory"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*ReaperApp, *testutil.StubClock) {
	t.Helper()
	clock := testutil.FixedClock()
	a, err := NewReaperApp(context.Background(), cfg, "test",
		WithClock(clock), WithIDGenerator(testutil.NewStubIDGenerator()))
	if err != nil {
		t.Fatalf("NewReaperApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, clock
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return p
}

func TestReaperApp_Lifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a, clock := newTestApp(t, cfg)

	if _, err := a.CreateAccount(ctx, "acct-1", "one@example.com", "One"); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	photo := writeFile(t, t.TempDir(), "photo.jpg", "jpeg-bytes")
	m, err := a.AddMedia(ctx, "acct-1", photo, "")
	if err != nil {
		t.Fatalf("AddMedia() error = %v", err)
	}
	if m.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", m.ContentType)
	}
	blobPath := filepath.Join(cfg.BlobStore.FSRoot, filepath.FromSlash(m.StorageKey))
	if _, err := os.Stat(blobPath); err != nil {
		t.Fatalf("blob not stored at %s: %v", blobPath, err)
	}

	s, err := a.ScheduleDeletion(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ScheduleDeletion() error = %v", err)
	}
	if got := s.PurgeDueAt.Sub(s.ScheduledAt); got != cfg.Deletion.PurgeDelay() {
		t.Errorf("purge delay = %v, want %v", got, cfg.Deletion.PurgeDelay())
	}

	result, err := a.Sweep(ctx, clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Purged != 0 {
		t.Errorf("early Sweep() purged %d, want 0", result.Purged)
	}

	clock.Advance(cfg.Deletion.PurgeDelay())
	result, err = a.Sweep(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Purged != 1 {
		t.Errorf("Sweep() purged %d, want 1", result.Purged)
	}

	if _, err := os.Stat(blobPath); !os.IsNotExist(err) {
		t.Errorf("blob still present after purge: %v", err)
	}

	view, err := a.ShowAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ShowAccount() error = %v", err)
	}
	if view.Account != nil || view.Tombstone == nil {
		t.Fatalf("ShowAccount() = %+v, want tombstone only", view)
	}
	if view.Tombstone.Summary.MediaBlobsRemoved != 1 {
		t.Errorf("MediaBlobsRemoved = %d, want 1", view.Tombstone.Summary.MediaBlobsRemoved)
	}

	trail, err := a.AuditTrail(ctx, "acct-1")
	if err != nil {
		t.Fatalf("AuditTrail() error = %v", err)
	}
	if len(trail) != 2 || trail[1].Action != reaper.ActionAccountPurged {
		t.Errorf("AuditTrail() = %d records", len(trail))
	}

	runs, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("History() = %d runs, want 2", len(runs))
	}

	_, err = a.ScheduleDeletion(ctx, "acct-1")
	if !errors.Is(err, reaper.ErrAlreadyPurged) {
		t.Errorf("ScheduleDeletion() after purge error = %v, want ErrAlreadyPurged", err)
	}
	if !a.op.Failed() {
		t.Error("operation not marked failed")
	}
}

func TestReaperApp_AddMediaEncrypted(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Encryption.Type = "age"
	if err := encryption.NewAgeKeys(cfg.Encryption).GenerateKeys("secret"); err != nil {
		t.Fatalf("GenerateKeys() error = %v", err)
	}
	a, _ := newTestApp(t, cfg)

	if _, err := a.CreateAccount(ctx, "acct-1", "one@example.com", ""); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	photo := writeFile(t, t.TempDir(), "clip.mp4", "plaintext-video")
	m, err := a.AddMedia(ctx, "acct-1", photo, "")
	if err != nil {
		t.Fatalf("AddMedia() error = %v", err)
	}

	stored, err := os.ReadFile(filepath.Join(cfg.BlobStore.FSRoot, filepath.FromSlash(m.StorageKey)))
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if string(stored) == "plaintext-video" {
		t.Error("blob stored unencrypted")
	}
	if m.Size != int64(len(stored)) {
		t.Errorf("Size = %d, want %d", m.Size, len(stored))
	}

	var out bytes.Buffer
	if _, err := a.GetMedia(ctx, "acct-1", m.ID, "secret", &out); err != nil {
		t.Fatalf("GetMedia() error = %v", err)
	}
	if out.String() != "plaintext-video" {
		t.Errorf("GetMedia() wrote %q, want %q", out.String(), "plaintext-video")
	}

	if _, err := a.GetMedia(ctx, "acct-1", m.ID, "guess", &bytes.Buffer{}); err == nil {
		t.Error("GetMedia() with wrong passphrase expected error")
	}
}

func TestReaperApp_GetMedia(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, testConfig(t))

	if _, err := a.CreateAccount(ctx, "acct-1", "one@example.com", ""); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	photo := writeFile(t, t.TempDir(), "photo.png", "png-bytes")
	m, err := a.AddMedia(ctx, "acct-1", photo, "")
	if err != nil {
		t.Fatalf("AddMedia() error = %v", err)
	}
	if a.MediaEncrypted() {
		t.Error("MediaEncrypted() = true without age encryption")
	}

	var out bytes.Buffer
	got, err := a.GetMedia(ctx, "acct-1", m.ID, "", &out)
	if err != nil {
		t.Fatalf("GetMedia() error = %v", err)
	}
	if got.StorageKey != m.StorageKey || out.String() != "png-bytes" {
		t.Errorf("GetMedia() = %s %q, want %s %q", got.StorageKey, out.String(), m.StorageKey, "png-bytes")
	}

	tests := []struct {
		name      string
		accountID string
		mediaID   string
		wantErr   error
	}{
		{name: "unknown account", accountID: "missing", mediaID: m.ID, wantErr: reaper.ErrAccountNotFound},
		{name: "unknown media", accountID: "acct-1", mediaID: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.GetMedia(ctx, tt.accountID, tt.mediaID, "", &bytes.Buffer{})
			if err == nil {
				t.Fatal("GetMedia() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("GetMedia() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReaperApp_AddMediaRejectsPending(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, testConfig(t))

	if _, err := a.CreateAccount(ctx, "acct-1", "one@example.com", ""); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if _, err := a.ScheduleDeletion(ctx, "acct-1"); err != nil {
		t.Fatalf("ScheduleDeletion() error = %v", err)
	}
	photo := writeFile(t, t.TempDir(), "photo.png", "png")
	if _, err := a.AddMedia(ctx, "acct-1", photo, ""); !errors.Is(err, reaper.ErrInvalidState) {
		t.Errorf("AddMedia() error = %v, want ErrInvalidState", err)
	}
	if _, err := a.AddMedia(ctx, "missing", photo, ""); !errors.Is(err, reaper.ErrAccountNotFound) {
		t.Errorf("AddMedia() error = %v, want ErrAccountNotFound", err)
	}
}

func TestReaperApp_ShowAccountNotFound(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	if _, err := a.ShowAccount(context.Background(), "missing"); !errors.Is(err, reaper.ErrAccountNotFound) {
		t.Errorf("ShowAccount() error = %v, want ErrAccountNotFound", err)
	}
}

func TestReaperApp_AuditTrailNeedsDatabaseSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Type = "log"
	a, _ := newTestApp(t, cfg)
	if _, err := a.AuditTrail(context.Background(), "acct-1"); err == nil {
		t.Error("AuditTrail() with log sink expected error")
	}
}

func TestNewReaperApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unmigrated sqlite", func(c *config.Config) { c.Database = config.DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(c.BaseDir, "db")} }},
		{"unknown blob store", func(c *config.Config) { c.BlobStore.Type = "ftp" }},
		{"unknown lock", func(c *config.Config) { c.Sweep.Lock.Type = "zookeeper" }},
		{"bad policy", func(c *config.Config) { c.Deletion.BackupRetentionDays = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			a, err := NewReaperApp(context.Background(), cfg, "test")
			if err == nil {
				a.Close()
				t.Fatal("NewReaperApp() expected error")
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path, override, want string
	}{
		{"a.jpg", "", "image/jpeg"},
		{"a.png", "", "image/png"},
		{"a.bin", "", "application/octet-stream"},
		{"a.jpg", "image/webp", "image/webp"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.path, tt.override); got != tt.want {
			t.Errorf("contentTypeFor(%q, %q) = %q, want %q", tt.path, tt.override, got, tt.want)
		}
	}
}
