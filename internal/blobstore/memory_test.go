package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"reaper-go/internal/reaper"
)

func TestMemoryBlobStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put then delete", func(t *testing.T) {
		m := NewMemoryBlobStore()
		if err := m.PutObject(ctx, "media/a/1", strings.NewReader("jpeg"), 4); err != nil {
			t.Fatalf("PutObject() error = %v", err)
		}
		if !m.Has("media/a/1") {
			t.Fatal("Has() = false after PutObject")
		}

		if err := m.DeleteObject(ctx, "media/a/1"); err != nil {
			t.Fatalf("DeleteObject() error = %v", err)
		}
		if m.Has("media/a/1") {
			t.Error("Has() = true after DeleteObject")
		}
	})

	t.Run("get returns the stored bytes", func(t *testing.T) {
		m := NewMemoryBlobStore()
		m.PutObject(ctx, "media/a/1", strings.NewReader("jpeg"), 4)

		rc, err := m.GetObject(ctx, "media/a/1")
		if err != nil {
			t.Fatalf("GetObject() error = %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != "jpeg" {
			t.Errorf("GetObject() = %q, want %q", data, "jpeg")
		}

		if _, err := m.GetObject(ctx, "media/missing"); !errors.Is(err, reaper.ErrBlobNotFound) {
			t.Errorf("GetObject() error = %v, want ErrBlobNotFound", err)
		}
	})

	t.Run("delete of missing key reports not found", func(t *testing.T) {
		m := NewMemoryBlobStore()
		err := m.DeleteObject(ctx, "media/missing")
		if !errors.Is(err, reaper.ErrBlobNotFound) {
			t.Errorf("DeleteObject() error = %v, want ErrBlobNotFound", err)
		}
	})

	t.Run("size mismatch is rejected", func(t *testing.T) {
		m := NewMemoryBlobStore()
		if err := m.PutObject(ctx, "k", strings.NewReader("abc"), 10); err == nil {
			t.Error("PutObject() expected size mismatch error")
		}
	})

	t.Run("keys are sorted", func(t *testing.T) {
		m := NewMemoryBlobStore()
		for _, k := range []string{"b", "a", "c"} {
			m.PutObject(ctx, k, strings.NewReader("x"), 1)
		}
		if got := strings.Join(m.Keys(), ","); got != "a,b,c" {
			t.Errorf("Keys() = %s, want a,b,c", got)
		}
	})
}
