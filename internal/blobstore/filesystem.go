package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"reaper-go/internal/reaper"
)

// FileSystemBlobStore stores each blob as a file under root, at the path
// given by its storage key:
//
//	<root>/
//	  media/<account id>/<media id>
type FileSystemBlobStore struct {
	root string
}

// NewFileSystemBlobStore creates a blob store rooted at root, creating the
// directory if needed.
func NewFileSystemBlobStore(root string) (*FileSystemBlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob store root: %w", err)
	}
	return &FileSystemBlobStore{root: root}, nil
}

// pathFor maps a storage key to a path inside root, rejecting keys that
// would escape it.
func (b *FileSystemBlobStore) pathFor(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty storage key")
	}
	p := filepath.Join(b.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("storage key %q escapes blob store root", key)
	}
	return p, nil
}

// PutObject writes the blob to a temp file and renames it into place.
func (b *FileSystemBlobStore) PutObject(_ context.Context, key string, r io.Reader, size int64) error {
	dest, err := b.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if size >= 0 && written != size {
		tmp.Close()
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move blob into place: %w", err)
	}
	return nil
}

// GetObject opens the blob file.
func (b *FileSystemBlobStore) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := b.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", reaper.ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, nil
}

// DeleteObject removes the blob file. A missing file reports ErrBlobNotFound.
func (b *FileSystemBlobStore) DeleteObject(_ context.Context, key string) error {
	p, err := b.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", reaper.ErrBlobNotFound, key)
		}
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

var _ reaper.BlobStore = (*FileSystemBlobStore)(nil)
