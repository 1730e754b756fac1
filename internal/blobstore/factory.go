package blobstore

import (
	"context"
	"fmt"

	"reaper-go/internal/config"
	"reaper-go/internal/reaper"
)

// NewBlobStoreFromConfig creates a BlobStore implementation based on the config type.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.BlobStoreConfig) (reaper.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryBlobStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem blob store requires fs_root to be set")
		}
		return NewFileSystemBlobStore(cfg.FSRoot)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 blob store requires s3_bucket to be set")
		}
		return NewS3BlobStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.Type)
	}
}
