package config

import (
	"errors"
	"fmt"
)

// Validate checks that the configuration is internally consistent.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.InstanceID == "" {
		add("instance_id is required")
	}

	if c.Deletion.PurgeDelayMinutes < 0 {
		add("deletion.purge_delay_minutes must not be negative")
	}
	if c.Deletion.BackupRetentionDays < 0 {
		add("deletion.backup_retention_days must not be negative")
	}
	if c.Deletion.BackupRetention() < c.Deletion.PurgeDelay() {
		add("deletion.backup_retention_days (%d days) must cover purge_delay_minutes (%d minutes)",
			c.Deletion.BackupRetentionDays, c.Deletion.PurgeDelayMinutes)
	}

	if c.Sweep.Concurrency < 1 {
		add("sweep.concurrency must be at least 1")
	}
	switch c.Sweep.Lock.Type {
	case "none", "memory":
	case "redis":
		if c.Sweep.Lock.RedisAddr == "" {
			add("sweep.lock.redis_addr required for redis lock")
		}
		if c.Sweep.Lock.TTLSeconds <= 0 {
			add("sweep.lock.ttl_seconds must be positive")
		}
	default:
		add("unknown sweep.lock.type: %s", c.Sweep.Lock.Type)
	}

	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.DataDir == "" {
			add("database.data_dir required for sqlite database")
		}
	default:
		add("unknown database.type: %s", c.Database.Type)
	}

	switch c.BlobStore.Type {
	case "memory":
	case "filesystem":
		if c.BlobStore.FSRoot == "" {
			add("blob_store.fs_root required for filesystem blob store")
		}
	case "s3":
		if c.BlobStore.S3Bucket == "" {
			add("blob_store.s3_bucket required for s3 blob store")
		}
		if (c.BlobStore.S3AccessKeyID == "") != (c.BlobStore.S3SecretAccessKey == "") {
			add("blob_store.s3_access_key_id and s3_secret_access_key must be set together")
		}
	default:
		add("unknown blob_store.type: %s", c.BlobStore.Type)
	}

	switch c.Audit.Type {
	case "database", "log":
	default:
		add("unknown audit.type: %s", c.Audit.Type)
	}

	switch c.Encryption.Type {
	case "none":
	case "age":
		if c.Encryption.PublicKeyPath == "" {
			add("encryption.public_key_path required for age encryption")
		}
	default:
		add("unknown encryption.type: %s", c.Encryption.Type)
	}

	return errors.Join(errs...)
}
