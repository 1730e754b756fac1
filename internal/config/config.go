package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for reaper.
type Config struct {
	InstanceID string           `toml:"instance_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Deletion   DeletionConfig   `toml:"deletion"`
	Sweep      SweepConfig      `toml:"sweep"`
	Database   DatabaseConfig   `toml:"database"`
	BlobStore  BlobStoreConfig  `toml:"blob_store"`
	Audit      AuditConfig      `toml:"audit"`
	Encryption EncryptionConfig `toml:"encryption"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// DeletionConfig holds the retention windows applied when a deletion is scheduled.
type DeletionConfig struct {
	PurgeDelayMinutes   int `toml:"purge_delay_minutes"`
	BackupRetentionDays int `toml:"backup_retention_days"`
}

// PurgeDelay returns the purge delay as a duration.
func (d DeletionConfig) PurgeDelay() time.Duration {
	return time.Duration(d.PurgeDelayMinutes) * time.Minute
}

// BackupRetention returns the backup retention as a duration.
func (d DeletionConfig) BackupRetention() time.Duration {
	return time.Duration(d.BackupRetentionDays) * 24 * time.Hour
}

// SweepConfig controls the periodic sweep.
type SweepConfig struct {
	Schedule    string     `toml:"schedule"`    // cron expression, e.g. "*/15 * * * *"
	Concurrency int        `toml:"concurrency"` // accounts purged in parallel
	Lock        LockConfig `toml:"lock"`
}

// LockConfig selects how sweep workers claim accounts.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LockConfig struct {
	Type       string `toml:"type"` // "none", "memory" or "redis"
	TTLSeconds int    `toml:"ttl_seconds"`

	// Redis-specific fields (only used when Type == "redis")
	RedisAddr     string `toml:"redis_addr,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisDB       int    `toml:"redis_db,omitempty"`
	KeyPrefix     string `toml:"key_prefix,omitempty"`
}

// TTL returns the lease lifetime.
func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

// DatabaseConfig represents configuration for the account database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BlobStoreConfig represents configuration for the media blob store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobStoreConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores; enables path-style addressing
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	Type string `toml:"type"` // "database" or "log"
}

// EncryptionConfig holds paths to the age key pair used for media uploads.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default) or "age"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// MetricsConfig controls the Prometheus endpoint served by `reaper sweep serve`.
type MetricsConfig struct {
	Listen string `toml:"listen"` // e.g. ":9102"; empty disables the endpoint
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Deletion: DeletionConfig{
			PurgeDelayMinutes:   DefaultPurgeDelayMinutes,
			BackupRetentionDays: DefaultBackupRetentionDays,
		},
		Sweep: SweepConfig{
			Schedule:    DefaultSweepSchedule,
			Concurrency: DefaultSweepConcurrency,
			Lock:        LockConfig{Type: "none", TTLSeconds: DefaultLockTTLSeconds},
		},
		Database:  DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		BlobStore: BlobStoreConfig{Type: "filesystem", FSRoot: filepath.Join(baseDir, "media")},
		Audit:     AuditConfig{Type: "database"},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "media.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "media.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Missing settings take
// their defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file at path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
