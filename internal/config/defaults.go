package config

// Defaults applied to settings left out of the config file.
const (
	DefaultPurgeDelayMinutes   = 14 * 24 * 60
	DefaultBackupRetentionDays = 35
	DefaultSweepSchedule       = "*/15 * * * *"
	DefaultSweepConcurrency    = 4
	DefaultLockTTLSeconds      = 600
	DefaultLockKeyPrefix       = "reaper:purge:"
)

func (c *Config) applyDefaults() {
	if c.Deletion.PurgeDelayMinutes == 0 {
		c.Deletion.PurgeDelayMinutes = DefaultPurgeDelayMinutes
	}
	if c.Deletion.BackupRetentionDays == 0 {
		c.Deletion.BackupRetentionDays = DefaultBackupRetentionDays
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = DefaultSweepSchedule
	}
	if c.Sweep.Concurrency == 0 {
		c.Sweep.Concurrency = DefaultSweepConcurrency
	}
	if c.Sweep.Lock.Type == "" {
		c.Sweep.Lock.Type = "none"
	}
	if c.Sweep.Lock.TTLSeconds == 0 {
		c.Sweep.Lock.TTLSeconds = DefaultLockTTLSeconds
	}
	if c.Sweep.Lock.KeyPrefix == "" {
		c.Sweep.Lock.KeyPrefix = DefaultLockKeyPrefix
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.BlobStore.Type == "" {
		c.BlobStore.Type = "filesystem"
	}
	if c.Audit.Type == "" {
		c.Audit.Type = "database"
	}
	if c.Encryption.Type == "" {
		c.Encryption.Type = "none"
	}
}
