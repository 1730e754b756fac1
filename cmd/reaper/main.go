package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reaper-go/internal/app"
	"reaper-go/internal/config"
	"reaper-go/internal/database"
	"reaper-go/internal/encryption"
	"reaper-go/internal/reaper"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	paths, err := config.ResolvePaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a ReaperApp. The caller must defer app.Close().
// command identifies the CLI command being run (e.g. "sweep run").
func newApp(cmd *cobra.Command, command string) (*app.ReaperApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	var opts []app.Option
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts = append(opts, app.WithLogLevel(slog.LevelDebug))
	}

	a, err := app.NewReaperApp(cmd.Context(), cfg, command, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

const timeFormat = "2006-01-02 15:04:05Z"

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeFormat)
}

var rootCmd = &cobra.Command{
	Use:          "reaper",
	Short:        "Account deletion pipeline",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := config.ResolvePaths()
		if err != nil {
			return err
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, paths.BaseDir)

		if err := config.Init(paths.ConfigFile, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigFile)
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", paths.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := config.ResolvePaths()
		if err != nil {
			return err
		}
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigFile)
		fmt.Printf("Instance ID:      %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:         %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:          %s\n", cfg.LogDir)
		fmt.Printf("Purge Delay:      %s\n", cfg.Deletion.PurgeDelay())
		fmt.Printf("Backup Retention: %s\n", cfg.Deletion.BackupRetention())
		fmt.Printf("Sweep Schedule:   %s (concurrency %d, lock %s)\n",
			cfg.Sweep.Schedule, cfg.Sweep.Concurrency, cfg.Sweep.Lock.Type)
		fmt.Printf("Database:         %s\n", cfg.Database.Type)
		fmt.Printf("Blob Store:       %s\n", cfg.BlobStore.Type)
		fmt.Printf("Audit:            %s\n", cfg.Audit.Type)
		fmt.Printf("Encryption:       %s\n", cfg.Encryption.Type)
		return nil
	},
}

var configKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the media encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		keys := encryption.NewAgeKeys(cfg.Encryption)
		if keys.HasKeys() {
			return encryption.ErrKeysExist
		}

		passphrase, err := promptNewPassphrase()
		if err != nil {
			return err
		}
		if err := keys.GenerateKeys(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		if cfg.Encryption.Type != "age" {
			fmt.Println("Set [encryption] type = \"age\" to encrypt uploaded media.")
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the account database",
}

func openStore() (*database.SQLiteStore, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}
	return database.NewStoreFromConfig(cfg.Database, cfg.InstanceID)
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		st, err := store.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Database at version %d\n", st.Current)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Path:    %s\n", store.Path())
		fmt.Printf("Current: %d\n", st.Current)
		fmt.Printf("Latest:  %d\n", st.Latest)
		if st.Dirty {
			fmt.Println("State:   dirty")
		}
		return store.CheckMigrations()
	},
}

// account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage account deletion",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create ID EMAIL",
	Short: "Register an active account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp(cmd, "account create")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.CreateAccount(cmd.Context(), args[0], args[1], name); err != nil {
			return fmt.Errorf("creating account: %w", err)
		}
		fmt.Printf("Created account %s\n", args[0])
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show an account or its tombstone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "account show")
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := a.ShowAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if view.Tombstone != nil {
			printTombstone(view.Tombstone)
			return nil
		}

		acct := view.Account
		fmt.Printf("Account:         %s\n", acct.ID)
		fmt.Printf("Email:           %s\n", acct.Email)
		fmt.Printf("Status:          %s\n", acct.Status)
		fmt.Printf("Deleted At:      %s\n", formatTime(acct.DeletedAt))
		fmt.Printf("Purge Due:       %s\n", formatTime(acct.PurgeDueAt))
		fmt.Printf("Backup Purge:    %s\n", formatTime(acct.BackupPurgeDueAt))
		fmt.Printf("Media Objects:   %d\n", len(view.Media))
		for _, m := range view.Media {
			fmt.Printf("  %s  %-24s  %8d  %s\n", m.ID, m.ContentType, m.Size, m.StorageKey)
		}
		return nil
	},
}

var accountScheduleCmd = &cobra.Command{
	Use:   "schedule ID",
	Short: "Schedule an account for deletion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "account schedule")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.ScheduleDeletion(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Account %s pending deletion\n", args[0])
		fmt.Printf("Scheduled At:  %s\n", formatTime(&s.ScheduledAt))
		fmt.Printf("Purge Due:     %s\n", formatTime(&s.PurgeDueAt))
		fmt.Printf("Backup Purge:  %s\n", formatTime(&s.BackupPurgeDueAt))
		return nil
	},
}

var accountCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a pending deletion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "account cancel")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CancelDeletion(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deletion of account %s cancelled\n", args[0])
		return nil
	},
}

var accountPurgeCmd = &cobra.Command{
	Use:   "purge ID",
	Short: "Purge a pending account now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := confirm(fmt.Sprintf("Permanently purge account %s?", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp(cmd, "account purge")
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.PurgeAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTombstone(t)
		return nil
	},
}

// media command
var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Manage account media",
}

var mediaAddCmd = &cobra.Command{
	Use:   "add ACCOUNT FILE",
	Short: "Upload a media file for an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		contentType, _ := cmd.Flags().GetString("content-type")

		a, err := newApp(cmd, "media add")
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.AddMedia(cmd.Context(), args[0], args[1], contentType)
		if err != nil {
			return err
		}
		fmt.Printf("Stored %s (%d bytes) as %s\n", args[1], m.Size, m.StorageKey)
		return nil
	},
}

var mediaGetCmd = &cobra.Command{
	Use:   "get ACCOUNT MEDIA_ID",
	Short: "Write a decrypted media file to stdout or --output",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd, "media get")
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if a.MediaEncrypted() {
			passphrase, err = promptPassphrase()
			if err != nil {
				return err
			}
		}

		if output == "" {
			_, err := a.GetMedia(cmd.Context(), args[0], args[1], passphrase, os.Stdout)
			return err
		}

		f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		m, err := a.GetMedia(cmd.Context(), args[0], args[1], passphrase, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(output)
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%s) to %s\n", m.ID, m.ContentType, output)
		return nil
	},
}

// sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge accounts whose deletion is due",
}

var sweepRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		var now time.Time
		if raw, _ := cmd.Flags().GetString("now"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("parsing --now: %w", err)
			}
			now = t
		}

		a, err := newApp(cmd, "sweep run")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Sweep(cmd.Context(), now)
		if err != nil {
			return err
		}
		fmt.Printf("Due: %d  Purged: %d  Failed: %d  Skipped: %d\n",
			result.Due, result.Purged, result.Failed, result.Skipped)
		if result.Failed > 0 {
			return fmt.Errorf("%d account(s) failed to purge", result.Failed)
		}
		return nil
	},
}

var sweepServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run sweeps on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "sweep serve")
		if err != nil {
			return err
		}
		defer a.Close()

		return app.NewSweepDaemon(a).Run(cmd.Context())
	},
}

// tombstone command
var tombstoneCmd = &cobra.Command{
	Use:   "tombstone",
	Short: "Inspect purge tombstones",
}

var tombstoneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent tombstones",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "tombstone list")
		if err != nil {
			return err
		}
		defer a.Close()

		tombs, err := a.Tombstones(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(tombs) == 0 {
			fmt.Println("No accounts purged.")
			return nil
		}
		for _, t := range tombs {
			fmt.Printf("%s  %-36s  rows:%-6d  media:%d/%d\n",
				t.PurgedAt.Format(timeFormat),
				t.AccountID,
				t.Summary.TotalRows(),
				t.Summary.MediaBlobsRemoved,
				t.Summary.MediaBlobsRemoved+t.Summary.MediaBlobsFailed,
			)
		}
		return nil
	},
}

var tombstoneShowCmd = &cobra.Command{
	Use:   "show ACCOUNT",
	Short: "Show the tombstone of a purged account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "tombstone show")
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.Tombstone(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("no tombstone for %s", args[0])
		}
		printTombstone(t)
		return nil
	},
}

func printTombstone(t *reaper.Tombstone) {
	fmt.Printf("Account:        %s (purged)\n", t.AccountID)
	fmt.Printf("Tombstone:      %s\n", t.ID)
	fmt.Printf("Purged At:      %s\n", t.PurgedAt.Format(timeFormat))
	fmt.Printf("Media Removed:  %d\n", t.Summary.MediaBlobsRemoved)
	fmt.Printf("Media Failed:   %d\n", t.Summary.MediaBlobsFailed)
	fmt.Printf("Rows Deleted:   %d\n", t.Summary.TotalRows())
	for _, kind := range reaper.DefaultRegistry().Kinds() {
		if n := t.Summary.RowsDeleted[kind.Name]; n > 0 {
			fmt.Printf("  %-20s %d\n", kind.Name, n)
		}
	}
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit ENTITY_ID",
	Short: "View the audit trail of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "audit")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.AuditTrail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No audit records.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %-28s  %v\n", r.CreatedAt.UTC().Format(timeFormat), r.Action, r.Metadata)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sweep history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No sweeps recorded.")
			return nil
		}
		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-8s  due:%-4d purged:%-4d failed:%-4d skipped:%-4d %s\n",
				r.StartedAt.Format(timeFormat),
				r.Status,
				r.Due, r.Purged, r.Failed, r.Skipped,
				duration,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeygenCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	// account subcommands
	accountCmd.AddCommand(accountCreateCmd)
	accountCreateCmd.Flags().String("name", "", "Display name")
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountScheduleCmd)
	accountCmd.AddCommand(accountCancelCmd)
	accountCmd.AddCommand(accountPurgeCmd)
	accountPurgeCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	// media subcommands
	mediaCmd.AddCommand(mediaAddCmd)
	mediaAddCmd.Flags().String("content-type", "", "Override the detected content type")
	mediaCmd.AddCommand(mediaGetCmd)
	mediaGetCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")

	// sweep subcommands
	sweepCmd.AddCommand(sweepRunCmd)
	sweepRunCmd.Flags().String("now", "", "Sweep as of this RFC3339 time instead of the current time")
	sweepCmd.AddCommand(sweepServeCmd)

	// tombstone subcommands
	tombstoneCmd.AddCommand(tombstoneListCmd)
	tombstoneListCmd.Flags().IntP("limit", "n", 50, "Maximum number of tombstones to show")
	tombstoneCmd.AddCommand(tombstoneShowCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(mediaCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(tombstoneCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of sweeps to show")
}
