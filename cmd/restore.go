package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sqlrestore/internal/cloud"
	"sqlrestore/internal/database"
	"sqlrestore/internal/metadata"
	"sqlrestore/internal/metrics"
	"sqlrestore/internal/pitr"
	"sqlrestore/internal/progress"
	"sqlrestore/internal/restore"
	"sqlrestore/internal/tracing"
	"sqlrestore/internal/tui"
)

var (
	// Backup sources
	restoreManifest    string
	restoreFromHistory string
	restoreSince       string

	// Target and relocation
	restoreTarget        string
	restoreDataDir       string
	restoreLogDir        string
	restoreFileStreamDir string
	restoreMove          map[string]string
	restorePrefix        string
	restoreSuffix        string

	// Recovery
	restoreTime       string
	restoreRecovery   string
	restoreStandbyDir string
	restoreContinue   bool
	restoreReplace    bool

	// Tuning
	restoreCredential      string
	restoreBlockSize       int
	restoreBufferCount     int
	restoreMaxTransferSize int
	restoreChecksum        bool
	restoreKeepReplication bool
	restoreKeepCDC         bool
	restoreStats           int

	// Execution
	restoreConfirm     bool
	restoreDryRun      bool
	restoreInteractive bool
	restoreNoProgress  bool
	restoreProgress    string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a database from a chain of backups",
	Long: `Plan and execute a SQL Server restore sequence.

Backups come either from a manifest (YAML or JSON, local or cloud URL) or from
the backup history recorded in msdb on the target server. The plan restores the
latest full backup, the latest differential based on it and every log backup
after it, in order. All points but the last are restored WITH NORECOVERY.

Without --confirm the plan is only printed (dry-run).

Examples:
  # Show what would be restored from a manifest
  sqlrestore restore --manifest sales.yaml

  # Restore to a point in time under a new name, relocating the files
  sqlrestore restore --manifest sales.yaml --database Sales_Copy \
    --data-dir D:\Data --log-dir L:\Log --restore-time "2026-03-02 09:30:00" --confirm

  # Log shipping: apply new logs and leave the database readable in standby
  sqlrestore restore --from-history Sales --continue --recovery standby \
    --standby-dir S:\Standby --confirm

  # Restore from Azure Blob Storage with a server credential
  sqlrestore restore --manifest https://acct.blob.core.windows.net/backups/sales.json \
    --credential https://acct.blob.core.windows.net/backups --replace --confirm

  # Review the plan interactively before executing
  sqlrestore restore --manifest sales.yaml --interactive`,
	Args: cobra.NoArgs,
	RunE: runRestore,
}

func init() {
	addPlanFlags(restoreCmd)

	restoreCmd.Flags().BoolVar(&restoreConfirm, "confirm", false, "Confirm and execute restore (required)")
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Show what would be done without executing")
	restoreCmd.Flags().BoolVarP(&restoreInteractive, "interactive", "i", false, "Review the plan in an interactive preview before executing")
	restoreCmd.Flags().BoolVar(&restoreNoProgress, "no-progress", false, "Disable progress indicators")
	restoreCmd.Flags().StringVar(&restoreProgress, "progress-style", "line", "Progress output: line, bar, light or quiet")
}

// addPlanFlags registers the flags shared by restore and plan
func addPlanFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&restoreManifest, "manifest", "m", "", "Backup manifest (.yaml, .yml, .json), local path or cloud URL")
	cmd.Flags().StringVar(&restoreFromHistory, "from-history", "", "Read backups of this database from msdb history")
	cmd.Flags().StringVar(&restoreSince, "since", "", "Ignore history before this time (with --from-history)")

	cmd.Flags().StringVarP(&restoreTarget, "database", "d", "", "Target database name (defaults to the backed up database)")
	cmd.Flags().StringVar(&restoreDataDir, "data-dir", "", "Destination directory for data files")
	cmd.Flags().StringVar(&restoreLogDir, "log-dir", "", "Destination directory for log files")
	cmd.Flags().StringVar(&restoreFileStreamDir, "filestream-dir", "", "Destination directory for FILESTREAM containers")
	cmd.Flags().StringToStringVar(&restoreMove, "move", nil, "Explicit file relocation logical=path (repeatable)")
	cmd.Flags().StringVar(&restorePrefix, "prefix", "", "Prefix added to relocated file names")
	cmd.Flags().StringVar(&restoreSuffix, "suffix", "", "Suffix added to relocated file names before the extension")

	cmd.Flags().StringVar(&restoreTime, "restore-time", "", "Point in time to restore to (default: latest)")
	cmd.Flags().StringVar(&restoreRecovery, "recovery", "", "Final state: recovery, norecovery or standby (default recovery, standby with --standby-dir)")
	cmd.Flags().StringVar(&restoreStandbyDir, "standby-dir", "", "Directory for the standby undo file (with --recovery standby)")
	cmd.Flags().BoolVar(&restoreContinue, "continue", false, "Continue a restore left in RESTORING or STANDBY state")
	cmd.Flags().BoolVar(&restoreReplace, "replace", false, "Overwrite an existing database")

	cmd.Flags().StringVar(&restoreCredential, "credential", "", "Server credential for URL backups")
	cmd.Flags().IntVar(&restoreBlockSize, "block-size", 0, "BLOCKSIZE in bytes")
	cmd.Flags().IntVar(&restoreBufferCount, "buffer-count", 0, "BUFFERCOUNT")
	cmd.Flags().IntVar(&restoreMaxTransferSize, "max-transfer-size", 0, "MAXTRANSFERSIZE in bytes")
	cmd.Flags().BoolVar(&restoreChecksum, "checksum", false, "Verify backup checksums while restoring")
	cmd.Flags().BoolVar(&restoreKeepReplication, "keep-replication", false, "Preserve replication settings")
	cmd.Flags().BoolVar(&restoreKeepCDC, "keep-cdc", false, "Preserve change data capture settings")
	cmd.Flags().IntVar(&restoreStats, "stats", -1, "Progress message interval in percent (default from config)")
}

// runRestore builds and executes a restore plan
func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	resolver := cloud.NewResolver(cloud.DefaultConfig())

	backups, trusted, err := loadBackups(ctx, resolver)
	if err != nil {
		return err
	}

	opts, err := buildOptions(trusted)
	if err != nil {
		return err
	}

	shutdown, err := tracing.NewTracerProvider(ctx, cfg.Telemetry, cfg.Version, log)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to flush traces", "error", err)
		}
	}()

	isDryRun := restoreDryRun || (!restoreConfirm && !restoreInteractive)

	server := database.New(cfg, log)
	engine := restore.NewWithProgress(cfg, log, server, newIndicator(), isDryRun)
	engine.SetAuditLogger(auditLogger)
	engine.SetRateLimiter(rateLimiter)
	engine.SetCloudResolver(resolver)

	if cfg.MetricsFile != "" || cfg.PushgatewayURL != "" {
		mc, err := metrics.NewMetricsCollector(metrics.Config{
			TextfilePath:   cfg.MetricsFile,
			PushgatewayURL: cfg.PushgatewayURL,
			JobName:        "sqlrestore",
			Timeout:        10 * time.Second,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		engine.SetMetrics(mc)
		defer printSessionSummary(mc)
	}

	if restoreInteractive && !restoreDryRun {
		plan, err := engine.Plan(backups, opts)
		if err != nil {
			return err
		}
		confirmed, err := tui.ConfirmPlan(ctx, plan, cfg.ServerDisplay(), os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		if !confirmed {
			log.Info("Restore cancelled by user", "database", plan.Database)
			return nil
		}
	}

	log.Info("Starting restore...", "server", cfg.ServerDisplay(), "backups", len(backups))
	result, err := engine.Restore(ctx, backups, opts)
	if result != nil {
		printResult(result, isDryRun)
	}
	if err != nil {
		return err
	}

	if isDryRun {
		fmt.Println("\nTo execute this restore, add --confirm flag")
	}
	return nil
}

// loadBackups reads descriptors from the manifest or from msdb history. The
// second result reports whether they come from the server's own catalog.
func loadBackups(ctx context.Context, resolver *cloud.Resolver) ([]metadata.BackupFileDescriptor, bool, error) {
	switch {
	case restoreManifest != "" && restoreFromHistory != "":
		return nil, false, fmt.Errorf("--manifest and --from-history are mutually exclusive")

	case restoreManifest != "":
		m, err := loadManifest(ctx, resolver, restoreManifest)
		if err != nil {
			return nil, false, err
		}
		log.Info("Loaded manifest", "path", restoreManifest, "database", m.Database, "backups", len(m.Backups))
		return m.Backups, false, nil

	case restoreFromHistory != "":
		var since time.Time
		if restoreSince != "" {
			t, err := pitr.ParseRestoreTime(restoreSince)
			if err != nil {
				return nil, false, fmt.Errorf("invalid --since: %w", err)
			}
			since = t
		}
		backups, err := readHistory(ctx, restoreFromHistory, since)
		if err != nil {
			return nil, false, err
		}
		return backups, true, nil

	default:
		return nil, false, fmt.Errorf("no backups given: use --manifest or --from-history")
	}
}

// loadManifest reads a manifest from disk or from blob storage
func loadManifest(ctx context.Context, resolver *cloud.Resolver, location string) (*metadata.Manifest, error) {
	if !cloud.IsCloudURI(location) {
		return metadata.LoadManifest(location)
	}

	format, err := metadata.FormatFromPath(strings.SplitN(path.Base(location), "?", 2)[0])
	if err != nil {
		return nil, err
	}
	data, err := resolver.ReadFile(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to download manifest: %w", err)
	}
	m, err := metadata.ParseManifest(data, format)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", location, err)
	}
	return m, nil
}

// readHistory connects to the configured server and reads its backup catalog
func readHistory(ctx context.Context, db string, since time.Time) ([]metadata.BackupFileDescriptor, error) {
	server := database.New(cfg, log)
	if err := server.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.ServerDisplay(), err)
	}
	defer server.Close()

	backups, err := server.BackupHistory(ctx, db, since)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, fmt.Errorf("no backup history found for database %s on %s", db, cfg.ServerDisplay())
	}
	log.Info("Loaded backup history", "database", db, "backups", len(backups))
	return backups, nil
}

// buildOptions maps the command line to restore options. Configured default
// directories only apply when no explicit file mapping is given.
func buildOptions(trusted bool) (*restore.Options, error) {
	target, err := pitr.ParseRecoveryTarget(restoreTime, restoreRecovery, restoreStandbyDir)
	if err != nil {
		return nil, err
	}

	opts := &restore.Options{
		TargetDatabase:  restoreTarget,
		DataDir:         restoreDataDir,
		LogDir:          restoreLogDir,
		FileStreamDir:   restoreFileStreamDir,
		FileMapping:     restoreMove,
		Prefix:          restorePrefix,
		Suffix:          restoreSuffix,
		Target:          *target,
		Continue:        restoreContinue,
		Replace:         restoreReplace,
		TrustedHistory:  trusted,
		Credential:      restoreCredential,
		BlockSize:       restoreBlockSize,
		BufferCount:     restoreBufferCount,
		MaxTransferSize: restoreMaxTransferSize,
		Checksum:        restoreChecksum,
		KeepReplication: restoreKeepReplication,
		KeepCDC:         restoreKeepCDC,
		Stats:           restoreStats,
	}

	if len(opts.FileMapping) == 0 {
		if opts.DataDir == "" {
			opts.DataDir = cfg.DataDir
		}
		if opts.LogDir == "" {
			opts.LogDir = cfg.LogDir
		}
	}
	if opts.Credential == "" {
		opts.Credential = cfg.Credential
	}
	if opts.Stats < 0 {
		opts.Stats = cfg.Stats
	}

	return opts, nil
}

// printResult shows the per-point outcome of a restore
func printResult(result *restore.Result, dryRun bool) {
	if dryRun {
		fmt.Println("\n🔍 DRY-RUN MODE - No changes will be made")
	}
	fmt.Printf("\nRestore of %s: %d point(s)\n", result.Database, len(result.Points))
	for i, p := range result.Points {
		fmt.Printf("  %2d. %-12s %-9s %s\n", i+1, p.Type, p.Status, firstLine(p.Statement))
		if p.Error != "" {
			fmt.Printf("      error: %s\n", p.Error)
		}
	}
	if dryRun {
		return
	}
	if result.Success {
		fmt.Printf("\n✅ Restore completed successfully in %s\n", result.Duration.Round(time.Millisecond))
	} else {
		fmt.Printf("\n❌ Restore failed after %s\n", result.Duration.Round(time.Millisecond))
	}
}

// printSessionSummary reports the success rate of the points executed
func printSessionSummary(mc *metrics.MetricsCollector) {
	avgs := mc.GetAverages()
	if ops, ok := avgs["total_points"].(int); ok && ops > 0 {
		fmt.Printf("\n📊 Session Summary: %d points, %.1f%% success rate\n", ops, avgs["success_rate"])
	}
}

func newIndicator() progress.Indicator {
	if restoreNoProgress {
		return progress.NewNullIndicator()
	}
	return progress.NewIndicator(true, restoreProgress)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// ExitCode maps an error to the process exit status: 2 for configuration
// errors, 3 for failed prechecks, 4 for a failed restore statement.
func ExitCode(err error) int {
	var (
		cfgErr  *restore.ConfigError
		preErr  *restore.PreconditionError
		execErr *restore.ExecutionError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &cfgErr):
		return 2
	case errors.As(err, &preErr):
		return 3
	case errors.As(err, &execErr):
		return 4
	default:
		return 1
	}
}
