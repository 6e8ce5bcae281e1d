package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sqlrestore/internal/cloud"
	"sqlrestore/internal/metadata"
	"sqlrestore/internal/pitr"
	"sqlrestore/internal/security"
)

var (
	historySince   string
	historyOutput  string
	historyListURL string
	historyListDir string
)

var historyCmd = &cobra.Command{
	Use:   "history [database]",
	Short: "Show backup history or list backups in blob storage",
	Long: `Read the backup history of a database from msdb on the configured server
and print it, or save it as a manifest that the restore and plan commands accept.

With --list-url the backups stored under a cloud prefix are listed instead.

Examples:
  # Print the backup chain of Sales recorded in the last week
  sqlrestore history Sales --since "2026-03-01"

  # Export the history as a manifest for restoring on another server
  sqlrestore history Sales --output sales.yaml

  # List backup files in an S3 bucket
  sqlrestore history --list-url s3://backups/sales/

  # List saved manifests in a directory
  sqlrestore history --list-dir ./manifests`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only show backups started after this time")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "", "Save the history as a manifest (.yaml, .yml, .json)")
	historyCmd.Flags().StringVar(&historyListURL, "list-url", "", "List backup files under this cloud URL instead")
	historyCmd.Flags().StringVar(&historyListDir, "list-dir", "", "List manifests saved in this directory instead")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if historyListURL != "" {
		return listCloudBackups(cmd, historyListURL)
	}
	if historyListDir != "" {
		return listManifests(historyListDir)
	}
	if len(args) == 0 {
		return fmt.Errorf("database name required (or use --list-url, --list-dir)")
	}
	db := args[0]

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var since time.Time
	if historySince != "" {
		t, err := pitr.ParseRestoreTime(historySince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		since = t
	}

	backups, err := readHistory(ctx, db, since)
	if err != nil {
		return err
	}

	if historyOutput != "" {
		outPath, err := security.ValidateOutputPath(historyOutput, ".yaml", ".yml", ".json")
		if err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
		m := &metadata.Manifest{
			Version:     metadata.ManifestVersion,
			Database:    db,
			GeneratedAt: time.Now().UTC(),
			Source:      "msdb@" + cfg.ServerDisplay(),
			Backups:     backups,
		}
		if err := m.Save(outPath); err != nil {
			return err
		}
		log.Info("Manifest written", "path", outPath, "backups", len(backups),
			"size", metadata.FormatSize(m.TotalSize()))
		return nil
	}

	fmt.Printf("Backup history for %s on %s:\n\n", db, cfg.ServerDisplay())
	fmt.Printf("%-12s %-19s %-25s %-25s %10s  %s\n", "TYPE", "STARTED", "FIRST LSN", "LAST LSN", "SIZE", "DEVICE")
	for _, b := range backups {
		fmt.Printf("%-12s %-19s %-25s %-25s %10s  %s\n",
			b.Type, b.StartTime.Format("2006-01-02 15:04:05"),
			b.FirstLSN, b.LastLSN, metadata.FormatSize(b.SizeBytes), b.Path)
	}
	return nil
}

// listCloudBackups prints the objects stored under a cloud prefix
func listCloudBackups(cmd *cobra.Command, uri string) error {
	if !cloud.IsCloudURI(uri) {
		return fmt.Errorf("not a cloud URL: %s", uri)
	}

	resolver := cloud.NewResolver(cloud.DefaultConfig())
	files, err := resolver.List(cmd.Context(), uri)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", uri, err)
	}

	if len(files) == 0 {
		fmt.Printf("No backups found under %s\n", uri)
		return nil
	}

	var total int64
	fmt.Printf("%-50s %10s  %s\n", "NAME", "SIZE", "MODIFIED")
	for _, f := range files {
		fmt.Printf("%-50s %10s  %s\n", f.Key, metadata.FormatSize(f.Size), f.LastModified.Format("2006-01-02 15:04:05"))
		total += f.Size
	}
	fmt.Printf("\n%d file(s), %s\n", len(files), metadata.FormatSize(total))
	return nil
}

// listManifests prints the manifests found in dir, newest first
func listManifests(dir string) error {
	manifests, err := metadata.ListManifests(dir)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Printf("No manifests found in %s\n", dir)
		return nil
	}

	fmt.Printf("%-24s %-20s %8s %10s  %s\n", "DATABASE", "GENERATED", "BACKUPS", "SIZE", "SOURCE")
	for _, m := range manifests {
		fmt.Printf("%-24s %-20s %8d %10s  %s\n", m.Database, m.GeneratedAt.Format("2006-01-02 15:04:05"),
			len(m.Backups), metadata.FormatSize(m.TotalSize()), m.Source)
	}
	return nil
}
