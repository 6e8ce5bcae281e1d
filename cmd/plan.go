package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sqlrestore/internal/cloud"
	"sqlrestore/internal/metadata"
	"sqlrestore/internal/restore"
	"sqlrestore/internal/security"
)

var (
	planOutputScript string
	planRelocations  bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build a restore plan and print it as a T-SQL script",
	Long: `Build the restore sequence for a set of backups without touching the
target database. The plan is printed as a T-SQL script that can be reviewed or
run with sqlcmd.

Examples:
  # Print the plan for the latest point
  sqlrestore plan --manifest sales.yaml

  # Write a point-in-time script for a copy of the database
  sqlrestore plan --manifest sales.yaml --database Sales_Copy \
    --data-dir D:\Data --suffix _copy --restore-time "2026-03-02 09:30:00" \
    --output-script restore_sales.sql`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	addPlanFlags(planCmd)

	planCmd.Flags().StringVarP(&planOutputScript, "output-script", "o", "", "Write the T-SQL script to this .sql file")
	planCmd.Flags().BoolVar(&planRelocations, "show-relocations", false, "List where every database file will be placed")
}

// runPlan builds a plan and prints or saves its script
func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	backups, trusted, err := loadBackups(ctx, cloud.NewResolver(cloud.DefaultConfig()))
	if err != nil {
		return err
	}

	opts, err := buildOptions(trusted)
	if err != nil {
		return err
	}

	plan, err := restore.BuildPlan(backups, opts)
	if err != nil {
		return err
	}
	for _, w := range plan.Warnings {
		log.Warn(w, "database", plan.Database)
	}

	if planRelocations {
		printRelocations(plan)
	}

	script := plan.Script()
	if planOutputScript == "" {
		fmt.Print(script)
		return nil
	}

	outPath, err := security.ValidateOutputPath(planOutputScript, ".sql")
	if err != nil {
		return fmt.Errorf("invalid output script path: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(script), 0644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}

	log.Info("Restore script written",
		"path", outPath,
		"database", plan.Database,
		"points", len(plan.Points),
		"size", metadata.FormatSize(plan.TotalSize()),
		"sha256", security.ChecksumString(script))
	return nil
}

func printRelocations(plan *restore.Plan) {
	fmt.Printf("File placement for %s:\n", plan.Database)
	for i := range plan.Points {
		for _, r := range plan.Points[i].Relocations {
			marker := " "
			if r.Moved() {
				marker = "→"
			}
			fmt.Printf("  %-24s %-10s %s %s\n", r.LogicalName, r.Type, marker, r.To)
		}
		if len(plan.Points[i].Relocations) > 0 {
			// Every database point carries the same files
			break
		}
	}
	fmt.Println()
}
