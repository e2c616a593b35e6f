package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/config"
	"github.com/untoldecay/LoomLog/internal/ui"
)

// CleanupResponse is the JSON shape for cleanup runs and previews.
type CleanupResponse struct {
	Deleted       map[string]int64 `json:"deleted"`
	Total         int64            `json:"total"`
	DryRun        bool             `json:"dry_run"`
	RetentionDays int              `json:"retention_days"`
	Message       string           `json:"message,omitempty"`
}

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	GroupID: "maint",
	Short:   "Age out captured rows older than the retention window",
	Long: `Delete captured rows older than the retention window to keep the store
small. Rows still referenced by younger rows survive: an old entry that
a recent prompt links to is never aged out.

The daemon runs this sweep on its own schedule; the command exists for
one-off runs with a different window.

By default the window comes from the retention_days config key. Use
--older-than to override it for this run.

EXAMPLES:
Preview what the configured window would remove:
  loom cleanup --dry-run

Remove everything older than 90 days:
  loom cleanup --older-than 90 --force

SAFETY:
- Requires --force to actually delete (unless --dry-run)
- Shows per-table counts of what was removed
- Use --json for programmatic output`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		olderThanDays, _ := cmd.Flags().GetInt("older-than")

		if olderThanDays == 0 {
			olderThanDays = config.GetInt("retention_days")
		}
		if olderThanDays <= 0 {
			fmt.Fprintln(os.Stderr, "Error: retention is disabled (retention_days=0); pass --older-than N")
			os.Exit(1)
		}
		retention := time.Duration(olderThanDays) * 24 * time.Hour

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}
		ctx := rootCtx

		preview, err := store.CleanupPreview(ctx, retention)
		if err != nil {
			FatalError("%v", err)
		}

		if preview.Total == 0 {
			if jsonOutput {
				outputJSON(CleanupResponse{
					Deleted:       preview.Deleted,
					RetentionDays: olderThanDays,
					DryRun:        dryRun,
					Message:       fmt.Sprintf("nothing older than %d days", olderThanDays),
				})
			} else {
				fmt.Printf("Nothing older than %d days to remove.\n", olderThanDays)
			}
			return
		}

		if !force && !dryRun {
			fmt.Fprintf(os.Stderr, "Would remove %d row(s) older than %d days. Use --force to confirm or --dry-run to preview.\n",
				preview.Total, olderThanDays)
			os.Exit(1)
		}

		if dryRun {
			if jsonOutput {
				outputJSON(CleanupResponse{
					Deleted:       preview.Deleted,
					Total:         preview.Total,
					DryRun:        true,
					RetentionDays: olderThanDays,
				})
				return
			}
			fmt.Println(ui.RenderWarn("DRY RUN - no changes will be made"))
			printCleanupCounts(preview.Deleted)
			fmt.Printf("\nWould remove %d row(s) older than %d days\n", preview.Total, olderThanDays)
			return
		}

		result, err := store.Cleanup(ctx, retention)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(CleanupResponse{
				Deleted:       result.Deleted,
				Total:         result.Total,
				RetentionDays: olderThanDays,
			})
			return
		}
		printCleanupCounts(result.Deleted)
		fmt.Printf("\n%s Removed %d row(s) older than %d days\n", ui.RenderPass("✓"), result.Total, olderThanDays)
		fmt.Fprintln(os.Stderr, ui.RenderMuted("💡 Tip: the daemon ages rows on its own; set retention_days to tune the window"))
	},
}

func printCleanupCounts(deleted map[string]int64) {
	tables := make([]string, 0, len(deleted))
	for table, n := range deleted {
		if n > 0 {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("  %-22s %6d\n", table, deleted[table])
	}
}

func init() {
	cleanupCmd.Flags().BoolP("force", "f", false, "Actually delete (without this flag, shows error)")
	cleanupCmd.Flags().Bool("dry-run", false, "Preview what would be deleted without making changes")
	cleanupCmd.Flags().Int("older-than", 0, "Only delete rows older than N days (0 = use retention_days config)")
	rootCmd.AddCommand(cleanupCmd)
}
