package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/rpc"
	"github.com/untoldecay/LoomLog/internal/types"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "maint",
	Short:   "Show capture counts and link rates",
	Long: `Show per-table row counts and the percentage of entries and prompts
carrying a correlation link. Asks a running daemon first so counts
include anything still in its write queue, and falls back to reading
the store directly.

An entry links to a prompt when its correlation score clears 0.45
(medium) or 0.75 (high); scores down to 0.2 are recorded on the entry
as low confidence without linking.

Examples:
  loom stats
  loom stats --json`,
	Run: func(cmd *cobra.Command, args []string) {
		stats, viaDaemon, err := fetchStats()
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(stats)
			return
		}
		renderStats(stats, viaDaemon)
	},
}

// fetchStats prefers the daemon so queued writes are flushed into the
// numbers; a direct store read is the fallback.
func fetchStats() (*types.Stats, bool, error) {
	client, err := rpc.TryConnect(dataDir)
	if err == nil && client != nil {
		defer client.Close()
		stats, rerr := client.Stats()
		if rerr == nil {
			return stats, true, nil
		}
		fmt.Fprintf(os.Stderr, "Warning: daemon stats failed (%v), reading store directly\n", rerr)
	}

	if serr := ensureStore(); serr != nil {
		return nil, false, serr
	}
	stats, err := facade.Stats(rootCtx)
	if err != nil {
		return nil, false, err
	}
	return stats, false, nil
}

func renderStats(stats *types.Stats, viaDaemon bool) {
	source := "store"
	if viaDaemon {
		source = "daemon"
	}
	fmt.Printf("%s %s\n\n", ui.RenderAccent("Loom stats"), ui.RenderMuted("(via "+source+")"))

	tables := make([]string, 0, len(stats.Counts))
	for name := range stats.Counts {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	var total int64
	for _, name := range tables {
		fmt.Printf("  %-22s %8d\n", name, stats.Counts[name])
		total += stats.Counts[name]
	}
	fmt.Printf("  %-22s %8d\n\n", "total", total)

	fmt.Printf("  %-22s %7.1f%%\n", "linked entries", stats.LinkedEntryPercent)
	fmt.Printf("  %-22s %7.1f%%\n", "linked prompts", stats.LinkedPromptPercent)
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
