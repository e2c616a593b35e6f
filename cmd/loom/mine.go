package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/adapters"
	"github.com/untoldecay/LoomLog/internal/config"
	"github.com/untoldecay/LoomLog/internal/ui"
)

// MineResponse is the JSON shape for a mining run.
type MineResponse struct {
	Mined   int64            `json:"mined"`
	ByKind  map[string]int64 `json:"by_kind"`
	Dropped int64            `json:"dropped"`
}

var mineCmd = &cobra.Command{
	Use:     "mine",
	GroupID: "maint",
	Short:   "Backfill the store from git history, shell history, and editor logs",
	Long: `Mine past activity into the store: recent git commits and modified
files under the workspace roots, shell history, and editor log
directories. Everything flows through the same dedup and correlation
pipeline as live capture, so re-running is safe.

The daemon runs this once on a cold start; the command exists for
manual backfills.

Examples:
  loom mine
  loom mine --root ~/code/api
  loom mine --json`,
	Run: func(cmd *cobra.Command, args []string) {
		roots, _ := cmd.Flags().GetStringSlice("root")
		if len(roots) == 0 {
			roots = config.WorkspaceRoots()
		}
		history := configuredHistoryFiles()
		if len(roots) == 0 && len(history) == 0 {
			fmt.Fprintln(os.Stderr, "Error: nothing to mine; configure workspace_roots with 'loom init' or pass --root")
			os.Exit(1)
		}

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}
		ctx := rootCtx

		ing := buildIngestor()
		ing.SetWarnFunc(func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
		})

		miner := adapters.NewMiner(roots, history)
		miner.SetWarnFunc(func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
		})

		if !jsonOutput {
			fmt.Printf("Mining %d root(s) and %d history file(s)...\n", len(roots), len(history))
		}

		err := miner.Run(ctx, func(rec adapters.Record) {
			if ierr := ing.Ingest(ctx, rec); ierr != nil {
				fmt.Fprintf(os.Stderr, "Warning: mined record rejected: %v\n", ierr)
			}
		})
		if err != nil {
			FatalError("%v", err)
		}

		counts, dropped := ing.Counts()
		byKind := make(map[string]int64, len(counts))
		var total int64
		for kind, n := range counts {
			byKind[string(kind)] = n
			total += n
		}

		if jsonOutput {
			outputJSON(MineResponse{Mined: total, ByKind: byKind, Dropped: dropped})
			return
		}

		kinds := make([]string, 0, len(byKind))
		for kind := range byKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Printf("  %-18s %6d\n", kind, byKind[kind])
		}
		fmt.Printf("\n%s Mined %d record(s)", ui.RenderPass("✓"), total)
		if dropped > 0 {
			fmt.Printf(", dropped %d malformed", dropped)
		}
		fmt.Println()
	},
}

func init() {
	mineCmd.Flags().StringSlice("root", nil, "Workspace root to mine (repeatable; default: workspace_roots config)")
	rootCmd.AddCommand(mineCmd)
}
