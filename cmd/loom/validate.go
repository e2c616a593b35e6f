package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/rpc"
	"github.com/untoldecay/LoomLog/internal/types"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:     "validate",
	GroupID: "maint",
	Short:   "Check store integrity",
	Long: `Check referential integrity of the capture store: entry->prompt links
must resolve both ways and no row may carry a null timestamp.
Violations are reported, never repaired.

Exits 1 when any check fails.

Examples:
  loom validate
  loom validate --json`,
	Run: func(cmd *cobra.Command, args []string) {
		report, err := fetchValidation()
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(report)
		} else {
			renderValidation(report)
		}
		if !report.Valid {
			os.Exit(1)
		}
	},
}

func fetchValidation() (*types.ValidationReport, error) {
	client, err := rpc.TryConnect(dataDir)
	if err == nil && client != nil {
		defer client.Close()
		report, rerr := client.Validate()
		if rerr == nil {
			return report, nil
		}
		fmt.Fprintf(os.Stderr, "Warning: daemon validate failed (%v), reading store directly\n", rerr)
	}

	if serr := ensureStore(); serr != nil {
		return nil, serr
	}
	return store.Validate(rootCtx)
}

func renderValidation(report *types.ValidationReport) {
	printCheck := func(name string, violations int) {
		if violations == 0 {
			fmt.Printf("  %s %s\n", ui.RenderPass(ui.IconPass), name)
			return
		}
		fmt.Printf("  %s %s: %d\n", ui.RenderFail(ui.IconFail), name, violations)
	}

	printCheck("entry->prompt links resolve", report.Checks.OrphanedEntryPrompts)
	printCheck("prompt->entry links resolve", report.Checks.OrphanedPromptEntries)
	printCheck("timestamps present", report.Checks.NullTimestamps)

	fmt.Println()
	if report.Valid {
		fmt.Println(ui.RenderPass("Store is consistent."))
	} else {
		fmt.Println(ui.RenderFail("Store has integrity violations."))
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
