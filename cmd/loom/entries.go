package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/types"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var entriesCmd = &cobra.Command{
	Use:     "entries",
	GroupID: "views",
	Short:   "List captured code-change entries",
	Long: `List code-change entries captured from watched workspaces and editor
telemetry, newest first. Code bodies are omitted from the table view; use
--json --code to include them.

Examples:
  loom entries
  loom entries --limit 20 --workspace ~/code/api
  loom entries --since "2 hours ago"
  loom entries --since yesterday --until "9am" --json`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		workspace, _ := cmd.Flags().GetString("workspace")
		sinceRaw, _ := cmd.Flags().GetString("since")
		untilRaw, _ := cmd.Flags().GetString("until")
		withCode, _ := cmd.Flags().GetBool("code")

		since, until, ranged, err := timeRangeFlags(sinceRaw, untilRaw)
		if err != nil {
			FatalError("%v", err)
		}

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}
		ctx := rootCtx

		var entries []*types.Entry
		switch {
		case ranged:
			entries, err = facade.EntriesInTimeRange(ctx, since, until, workspace, limit)
		case withCode:
			entries, err = facade.EntriesWithCode(ctx, limit)
		default:
			entries, err = facade.RecentEntries(ctx, limit, offset, workspace)
		}
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(entries)
			return
		}
		if len(entries) == 0 {
			fmt.Println("No entries captured yet. Check 'loom daemon status'.")
			return
		}
		renderEntriesTable(entries)
	},
}

func renderEntriesTable(entries []*types.Entry) {
	width := ui.GetWidth()
	fileWidth := width - 50
	if fileWidth < 16 {
		fileWidth = 16
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		linked := ""
		if e.PromptID != nil {
			linked = fmt.Sprintf("#%d %s", *e.PromptID, e.LinkConfidence)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.ID),
			formatRelativeTime(e.Timestamp),
			string(e.Source),
			truncateText(e.FilePath, fileWidth),
			linked,
		})
	}

	t := ui.NewListTable(width).
		Headers("ID", "WHEN", "SOURCE", "FILE", "PROMPT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ui.TableHeaderStyle
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			switch col {
			case 0:
				style = style.Foreground(ui.ColorAccent)
			case 1:
				style = style.Foreground(ui.ColorMuted)
			case 4:
				style = style.Foreground(ui.ColorPass)
			}
			return style
		})
	fmt.Println(t.String())
}

func init() {
	entriesCmd.Flags().Int("limit", 50, "Maximum entries to show")
	entriesCmd.Flags().Int("offset", 0, "Entries to skip (pagination)")
	entriesCmd.Flags().String("workspace", "", "Only entries from this workspace path")
	entriesCmd.Flags().String("since", "", "Only entries after this time (natural language ok)")
	entriesCmd.Flags().String("until", "", "Only entries before this time")
	entriesCmd.Flags().Bool("code", false, "Include before/after code bodies (JSON output)")
	rootCmd.AddCommand(entriesCmd)
}
