package main

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/types"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var promptsCmd = &cobra.Command{
	Use:     "prompts",
	GroupID: "views",
	Short:   "List captured AI prompts",
	Long: `List prompts captured from editor sidecar stores and the clipboard,
newest first.

Examples:
  loom prompts
  loom prompts --limit 10 --workspace ~/code/api
  loom prompts --since "this morning"
  loom prompts --linked          # show the entry each prompt produced`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		workspace, _ := cmd.Flags().GetString("workspace")
		sinceRaw, _ := cmd.Flags().GetString("since")
		untilRaw, _ := cmd.Flags().GetString("until")
		linked, _ := cmd.Flags().GetBool("linked")

		since, until, ranged, err := timeRangeFlags(sinceRaw, untilRaw)
		if err != nil {
			FatalError("%v", err)
		}

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}
		ctx := rootCtx

		if linked {
			rows, err := facade.PromptsWithEntries(ctx, limit)
			if err != nil {
				FatalError("%v", err)
			}
			if jsonOutput {
				outputJSON(rows)
				return
			}
			renderLinkedPromptsTable(rows)
			return
		}

		var prompts []*types.Prompt
		if ranged {
			prompts, err = facade.PromptsInRange(ctx, workspace, since, until)
			// Range reads come back oldest first; lists render newest first.
			sort.SliceStable(prompts, func(i, j int) bool {
				return prompts[i].Timestamp.After(prompts[j].Timestamp)
			})
			if limit > 0 && len(prompts) > limit {
				prompts = prompts[:limit]
			}
		} else {
			prompts, err = facade.RecentPrompts(ctx, limit, offset, workspace)
		}
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(prompts)
			return
		}
		if len(prompts) == 0 {
			fmt.Println("No prompts captured yet. Check 'loom daemon status'.")
			return
		}
		renderPromptsTable(prompts)
	},
}

func renderPromptsTable(prompts []*types.Prompt) {
	width := ui.GetWidth()
	textWidth := width - 48
	if textWidth < 20 {
		textWidth = 20
	}

	rows := make([][]string, 0, len(prompts))
	for _, p := range prompts {
		linked := ""
		if p.LinkedEntryID != nil {
			linked = fmt.Sprintf("#%d", *p.LinkedEntryID)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", p.ID),
			formatRelativeTime(p.Timestamp),
			string(p.Source),
			string(p.Status),
			truncateText(p.Text, textWidth),
			linked,
		})
	}

	t := ui.NewListTable(width).
		Headers("ID", "WHEN", "SOURCE", "STATUS", "PROMPT", "ENTRY").
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
			case 5:
				style = style.Foreground(ui.ColorPass)
			}
			return style
		})
	fmt.Println(t.String())
}

func renderLinkedPromptsTable(rows []*storage.PromptWithEntry) {
	width := ui.GetWidth()
	textWidth := (width - 30) / 2
	if textWidth < 16 {
		textWidth = 16
	}

	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		file := ""
		if r.EntryFilePath != nil {
			file = truncateText(*r.EntryFilePath, textWidth)
		}
		tableRows = append(tableRows, []string{
			fmt.Sprintf("%d", r.ID),
			formatRelativeTime(r.Timestamp),
			truncateText(r.Text, textWidth),
			file,
		})
	}

	t := ui.NewListTable(width).
		Headers("ID", "WHEN", "PROMPT", "PRODUCED").
		Rows(tableRows...).
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
			case 3:
				style = style.Foreground(ui.ColorPass)
			}
			return style
		})
	fmt.Println(t.String())
}

func init() {
	promptsCmd.Flags().Int("limit", 50, "Maximum prompts to show")
	promptsCmd.Flags().Int("offset", 0, "Prompts to skip (pagination)")
	promptsCmd.Flags().String("workspace", "", "Only prompts from this workspace path")
	promptsCmd.Flags().String("since", "", "Only prompts after this time (natural language ok)")
	promptsCmd.Flags().String("until", "", "Only prompts before this time")
	promptsCmd.Flags().Bool("linked", false, "Join each prompt with the entry it produced")
	rootCmd.AddCommand(promptsCmd)
}
