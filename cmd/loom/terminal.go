package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/types"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var terminalCmd = &cobra.Command{
	Use:     "terminal",
	GroupID: "views",
	Short:   "List captured terminal commands",
	Long: `List terminal commands captured from shell history and editor terminals,
newest first.

Examples:
  loom terminal
  loom terminal --limit 20
  loom terminal --since "this morning"
  loom terminal --json`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		sinceRaw, _ := cmd.Flags().GetString("since")
		untilRaw, _ := cmd.Flags().GetString("until")

		since, until, ranged, err := timeRangeFlags(sinceRaw, untilRaw)
		if err != nil {
			FatalError("%v", err)
		}

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}

		var cmds []*types.TerminalCommand
		if ranged {
			cmds, err = facade.TerminalCommandsInRange(rootCtx, since, until, limit)
		} else {
			cmds, err = facade.RecentTerminalCommands(rootCtx, limit, offset)
		}
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(cmds)
			return
		}
		if len(cmds) == 0 {
			fmt.Println("No terminal commands captured yet. Check 'loom daemon status'.")
			return
		}
		renderTerminalTable(cmds)
	},
}

func renderTerminalTable(cmds []*types.TerminalCommand) {
	width := ui.GetWidth()
	cmdWidth := width - 48
	if cmdWidth < 20 {
		cmdWidth = 20
	}

	rows := make([][]string, 0, len(cmds))
	for _, c := range cmds {
		exit := "-"
		if c.ExitCode != nil {
			exit = fmt.Sprintf("%d", *c.ExitCode)
		}
		rows = append(rows, []string{
			truncateText(c.ID, 12),
			formatRelativeTime(c.Timestamp),
			c.Shell,
			exit,
			truncateText(c.Command, cmdWidth),
		})
	}

	t := ui.NewListTable(width).
		Headers("ID", "WHEN", "SHELL", "EXIT", "COMMAND").
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
			case 3:
				if row >= 0 && row < len(rows) && rows[row][3] != "0" && rows[row][3] != "-" {
					style = style.Foreground(ui.ColorFail)
				}
			}
			return style
		})
	fmt.Println(t.String())
}

func init() {
	terminalCmd.Flags().Int("limit", 50, "Maximum commands to show")
	terminalCmd.Flags().Int("offset", 0, "Skip this many commands")
	terminalCmd.Flags().String("since", "", "Only commands after this time (natural language ok)")
	terminalCmd.Flags().String("until", "", "Only commands before this time")
	rootCmd.AddCommand(terminalCmd)
}
