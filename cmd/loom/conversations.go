package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/types"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	GroupID: "views",
	Short:   "List captured conversations",
	Long: `List conversations threaded from captured prompts, most recently
active first.

Examples:
  loom conversations
  loom conversations --workspace ~/code/api --limit 10
  loom conversations show conv-42`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		workspace, _ := cmd.Flags().GetString("workspace")

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}

		convs, err := facade.ConversationsByWorkspace(rootCtx, workspace, limit)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(convs)
			return
		}
		if len(convs) == 0 {
			fmt.Println("No conversations captured yet. Check 'loom daemon status'.")
			return
		}
		renderConversationsTable(convs)
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Render one conversation's transcript",
	Long: `Render a conversation transcript as formatted markdown: every captured
prompt in dialogue order with its per-message stats.

Examples:
  loom conversations show conv-42
  loom conversations show conv-42 --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}
		ctx := rootCtx

		conv, err := facade.Conversation(ctx, id)
		if err != nil {
			FatalError("%v", err)
		}
		if conv == nil {
			fmt.Fprintf(os.Stderr, "Error: no conversation %q (list them with 'loom conversations')\n", id)
			os.Exit(1)
		}

		prompts, err := facade.ConversationPrompts(ctx, id)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"conversation": conv,
				"prompts":      prompts,
			})
			return
		}

		markdown := buildTranscript(conv, prompts)
		if !ui.IsTerminal() {
			fmt.Print(markdown)
			return
		}

		width := ui.GetWidth()
		if width > 100 {
			width = 100
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			fmt.Print(markdown)
			return
		}
		out, err := renderer.Render(markdown)
		if err != nil {
			fmt.Print(markdown)
			return
		}
		fmt.Print(out)
	},
}

// buildTranscript assembles the conversation as markdown for rendering.
func buildTranscript(conv *types.Conversation, prompts []*types.Prompt) string {
	var b strings.Builder

	title := conv.Title
	if title == "" {
		title = conv.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	meta := []string{fmt.Sprintf("%d messages", conv.MessageCount)}
	if conv.WorkspacePath != "" {
		meta = append(meta, conv.WorkspacePath)
	}
	meta = append(meta, "started "+conv.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "_%s_\n", strings.Join(meta, " | "))

	for _, p := range prompts {
		role := p.MessageRole
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&b, "\n---\n\n### %s (%s)\n\n", role, p.Timestamp.Local().Format("2006-01-02 15:04"))
		b.WriteString(strings.TrimSpace(p.Text))
		b.WriteString("\n")

		var details []string
		if p.Stats.ModelName != "" {
			details = append(details, "model "+p.Stats.ModelName)
		}
		if p.Stats.LinesAdded != 0 || p.Stats.LinesRemoved != 0 {
			details = append(details, fmt.Sprintf("+%d/-%d lines", p.Stats.LinesAdded, p.Stats.LinesRemoved))
		}
		if n := p.ContextFileCounts.Count; n > 0 {
			details = append(details, fmt.Sprintf("%d context files", n))
		}
		if p.ThinkingTimeMS > 0 {
			details = append(details, fmt.Sprintf("thought %.1fs", float64(p.ThinkingTimeMS)/1000))
		}
		if p.LinkedEntryID != nil {
			details = append(details, fmt.Sprintf("produced entry #%d", *p.LinkedEntryID))
		}
		if len(details) > 0 {
			fmt.Fprintf(&b, "\n> %s\n", strings.Join(details, " | "))
		}
	}

	return b.String()
}

func renderConversationsTable(convs []*types.Conversation) {
	width := ui.GetWidth()
	titleWidth := width - 52
	if titleWidth < 16 {
		titleWidth = 16
	}

	rows := make([][]string, 0, len(convs))
	for _, c := range convs {
		last := c.UpdatedAt
		if c.LastMessageAt != nil {
			last = *c.LastMessageAt
		}
		rows = append(rows, []string{
			truncateText(c.ID, 20),
			formatRelativeTime(last),
			fmt.Sprintf("%d", c.MessageCount),
			string(c.Status),
			truncateText(c.Title, titleWidth),
		})
	}

	t := ui.NewListTable(width).
		Headers("ID", "ACTIVE", "MSGS", "STATUS", "TITLE").
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
			case 2:
				style = style.Align(lipgloss.Right)
			}
			return style
		})
	fmt.Println(t.String())
}

func init() {
	conversationsCmd.Flags().Int("limit", 50, "Maximum conversations to show")
	conversationsCmd.Flags().String("workspace", "", "Only conversations from this workspace path")
	conversationsCmd.AddCommand(conversationsShowCmd)
	rootCmd.AddCommand(conversationsCmd)
}
