package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/types"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var todosCmd = &cobra.Command{
	Use:     "todos",
	GroupID: "views",
	Short:   "List captured todo items grouped by session",
	Long: `List todo items captured from agent sessions, grouped by the session
that produced them.

Examples:
  loom todos
  loom todos --status pending
  loom todos --json`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		statusFilter, _ := cmd.Flags().GetString("status")

		if err := ensureStore(); err != nil {
			FatalError("%v", err)
		}

		todos, err := facade.Todos(rootCtx, limit, offset)
		if err != nil {
			FatalError("%v", err)
		}
		if statusFilter != "" {
			filtered := todos[:0]
			for _, td := range todos {
				if string(td.Status) == statusFilter {
					filtered = append(filtered, td)
				}
			}
			todos = filtered
		}

		if jsonOutput {
			outputJSON(todos)
			return
		}
		if len(todos) == 0 {
			fmt.Println("No todos captured yet. Check 'loom daemon status'.")
			return
		}
		fmt.Println(ui.RenderTodoSessions(groupTodoSessions(todos), ui.GetWidth()))
	},
}

// groupTodoSessions buckets todos by session, newest session first, items in
// their agent-declared order.
func groupTodoSessions(todos []*types.Todo) []ui.TodoSession {
	byID := make(map[string][]*types.Todo)
	var order []string
	for _, td := range todos {
		if _, seen := byID[td.SessionID]; !seen {
			order = append(order, td.SessionID)
		}
		byID[td.SessionID] = append(byID[td.SessionID], td)
	}

	sessions := make([]ui.TodoSession, 0, len(order))
	for _, id := range order {
		items := byID[id]
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].OrderIndex < items[j].OrderIndex
		})
		lines := make([]ui.TodoLine, 0, len(items))
		for _, td := range items {
			lines = append(lines, ui.TodoLine{
				Icon:    todoIcon(td.Status),
				Content: truncateText(td.Content, 60),
				Age:     formatRelativeTime(td.UpdatedAt),
			})
		}
		sessions = append(sessions, ui.TodoSession{SessionID: id, Todos: lines})
	}
	return sessions
}

func todoIcon(status types.TodoStatus) string {
	switch status {
	case types.TodoCompleted:
		return ui.RenderPass(ui.IconPass)
	case types.TodoInProgress:
		return ui.RenderAccent("›")
	default:
		return ui.RenderMuted("○")
	}
}

func init() {
	todosCmd.Flags().Int("limit", 100, "Maximum todos to show")
	todosCmd.Flags().Int("offset", 0, "Skip this many todos")
	todosCmd.Flags().String("status", "", "Only todos with this status (pending, in_progress, completed)")
	rootCmd.AddCommand(todosCmd)
}
