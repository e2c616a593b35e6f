package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"
)

// TodoLine is the view model for one todo inside a session tree.
type TodoLine struct {
	Icon    string // status glyph, already colored
	Content string
	Age     string // optional muted suffix, e.g. "2h ago"
}

// TodoSession groups the todos observed under one editor session.
type TodoSession struct {
	SessionID string
	Todos     []TodoLine
}

// BuildTodoTree constructs a lipgloss/tree for one session's todos
func BuildTodoTree(s TodoSession) *tree.Tree {
	if len(s.Todos) == 0 {
		return nil
	}

	t := tree.New().Root(s.SessionID)

	// Set styles
	t.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorAccent))
	t.RootStyle(lipgloss.NewStyle().Bold(true).Foreground(ColorAccent))

	for _, todo := range s.Todos {
		line := fmt.Sprintf("%s %s", todo.Icon, todo.Content)
		if todo.Age != "" {
			line += " " + RenderMuted(todo.Age)
		}
		t.Child(line)
	}

	return t
}

// RenderTodoTree renders one session's todos using lipgloss/tree
func RenderTodoTree(s TodoSession) string {
	t := BuildTodoTree(s)
	if t == nil {
		return TableHintStyle.Render("No todos tracked.")
	}
	return t.String()
}

// RenderTodoSessions renders multiple session trees inside a single structured table
func RenderTodoSessions(sessions []TodoSession, width int) string {
	if len(sessions) == 0 {
		return TableHintStyle.Render("No todos tracked.")
	}

	rows := [][]string{}
	for _, s := range sessions {
		treeStr := RenderTodoTree(s)
		// 2-column layout: [Session] | [Tree]
		rows = append(rows, []string{
			lipgloss.NewStyle().Bold(true).Foreground(ColorAccent).Render(shortSession(s.SessionID)),
			treeStr,
		})
	}

	return table.New().
		Headers("Session", fmt.Sprintf("Todos (%d sessions)", len(sessions))).
		Rows(rows...).
		Border(lipgloss.RoundedBorder()).
		BorderRow(true).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if col == 0 {
					return TableHeaderStyle.Width(25)
				}
				return TableHeaderStyle.Width(width - 25 - 3)
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 0 {
				style = style.Border(lipgloss.NormalBorder(), false, true, false, false).
					BorderForeground(ColorMuted).
					Width(25).
					PaddingTop(1) // Align with first line of tree
			}
			return style
		}).
		String()
}

// shortSession truncates long editor session IDs for the session column.
func shortSession(id string) string {
	if id == "" {
		return "(none)"
	}
	if len(id) > 22 {
		return id[:22] + "…"
	}
	return id
}
