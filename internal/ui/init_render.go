package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/list"
	"github.com/charmbracelet/lipgloss/table"
)

// InitResult aggregates all information from the initialization process
type InitResult struct {
	// Paths
	DataDir    string
	DBPath     string
	ConfigPath string

	// Capture sources
	Workspaces   []string
	EditorDBs    []string
	HistoryFiles []string

	// Adapters enabled in the written config
	Adapters []string

	// Diagnostics
	DoctorIssues []string

	// Next steps
	QuickstartCommands []string
}

// RenderInitReport generates a Lipgloss report for the init command
func RenderInitReport(res InitResult, width int) string {
	var sections []string

	// 1. Success Header (Minimal)
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPass).
		Render("✓ loom Initialized Successfully")
	sections = append(sections, header, "")

	// 2. Hierarchical Progress List (using lipgloss/list)
	// Outer list uses checkmarks
	l := list.New().
		Enumerator(func(_ list.Items, i int) string {
			return RenderPass("✓")
		}).
		EnumeratorStyle(lipgloss.NewStyle().MarginRight(1))

	if len(res.Workspaces) > 0 {
		wsList := list.New().Enumerator(func(_ list.Items, i int) string {
			return RenderPass("✓")
		}).EnumeratorStyle(lipgloss.NewStyle().MarginRight(1))
		for _, w := range res.Workspaces {
			wsList.Item(w)
		}
		l.Item("Watched workspaces")
		l.Item(wsList)
	}

	if len(res.EditorDBs) > 0 {
		l.Item("Editor databases: " + strings.Join(res.EditorDBs, ", "))
	}
	if len(res.HistoryFiles) > 0 {
		l.Item("Shell history: " + strings.Join(res.HistoryFiles, ", "))
	}
	if len(res.Adapters) > 0 {
		l.Item("Adapters enabled: " + strings.Join(res.Adapters, ", "))
	}

	sections = append(sections, l.String(), "")

	// 3. Setup Details Table (Summary)
	detailsRows := [][]string{
		{"Data Directory", res.DataDir},
		{"Database", res.DBPath},
		{"Config", res.ConfigPath},
	}

	summaryTable := table.New().
		Headers("Component", "Configuration").
		Rows(detailsRows...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if col == 0 {
					return TableHeaderStyle.Width(20)
				}
				return TableHeaderStyle.Width(width - 20 - 3)
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 0 {
				style = style.Bold(true).Foreground(ColorAccent)
			}
			return style
		})

	sections = append(sections, summaryTable.String(), "")

	// 4. Diagnostics (Doctor Issues)
	if len(res.DoctorIssues) > 0 {
		warnBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarn).
			Padding(0, 1).
			Width(width - 2)

		var warnContent []string
		warnContent = append(warnContent, lipgloss.NewStyle().Bold(true).Foreground(ColorWarn).Render("⚠ Setup Incomplete / Warnings:"))
		for _, issue := range res.DoctorIssues {
			warnContent = append(warnContent, "  • "+issue)
		}
		warnContent = append(warnContent, "", "Run "+lipgloss.NewStyle().Foreground(ColorAccent).Render("loom doctor")+" for details.")

		sections = append(sections, warnBox.Render(strings.Join(warnContent, "\n")), "")
	}

	// 5. Next Steps
	if len(res.QuickstartCommands) > 0 {
		sections = append(sections, lipgloss.NewStyle().Bold(true).Render("Next Steps:"))
		for _, cmd := range res.QuickstartCommands {
			sections = append(sections, "  • "+lipgloss.NewStyle().Foreground(ColorAccent).Render(cmd))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
