package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// SearchResultItem represents a search result for rendering.
type SearchResultItem struct {
	Kind   string // prompt, entry, command
	ID     string
	When   string // pre-formatted relative time
	Title  string
	Reason string
}

// renderSingleTable renders a simple list into a 1-column table with a header
func renderSingleTable(title string, items []string, width int) string {
	if len(items) == 0 {
		return ""
	}

	rows := [][]string{}
	for i, item := range items {
		rows = append(rows, []string{fmt.Sprintf("%d. %s", i+1, item)})
	}

	return table.New().
		Headers(title).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		Width(width).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle.Width(width - 2)
			}
			return lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
		}).
		String()
}

// resultsTable renders search hits as KIND / ID / WHEN / TITLE rows.
func resultsTable(items []SearchResultItem, width int) string {
	maxTitleWidth := width - 44
	if maxTitleWidth < 10 {
		maxTitleWidth = 10
	}

	rows := [][]string{}
	for _, r := range items {
		title := r.Title
		if len(title) > maxTitleWidth {
			title = title[:maxTitleWidth-3] + "..."
		}
		rows = append(rows, []string{r.Kind, r.ID, r.When, title})
	}

	return table.New().
		Headers("KIND", "ID", "WHEN", "TITLE").
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		Width(width).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			switch col {
			case 0:
				style = style.Width(10).Foreground(ColorAccent)
			case 1:
				style = style.Width(14)
			case 2:
				style = style.Width(12).Foreground(ColorMuted)
			}
			return style
		}).
		String()
}

// RenderSearchResults renders the search header and result table.
func RenderSearchResults(query string, items []SearchResultItem, width int) string {
	var sections []string

	header := fmt.Sprintf("🔍 Search: %q", query)
	sections = append(sections, TableHeaderStyle.Render(header))
	sections = append(sections, "") // Spacer

	sections = append(sections, TableSuccessStyle.Render(fmt.Sprintf("  Found %d matches", len(items))))
	sections = append(sections, "") // Spacer
	sections = append(sections, resultsTable(items, width))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// RenderTypoCorrection renders the typo correction view
func RenderTypoCorrection(query, corrected string, items []SearchResultItem, width int) string {
	var sections []string

	header := fmt.Sprintf("🔍 Search: %q", query)
	sections = append(sections, TableHeaderStyle.Render(header))
	sections = append(sections, "") // Spacer

	sections = append(sections, TableWarningStyle.Render(fmt.Sprintf("  ⚠️  No exact matches. Did you mean: %s ⭐", corrected)))
	sections = append(sections, TableSuccessStyle.Render(fmt.Sprintf("  🔄 Auto-searching: %q...", corrected)))
	sections = append(sections, "") // Spacer

	if len(items) > 5 {
		items = items[:5] // Limit to 5 for typo preview
	}
	if len(items) > 0 {
		sections = append(sections, resultsTable(items, width))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// RenderNoResults renders the no results view
func RenderNoResults(query string, suggestions []string, width int) string {
	var sections []string

	header := fmt.Sprintf("🔍 Search: %q", query)
	sections = append(sections, TableHeaderStyle.Render(header))
	sections = append(sections, "") // Spacer

	sections = append(sections, TableWarningStyle.Render("  ⚠️  Nothing captured matches."))
	sections = append(sections, "") // Spacer

	if len(suggestions) > 0 {
		sections = append(sections, renderSingleTable("💡 Suggestions (Did you mean?)", suggestions, width))
	} else {
		sections = append(sections, TableHintStyle.Render("  Consider broadening your search or checking for related terms."))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
