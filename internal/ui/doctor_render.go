package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Doctor report styles
	reportBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMuted).
		Padding(0, 1).
		Margin(1, 0)

	reportTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent)

	reportContextStyle = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(ColorMuted).
		Padding(0, 0).
		MarginTop(0)
)

// DoctorCheck is one diagnostic result inside the doctor report.
type DoctorCheck struct {
	Name   string
	Status string // pass, warn, fail
	Detail string
}

// DoctorViewModel holds data for rendering the doctor report box
type DoctorViewModel struct {
	DataDir string
	Checks  []DoctorCheck
	Hints   []string
}

// checkIcon maps a check status to its colored glyph.
func checkIcon(status string) string {
	switch status {
	case "pass":
		return RenderPass(IconPass)
	case "warn":
		return RenderWarn(IconWarn)
	default:
		return RenderFail(IconFail)
	}
}

// RenderDoctorReport renders the doctor check results as a bordered box.
func RenderDoctorReport(vm DoctorViewModel) string {
	var sections []string

	// 1. Header: 🩺 Doctor: <data dir>
	header := fmt.Sprintf("🩺 Doctor: %s", vm.DataDir)
	sections = append(sections, reportTitleStyle.Render(header))

	// 2. Check lines
	var lines []string
	for _, c := range vm.Checks {
		line := fmt.Sprintf("%s %s", checkIcon(c.Status), c.Name)
		if c.Detail != "" {
			line += " " + RenderMuted(c.Detail)
		}
		lines = append(lines, line)
	}

	// 3. Hints
	if len(vm.Hints) > 0 {
		lines = append(lines, "")
		for _, h := range vm.Hints {
			lines = append(lines, "💡 "+h)
		}
	}

	if len(lines) > 0 {
		sections = append(sections, reportContextStyle.Render(strings.Join(lines, "\n")))
	}

	return reportBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}
