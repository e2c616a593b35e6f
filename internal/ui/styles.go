package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Shared palette. ANSI-256 values chosen to stay readable on both light
// and dark backgrounds.
var (
	ColorAccent = lipgloss.Color("39")  // blue, headers and identifiers
	ColorPass   = lipgloss.Color("42")  // green
	ColorWarn   = lipgloss.Color("214") // orange
	ColorFail   = lipgloss.Color("196") // red
	ColorMuted  = lipgloss.Color("241") // gray, borders and secondary text
)

// Status glyphs. Plain text, not emoji, so they survive LOOM_NO_EMOJI.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
)

// RenderPass renders s in the success color.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders s in the warning color.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders s in the failure color.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders s in the muted color.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// ConfigureColor aligns lipgloss with the user's color preferences. When
// color is disabled every style in this package degrades to plain text,
// which keeps piped output clean. Called once from the root command before
// anything renders.
func ConfigureColor() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	// Explicit profile so CLICOLOR_FORCE overrides lipgloss's TTY detection.
	lipgloss.SetColorProfile(termenv.ColorProfile())
}
