// Package dashboard implements the "stats" subcommand's live terminal view
// of a running broker: node list, live Memory sessions, and their
// subscription counts, refreshed on a ticker.
package dashboard

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorSubtle  = lipgloss.Color("#9CA3AF")
	colorMuted   = lipgloss.Color("#6B7280")
	colorSuccess = lipgloss.Color("#10B981")

	title = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).MarginBottom(1)

	subtitle = lipgloss.NewStyle().Bold(true).Foreground(colorSubtle)

	dimmed = lipgloss.NewStyle().Foreground(colorMuted)

	attachedDot = lipgloss.NewStyle().Foreground(colorSuccess).Render("●")
	idleDot     = lipgloss.NewStyle().Foreground(colorMuted).Render("○")

	panelBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted)

	help = lipgloss.NewStyle().Foreground(colorMuted)
)
