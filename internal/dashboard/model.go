package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mhub-dev/mhub/internal/hub"
	"github.com/mhub-dev/mhub/internal/session"
)

var quitKeys = key.NewBinding(key.WithKeys("ctrl+c", "q"))

// Model is the root dashboard TUI model: a header plus a nodes panel and a
// sessions panel, refreshed by StatsMsg ticks sent from Run.
type Model struct {
	stats    hub.Stats
	width    int
	quitting bool
}

// NewModel builds a dashboard model from an initial snapshot.
func NewModel(stats hub.Stats) Model {
	return Model{stats: stats}
}

// StatsMsg carries a fresh snapshot from the poller goroutine started by Run.
type StatsMsg struct {
	Stats hub.Stats
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			m.quitting = true
			return m, tea.Quit
		}
	case StatsMsg:
		m.stats = msg.Stats
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 72
	}

	header := title.Render("mhub — live stats")

	nodes := make([]hub.NodeStats, len(m.stats.Nodes))
	copy(nodes, m.stats.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	var nodeRows strings.Builder
	nodeRows.WriteString(subtitle.Render(fmt.Sprintf(" Nodes (%d)", len(nodes))) + "\n")
	if len(nodes) == 0 {
		nodeRows.WriteString(dimmed.Render("  none configured") + "\n")
	}
	for _, n := range nodes {
		nodeRows.WriteString(fmt.Sprintf("  %-24s %s\n", n.Name, dimmed.Render(n.Type)))
	}

	sessions := make([]session.Info, len(m.stats.Sessions))
	copy(sessions, m.stats.Sessions)
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Username != sessions[j].Username {
			return sessions[i].Username < sessions[j].Username
		}
		return sessions[i].Name < sessions[j].Name
	})

	var sessRows strings.Builder
	sessRows.WriteString(subtitle.Render(fmt.Sprintf(" Sessions (%d)", len(sessions))) + "\n")
	if len(sessions) == 0 {
		sessRows.WriteString(dimmed.Render("  none") + "\n")
	}
	for _, s := range sessions {
		dot := idleDot
		if s.Attached {
			dot = attachedDot
		}
		user := s.Username
		if user == "" {
			user = "(anonymous)"
		}
		sessRows.WriteString(fmt.Sprintf("  %s %-16s %-16s subs=%d\n", dot, user, s.Name, s.Subscriptions))
	}

	nodesPanel := panelBorder.Width(width - 2).Render(nodeRows.String())
	sessPanel := panelBorder.Width(width - 2).Render(sessRows.String())
	footer := help.Render("  q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, nodesPanel, sessPanel, footer)
}

// Quitting reports whether the user asked to quit.
func (m Model) Quitting() bool { return m.quitting }
