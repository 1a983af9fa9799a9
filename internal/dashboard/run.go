package dashboard

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mhub-dev/mhub/internal/hub"
)

// Run displays the live stats dashboard for h until the user quits (q or
// ctrl+c) or ctx is cancelled. Same-process mode: no IPC, it polls h.Stats()
// directly on a ticker since the dashboard always runs alongside the
// broker's own listeners.
func Run(ctx context.Context, h *hub.Hub) error {
	m := NewModel(h.Stats())
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.Quit()
				return
			case <-ticker.C:
				p.Send(StatsMsg{Stats: h.Stats()})
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
