package node

import (
	"log/slog"

	"github.com/mhub-dev/mhub/internal/message"
)

// ConsoleDestination is a Destination-only node that logs a formatted
// rendering of each message it receives via the shared structured logger,
// in place of the reference implementation's stdout console.
type ConsoleDestination struct {
	name string
	log  *slog.Logger
}

// NewConsoleDestination returns a named ConsoleDestination.
func NewConsoleDestination(name string, log *slog.Logger) *ConsoleDestination {
	if log == nil {
		log = slog.Default()
	}
	return &ConsoleDestination{name: name, log: log.With("node", name, "type", "ConsoleDestination")}
}

func (c *ConsoleDestination) Name() string { return c.name }

// Send renders m to the log.
func (c *ConsoleDestination) Send(m message.Message) {
	attrs := []any{"topic", m.Topic}
	if m.HasData {
		attrs = append(attrs, "data", m.Data)
	}
	if len(m.Headers) > 0 {
		attrs = append(attrs, "headers", m.Headers)
	}
	c.log.Info("message", attrs...)
}
