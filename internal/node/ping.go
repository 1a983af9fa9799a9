package node

import (
	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/pubsub"
)

// PingResponder is an opt-in demo node (never created implicitly): a
// Source+Destination that, on receiving any message whose topic is "ping",
// broadcasts a "pong" message to whatever is bound to it. It exists so an
// operator can wire up a liveness check without running a full client.
type PingResponder struct {
	*pubsub.BaseSource
	name string
}

// NewPingResponder returns a named PingResponder.
func NewPingResponder(name string) *PingResponder {
	return &PingResponder{BaseSource: pubsub.NewBaseSource(), name: name}
}

func (p *PingResponder) Name() string { return p.name }

// Send responds to a "ping" topic by broadcasting "pong"; any other topic
// is ignored.
func (p *PingResponder) Send(m message.Message) {
	if m.Topic != "ping" {
		return
	}
	p.Broadcast(message.New("pong"))
}
