package node

import (
	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/pubsub"
)

// Exchange is a pure stateless forwarder: Source and Destination, where
// Send is exactly a broadcast to its bound destinations.
type Exchange struct {
	*pubsub.BaseSource
	name string
}

// NewExchange returns a named Exchange.
func NewExchange(name string) *Exchange {
	return &Exchange{BaseSource: pubsub.NewBaseSource(), name: name}
}

func (e *Exchange) Name() string { return e.name }

// Send broadcasts m to every bound destination.
func (e *Exchange) Send(m message.Message) {
	e.Broadcast(m)
}
