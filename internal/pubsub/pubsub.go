// Package pubsub defines the Source/Destination capability contracts and
// the BaseSource binding fabric that every routing node embeds.
package pubsub

import "github.com/mhub-dev/mhub/internal/message"

// Destination is something a message can be delivered to: another node, or
// a per-subscription sink inside the subscription engine.
type Destination interface {
	// Send delivers m. Implementations must not block the broadcasting
	// Source for long and must not let an internal failure propagate to
	// the caller — see BaseSource.Broadcast's fire-and-forget contract.
	Send(m message.Message)
}

// Source is something a Destination can bind to in order to receive
// messages matching a pattern.
type Source interface {
	Bind(dest Destination, pattern any) error
	Unbind(dest Destination, pattern any)
}

// DestinationFunc adapts a plain function to the Destination interface.
type DestinationFunc func(message.Message)

// Send implements Destination.
func (f DestinationFunc) Send(m message.Message) { f(m) }
