// Package node implements the broker's built-in node types: Exchange,
// Queue, HeaderStore, TopicStore, ConsoleDestination, and the opt-in
// PingResponder/TestSource demo nodes.
package node

import (
	"context"
	"log/slog"
	"os"

	"github.com/mhub-dev/mhub/internal/storage"
)

// Node is anything the Hub owns by name. Most nodes are also a Source
// and/or a pubsub.Destination.
type Node interface {
	Name() string
}

// Initializer is implemented by nodes that load persisted state from
// storage when the hub starts up.
type Initializer interface {
	Init(ctx context.Context, store storage.Storage) error
}

// persistentEnvelope is the on-disk shape every persistent node wraps its
// payload in, so a version bump can be detected and the file ignored
// rather than misinterpreted.
type persistentEnvelope struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
}

// fatalPersistFailure logs a storage save failure for a persistent node and
// terminates the process: a persistent node that can no longer durably
// record its state must not keep serving traffic as if nothing happened.
func fatalPersistFailure(log *slog.Logger, node string, err error) {
	log.Error("persist failed, terminating", "node", node, "error", err)
	os.Exit(1)
}
