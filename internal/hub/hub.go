// Package hub wires nodes, bindings, storage, and authorization into the
// single container a HubClient talks to, and serializes all mutation of the
// node graph behind one mutex so the broadcast/bind semantics documented on
// pubsub.BaseSource hold even though each connection runs on its own
// goroutine.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mhub-dev/mhub/internal/auth"
	"github.com/mhub-dev/mhub/internal/config"
	"github.com/mhub-dev/mhub/internal/node"
	"github.com/mhub-dev/mhub/internal/pubsub"
	"github.com/mhub-dev/mhub/internal/session"
	"github.com/mhub-dev/mhub/internal/storage"
)

// Hub owns every node, the storage handle, the rights table, and the
// registry of live Memory sessions.
type Hub struct {
	mu sync.Mutex

	nodes        map[string]node.Node
	nodeTypes    map[string]string
	sources      map[string]pubsub.Source
	destinations map[string]pubsub.Destination

	storage storage.Storage
	authn   auth.Authenticator
	rights  *auth.Rights

	sessions *session.Registry
	log      *slog.Logger
}

// New builds a Hub from cfg: opens storage, constructs every configured
// node, wires startup bindings, and builds the authenticator/rights table.
// Node construction errors and duplicate names are fatal, matching §7.
func New(cfg *config.Config, log *slog.Logger) (*Hub, error) {
	if log == nil {
		log = slog.Default()
	}
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Root, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("hub: open storage: %w", err)
	}
	throttle := cfg.Storage.Throttle.Duration
	if throttle > 0 {
		store = storage.NewThrottled(store, throttle, func(key string, err error) {
			log.Error("throttled persist failed, terminating", "node", key, "error", err)
			os.Exit(1)
		})
	}

	h := &Hub{
		nodes:        make(map[string]node.Node),
		nodeTypes:    make(map[string]string),
		sources:      make(map[string]pubsub.Source),
		destinations: make(map[string]pubsub.Destination),
		storage:      store,
		sessions:     session.NewRegistry(),
		log:          log,
	}

	for name, spec := range cfg.Nodes {
		n, err := buildNode(name, spec, log)
		if err != nil {
			return nil, fmt.Errorf("hub: node %q: %w", name, err)
		}
		if err := h.register(name, n); err != nil {
			return nil, err
		}
		h.nodeTypes[name] = spec.Type
	}

	ctx := context.Background()
	for _, n := range h.nodes {
		if init, ok := n.(node.Initializer); ok {
			if err := init.Init(ctx, h.storage); err != nil {
				return nil, fmt.Errorf("hub: init node %q: %w", n.Name(), err)
			}
		}
	}

	for _, b := range cfg.Bindings {
		src, ok := h.sources[b.From]
		if !ok {
			return nil, fmt.Errorf("hub: binding from unknown source %q", b.From)
		}
		dest, ok := h.destinations[b.To]
		if !ok {
			return nil, fmt.Errorf("hub: binding to unknown destination %q", b.To)
		}
		if err := src.Bind(dest, b.Pattern); err != nil {
			return nil, fmt.Errorf("hub: binding %s->%s: %w", b.From, b.To, err)
		}
	}

	authn, rights, err := buildAuth(cfg)
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	h.authn = authn
	h.rights = rights

	return h, nil
}

func (h *Hub) register(name string, n node.Node) error {
	if _, exists := h.nodes[name]; exists {
		return fmt.Errorf("hub: duplicate node name %q", name)
	}
	h.nodes[name] = n
	if src, ok := n.(pubsub.Source); ok {
		h.sources[name] = src
	}
	if dest, ok := n.(pubsub.Destination); ok {
		h.destinations[name] = dest
	}
	return nil
}

func buildAuth(cfg *config.Config) (auth.Authenticator, *auth.Rights, error) {
	anyConfigured := cfg.Users != nil || cfg.Rights != nil
	creds := make(map[string]string, len(cfg.Users))
	for user, pw := range cfg.Users {
		creds[user] = pw
	}
	authn, err := auth.NewMixedAuthenticator(creds)
	if err != nil {
		return nil, nil, fmt.Errorf("build authenticator: %w", err)
	}
	rights := auth.NewRights(cfg.Rights, anyConfigured)
	return authn, rights, nil
}

// Lock serializes one HubClient command's execution against the rest of the
// node graph. Callers must Unlock when done.
func (h *Hub) Lock()   { h.mu.Lock() }
func (h *Hub) Unlock() { h.mu.Unlock() }

// Authenticate checks username/password against the configured
// authenticator.
func (h *Hub) Authenticate(ctx context.Context, username, password string) bool {
	return h.authn.Authenticate(ctx, username, password)
}

// Authorize resolves the Authorizer for username, fixed for the lifetime of
// the connection per §4.9.
func (h *Hub) Authorize(username string) *auth.Authorizer {
	return h.rights.Resolve(username)
}

// AuthRequired reports whether any users or rights were configured at all.
// When false, a connection may act anonymously without ever sending login.
func (h *Hub) AuthRequired() bool {
	return h.rights.AuthRequired()
}

// Source looks up a Source node by name.
func (h *Hub) Source(name string) (pubsub.Source, bool) {
	s, ok := h.sources[name]
	return s, ok
}

// Destination looks up a Destination node by name.
func (h *Hub) Destination(name string) (pubsub.Destination, bool) {
	d, ok := h.destinations[name]
	return d, ok
}

// HasNode reports whether any node (Source, Destination, or neither) is
// registered under name.
func (h *Hub) HasNode(name string) bool {
	_, ok := h.nodes[name]
	return ok
}

// Sessions returns the registry of live Memory sessions.
func (h *Hub) Sessions() *session.Registry { return h.sessions }

// NodeStats summarizes one node for an operator-facing status view.
type NodeStats struct {
	Name string
	Type string
}

// Stats is a point-in-time snapshot of the hub's node graph and live
// sessions, used by the stats dashboard.
type Stats struct {
	Nodes    []NodeStats
	Sessions []session.Info
}

// Stats takes the hub lock and returns a snapshot of every node and live
// Memory session.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	nodes := make([]NodeStats, 0, len(h.nodes))
	for name := range h.nodes {
		nodes = append(nodes, NodeStats{Name: name, Type: h.nodeTypes[name]})
	}
	return Stats{Nodes: nodes, Sessions: h.sessions.Snapshot()}
}

// Close shuts down storage.
func (h *Hub) Close() error { return h.storage.Close() }

func buildNode(name string, spec config.NodeSpec, log *slog.Logger) (node.Node, error) {
	switch spec.Type {
	case "Exchange":
		return node.NewExchange(name), nil
	case "Queue":
		opts := node.QueueOptions{
			Capacity: int(optFloat(spec.Options, "capacity", 0)),
			Pattern:  spec.Options["pattern"],
			Persist:  optBool(spec.Options, "persist"),
		}
		return node.NewQueue(name, opts, log)
	case "HeaderStore":
		return node.NewHeaderStore(name, optBool(spec.Options, "persist"), log), nil
	case "TopicStore":
		return node.NewTopicStore(name, optBool(spec.Options, "persist"), log), nil
	case "ConsoleDestination":
		return node.NewConsoleDestination(name, log), nil
	case "PingResponder":
		return node.NewPingResponder(name), nil
	case "TestSource":
		interval, _ := optDuration(spec.Options, "interval")
		return node.NewTestSource(name, node.TestSourceOptions{
			Topic:    optString(spec.Options, "topic"),
			Interval: interval,
		}), nil
	default:
		return nil, fmt.Errorf("unknown node type %q", spec.Type)
	}
}

func optFloat(opts map[string]any, key string, def float64) float64 {
	if v, ok := opts[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

func optBool(opts map[string]any, key string) bool {
	if v, ok := opts[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func optString(opts map[string]any, key string) string {
	if v, ok := opts[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func optDuration(opts map[string]any, key string) (time.Duration, error) {
	v, ok := opts[key]
	if !ok {
		return 0, nil
	}
	switch val := v.(type) {
	case string:
		return time.ParseDuration(val)
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("option %q: invalid duration %v", key, v)
	}
}
