// Package session implements the two session kinds a HubClient can hold:
// Volatile sessions that vanish with the connection, and named Memory
// sessions that persist their subscriptions' buffers and bindings across
// reconnects. A session owns zero-or-more Subscriptions, each identified by
// a client-chosen id.
package session

import (
	"github.com/mhub-dev/mhub/internal/subscription"
)

// Kind distinguishes a Volatile session (dies with the connection) from a
// Memory session (survives, identified by name, reusable on reconnect).
type Kind int

const (
	Volatile Kind = iota
	Memory
)

func (k Kind) String() string {
	if k == Memory {
		return "memory"
	}
	return "volatile"
}

// Holder identifies the HubClient currently attached to a session, so a
// reconnect under the same name can detect and evict the previous holder.
type Holder interface {
	// Detach is called on the previous holder when a new connection takes
	// over its named session. The holder must stop delivering further
	// messages and treat its own session reference as dead.
	Detach()
}

// Session owns a set of named Subscriptions. For Memory sessions, it
// survives the disconnection of whatever HubClient is currently attached.
type Session struct {
	Kind Kind
	Name string // empty for Volatile, the client-chosen name for Memory

	subs   map[string]*subscription.Subscription
	holder Holder
}

// New creates an empty session of the given kind.
func New(kind Kind, name string) *Session {
	return &Session{Kind: kind, Name: name, subs: make(map[string]*subscription.Subscription)}
}

// GetOrCreateSubscription returns the subscription named id, creating one
// with the given initial window and deliver callback if it doesn't exist.
func (s *Session) GetOrCreateSubscription(id string, window int64, deliver subscription.DeliverFunc) (sub *subscription.Subscription, created bool) {
	if existing, ok := s.subs[id]; ok {
		return existing, false
	}
	sub = subscription.New(id, window, deliver)
	s.subs[id] = sub
	return sub, true
}

// Subscription returns the named subscription, if any.
func (s *Session) Subscription(id string) (*subscription.Subscription, bool) {
	sub, ok := s.subs[id]
	return sub, ok
}

// SubscriptionIDs reports every subscription id this session currently
// owns (unordered; callers needing stable output should sort).
func (s *Session) SubscriptionIDs() []string {
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	return ids
}

// SetSubscriptions reconciles this session's subscription set against ids:
// subscriptions not named in ids are destroyed (releasing their source
// bindings and buffers), and subscriptions named in ids that don't exist
// yet are created with an infinite window via makeDeliver. Subscriptions
// already present in both the session and ids are left untouched.
func (s *Session) SetSubscriptions(ids []string, makeDeliver func(id string) subscription.DeliverFunc) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	for id, sub := range s.subs {
		if _, ok := keep[id]; !ok {
			sub.Destroy()
			delete(s.subs, id)
		}
	}
	for _, id := range ids {
		if _, ok := s.subs[id]; !ok {
			s.subs[id] = subscription.New(id, subscription.InfiniteWindow, makeDeliver(id))
		}
	}
}

// Attach binds holder as the current owner of this session, forcibly
// detaching and evicting whatever holder was previously attached (the
// "reconnect steals the session" rule: at most one live connection may
// hold a given named session at a time).
func (s *Session) Attach(holder Holder) {
	if s.holder != nil && s.holder != holder {
		s.holder.Detach()
	}
	s.holder = holder
}

// Reconnect reattaches holder to an existing Memory session, evicting any
// previous holder, rebinding every subscription's deliver callback via
// makeDeliver, and resetting each subscription's inflight/window so
// delivery resumes from its remembered `first` (the resolved "resend
// everything from first" open question).
func (s *Session) Reconnect(holder Holder, makeDeliver func(id string) subscription.DeliverFunc) {
	s.Attach(holder)
	for id, sub := range s.subs {
		sub.SetDeliver(makeDeliver(id))
		sub.Connect()
	}
}

// Detach clears the current holder without destroying the session (used
// when a Memory session's connection drops but the session itself should
// persist for a future reconnect).
func (s *Session) Detach(holder Holder) {
	if s.holder == holder {
		s.holder = nil
	}
}

// Destroy releases every source binding held by every subscription this
// session owns. Call when a Volatile session's connection closes, or a
// Memory session is explicitly torn down by its client.
func (s *Session) Destroy() {
	for _, sub := range s.subs {
		sub.Destroy()
	}
}

// Registry holds every live Memory session, keyed by (username, name) so
// two different users may each have a session named "default" without
// colliding.
type Registry struct {
	byKey map[key]*Session
}

type key struct {
	username string
	name     string
}

// NewRegistry returns an empty Memory-session registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[key]*Session)}
}

// GetOrCreate returns the existing Memory session for (username, name), or
// creates an empty one if none exists yet.
func (r *Registry) GetOrCreate(username, name string) (s *Session, created bool) {
	k := key{username: username, name: name}
	if existing, ok := r.byKey[k]; ok {
		return existing, false
	}
	s = New(Memory, name)
	r.byKey[k] = s
	return s, true
}

// Get returns the existing Memory session for (username, name), if any.
func (r *Registry) Get(username, name string) (*Session, bool) {
	s, ok := r.byKey[key{username: username, name: name}]
	return s, ok
}

// Info summarizes one live Memory session for display purposes.
type Info struct {
	Username      string
	Name          string
	Subscriptions int
	Attached      bool
}

// Snapshot reports a point-in-time summary of every live Memory session,
// for use by an operator-facing status view.
func (r *Registry) Snapshot() []Info {
	out := make([]Info, 0, len(r.byKey))
	for k, s := range r.byKey {
		out = append(out, Info{
			Username:      k.username,
			Name:          k.name,
			Subscriptions: len(s.subs),
			Attached:      s.holder != nil,
		})
	}
	return out
}

// Delete removes and destroys the Memory session for (username, name).
func (r *Registry) Delete(username, name string) {
	k := key{username: username, name: name}
	if s, ok := r.byKey[k]; ok {
		s.Destroy()
		delete(r.byKey, k)
	}
}
