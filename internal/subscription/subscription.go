// Package subscription implements the sliding-window delivery engine: a
// per-subscription inbound buffer, sequence numbers, and ack-based release.
package subscription

import (
	"fmt"

	"github.com/mhub-dev/mhub/internal/match"
	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/pubsub"
)

// InfiniteWindow denotes an auto-ack subscription: every buffered message
// is delivered immediately and the subscription re-acks itself.
const InfiniteWindow int64 = -1

// DeliverFunc is invoked once per message released by flush, carrying the
// message and its per-subscription sequence number.
type DeliverFunc func(m message.Message, seq int64)

// Subscription is a delivery channel from zero-or-more bound sources into
// one client, under sliding-window flow control. Not safe for concurrent
// use: like the rest of the node graph, a Subscription is only ever
// touched while the Hub's lock is held.
type Subscription struct {
	ID string

	first           int64
	inflight        int64
	window          int64
	announcedWindow int64
	buffer          []message.Message

	deliver DeliverFunc
	sources map[string]*sourceBinding
}

type sourceBinding struct {
	source   pubsub.Source
	node     *subscriptionNode
	patterns []patternEntry
}

type patternEntry struct {
	spec any
	pred match.Predicate
}

// subscriptionNode is the per-source Destination a Subscription binds
// through. On receive it re-checks the authorization predicate before
// handing the message to the owning Subscription's Add.
type subscriptionNode struct {
	sub      *Subscription
	authPred match.Predicate
}

func (n *subscriptionNode) Send(m message.Message) {
	if !n.authPred(m.Topic) {
		return
	}
	n.sub.Add(m)
}

// New returns a Subscription with the given id and initial window
// (InfiniteWindow for auto-ack, a non-negative integer otherwise). deliver
// is invoked by Flush whenever a message is released.
func New(id string, window int64, deliver DeliverFunc) *Subscription {
	return &Subscription{
		ID:      id,
		window:  window,
		deliver: deliver,
		sources: make(map[string]*sourceBinding),
	}
}

// First returns the count of messages acked so far.
func (s *Subscription) First() int64 { return s.first }

// Inflight returns the count of messages delivered but not yet acked.
func (s *Subscription) Inflight() int64 { return s.inflight }

// Window returns the current delivery window.
func (s *Subscription) Window() int64 { return s.window }

// AnnouncedWindow returns the last window value reported to the client.
func (s *Subscription) AnnouncedWindow() int64 { return s.announcedWindow }

// SetAnnouncedWindow records the window value just reported to the client.
func (s *Subscription) SetAnnouncedWindow(w int64) { s.announcedWindow = w }

// SetDeliver rebinds the delivery callback, used when a Memory session is
// reattached to a new connection.
func (s *Subscription) SetDeliver(deliver DeliverFunc) { s.deliver = deliver }

// BufferLen returns the number of messages currently buffered, including
// those inflight.
func (s *Subscription) BufferLen() int { return len(s.buffer) }

// Add appends m to the buffer and attempts to flush.
func (s *Subscription) Add(m message.Message) {
	s.buffer = append(s.buffer, m)
	s.Flush()
}

// Flush releases buffered messages to deliver while the window allows,
// emitting (message, seq) for each. For an infinite window, every released
// message immediately auto-acks: first advances, inflight resets to 0, and
// the buffer is drained.
func (s *Subscription) Flush() {
	for int64(len(s.buffer)) > s.inflight {
		if s.window != InfiniteWindow && s.inflight >= s.window {
			break
		}
		m := s.buffer[s.inflight]
		s.inflight++
		seq := s.first + s.inflight
		if s.deliver != nil {
			s.deliver(m, seq)
		}
		if s.window == InfiniteWindow {
			s.first += s.inflight
			s.inflight = 0
			s.buffer = nil
		}
	}
}

// Ack releases buffer entries up to and including sequence upTo
// (first <= upTo <= first+len(buffer)) and optionally changes the window.
// Acking a sequence older than first is rejected; acking exactly first is a
// no-op except that the window may still change. Window reductions never
// cancel already-inflight messages.
func (s *Subscription) Ack(upTo int64, newWindow *int64) error {
	if upTo < s.first || upTo > s.first+int64(len(s.buffer)) {
		return fmt.Errorf("subscription: ack %d out of range [%d, %d]", upTo, s.first, s.first+int64(len(s.buffer)))
	}
	k := upTo - s.first
	s.buffer = s.buffer[k:]
	s.first += k
	s.inflight -= k
	if s.inflight < 0 {
		s.inflight = 0
	}
	if newWindow != nil {
		s.window = *newWindow
	}
	s.Flush()
	return nil
}

// Connect resets inflight and window to 0 while preserving first and the
// buffer, called when a Memory session's client reattaches. This causes
// previously inflight messages to be resent from the next ack with a
// non-zero window, trading duplicate delivery for at-least-once since the
// client's last remembered ack may be anywhere in [first, first+prevInflight].
func (s *Subscription) Connect() {
	s.inflight = 0
	s.window = 0
}

// Subscribe adds pattern to the binding on source (named sourceName for
// bookkeeping), ANDed with authPred so delivery always respects the
// resolved authorization even if patterns are later added/removed.
func (s *Subscription) Subscribe(sourceName string, source pubsub.Source, patternSpec any, authPred match.Predicate) error {
	pred, err := match.Compile(patternSpec)
	if err != nil {
		return err
	}
	b, ok := s.sources[sourceName]
	if !ok {
		b = &sourceBinding{source: source, node: &subscriptionNode{sub: s, authPred: authPred}}
		s.sources[sourceName] = b
	}
	for _, p := range b.patterns {
		if specEqual(p.spec, patternSpec) {
			return nil // already subscribed with this exact pattern
		}
	}
	combined := andPredicate(authPred, pred)
	b.patterns = append(b.patterns, patternEntry{spec: patternSpec, pred: combined})
	return b.rebind()
}

// Unsubscribe removes pattern from the binding on sourceName, or every
// pattern if patternSpec is nil, destroying the binding once empty.
func (s *Subscription) Unsubscribe(sourceName string, patternSpec any) {
	b, ok := s.sources[sourceName]
	if !ok {
		return
	}
	if patternSpec == nil {
		b.source.Unbind(b.node, nil)
		delete(s.sources, sourceName)
		return
	}
	for i, p := range b.patterns {
		if specEqual(p.spec, patternSpec) {
			b.patterns = append(b.patterns[:i], b.patterns[i+1:]...)
			break
		}
	}
	if len(b.patterns) == 0 {
		b.source.Unbind(b.node, nil)
		delete(s.sources, sourceName)
		return
	}
	_ = b.rebind()
}

// Sources reports the names of sources this Subscription is currently
// bound to, with each source's raw pattern specs (for `subscriptionack`'s
// "current bindings" view).
func (s *Subscription) Sources() map[string][]any {
	out := make(map[string][]any, len(s.sources))
	for name, b := range s.sources {
		specs := make([]any, len(b.patterns))
		for i, p := range b.patterns {
			specs[i] = p.spec
		}
		out[name] = specs
	}
	return out
}

// SetBindings reconciles the subscription's sources against the requested
// set: sources present in bindings but not currently subscribed are added;
// sources currently subscribed but absent from bindings are destroyed.
// auth supplies the resolved SubscribeMatcher for every named source.
func (s *Subscription) SetBindings(bindings map[string]any, sources map[string]pubsub.Source, auth map[string]match.Predicate) error {
	for name := range s.sources {
		if _, keep := bindings[name]; !keep {
			s.Unsubscribe(name, nil)
		}
	}
	for name, patternSpec := range bindings {
		if err := s.Subscribe(name, sources[name], patternSpec, auth[name]); err != nil {
			return err
		}
	}
	return nil
}

// Destroy unbinds every source this subscription holds.
func (s *Subscription) Destroy() {
	for name := range s.sources {
		s.Unsubscribe(name, nil)
	}
}

func (b *sourceBinding) rebind() error {
	b.source.Unbind(b.node, nil)
	for _, p := range b.patterns {
		if err := b.source.Bind(b.node, p.pred); err != nil {
			return err
		}
	}
	return nil
}

func andPredicate(a, b match.Predicate) match.Predicate {
	return func(topic string) bool { return a(topic) && b(topic) }
}

func specEqual(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == nil && b == nil
}
