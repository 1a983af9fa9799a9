package pubsub

import (
	"github.com/mhub-dev/mhub/internal/match"
	"github.com/mhub-dev/mhub/internal/message"
)

// binding holds the compiled predicates a single destination is bound
// under. Patterns are kept alongside their raw spec so Unbind can remove an
// exact pattern without recompiling.
type binding struct {
	dest     Destination
	patterns []boundPattern
}

type boundPattern struct {
	spec any
	pred match.Predicate
}

func (b *binding) matches(topic string) bool {
	for _, p := range b.patterns {
		if p.pred(topic) {
			return true
		}
	}
	return false
}

func (b *binding) indexOf(spec any) int {
	for i, p := range b.patterns {
		if specEqual(p.spec, spec) {
			return i
		}
	}
	return -1
}

func specEqual(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == nil && b == nil
}

// BaseSource is the binding fabric embedded by every Source node. It is not
// safe for concurrent use: like the rest of the node graph, it is only ever
// touched while the Hub's lock is held.
type BaseSource struct {
	order    []Destination // insertion order of bindings
	bindings map[Destination]*binding
}

// NewBaseSource returns an empty binding fabric.
func NewBaseSource() *BaseSource {
	return &BaseSource{bindings: make(map[Destination]*binding)}
}

// Bind adds pattern to dest's binding, creating the binding on first call.
// Adding the same pattern twice is a no-op.
func (s *BaseSource) Bind(dest Destination, pattern any) error {
	pred, err := match.Compile(pattern)
	if err != nil {
		return err
	}
	b, ok := s.bindings[dest]
	if !ok {
		b = &binding{dest: dest}
		s.bindings[dest] = b
		s.order = append(s.order, dest)
	}
	if b.indexOf(pattern) >= 0 {
		return nil
	}
	b.patterns = append(b.patterns, boundPattern{spec: pattern, pred: pred})
	return nil
}

// Unbind removes pattern from dest's binding (or every pattern, if pattern
// is nil), deleting the binding entirely once its pattern set is empty.
func (s *BaseSource) Unbind(dest Destination, pattern any) {
	b, ok := s.bindings[dest]
	if !ok {
		return
	}
	if pattern == nil {
		s.removeBinding(dest)
		return
	}
	if i := b.indexOf(pattern); i >= 0 {
		b.patterns = append(b.patterns[:i], b.patterns[i+1:]...)
	}
	if len(b.patterns) == 0 {
		s.removeBinding(dest)
	}
}

func (s *BaseSource) removeBinding(dest Destination) {
	delete(s.bindings, dest)
	for i, d := range s.order {
		if d == dest {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Bindings reports the destinations currently bound, in insertion order.
func (s *BaseSource) Bindings() []Destination {
	out := make([]Destination, len(s.order))
	copy(out, s.order)
	return out
}

// Broadcast delivers m to every destination with at least one matching
// pattern, exactly once each, in binding-insertion order. A destination's
// Send is fire-and-forget: a panic inside one destination is recovered and
// must not prevent delivery to the remaining destinations.
func (s *BaseSource) Broadcast(m message.Message) {
	for _, dest := range s.order {
		b := s.bindings[dest]
		if b == nil || !b.matches(m.Topic) {
			continue
		}
		deliver(b.dest, m)
	}
}

func deliver(dest Destination, m message.Message) {
	defer func() { _ = recover() }()
	dest.Send(m)
}
