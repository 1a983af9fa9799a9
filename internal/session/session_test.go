package session

import (
	"testing"

	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/subscription"
)

type fakeHolder struct{ detached bool }

func (h *fakeHolder) Detach() { h.detached = true }

func noopDeliver(message.Message, int64) {}

func TestAttachEvictsPreviousHolder(t *testing.T) {
	s := New(Memory, "default")
	first := &fakeHolder{}
	second := &fakeHolder{}

	s.Attach(first)
	s.Attach(second)

	if !first.detached {
		t.Fatal("expected first holder to be detached when second attaches")
	}
	if second.detached {
		t.Fatal("second holder should not be detached")
	}
}

func TestReconnectRebindsAndResetsEverySubscription(t *testing.T) {
	s := New(Memory, "default")
	sub, _ := s.GetOrCreateSubscription("default", 1, noopDeliver)
	holder := &fakeHolder{}
	s.Attach(holder)
	sub.Add(message.New("a"))
	if sub.Inflight() != 1 {
		t.Fatalf("expected 1 inflight before reconnect, got %d", sub.Inflight())
	}

	var redelivered []string
	newHolder := &fakeHolder{}
	s.Reconnect(newHolder, func(id string) subscription.DeliverFunc {
		return func(m message.Message, seq int64) { redelivered = append(redelivered, m.Topic) }
	})

	if !holder.detached {
		t.Fatal("expected previous holder detached on reconnect")
	}
	if sub.Inflight() != 0 {
		t.Fatalf("expected inflight reset to 0 on reconnect, got %d", sub.Inflight())
	}
	if sub.BufferLen() != 1 {
		t.Fatalf("expected buffered message preserved across reconnect, got %d", sub.BufferLen())
	}
}

func TestGetOrCreateSubscriptionIsIdempotent(t *testing.T) {
	s := New(Volatile, "")
	sub1, created1 := s.GetOrCreateSubscription("default", subscription.InfiniteWindow, noopDeliver)
	sub2, created2 := s.GetOrCreateSubscription("default", subscription.InfiniteWindow, noopDeliver)
	if !created1 || created2 {
		t.Fatal("expected only the first call to create")
	}
	if sub1 != sub2 {
		t.Fatal("expected the same subscription returned on repeat lookup")
	}
}

func TestRegistryGetOrCreateScopedByUsername(t *testing.T) {
	r := NewRegistry()

	s1, created1 := r.GetOrCreate("alice", "default")
	if !created1 {
		t.Fatal("expected first GetOrCreate to create")
	}
	s2, created2 := r.GetOrCreate("bob", "default")
	if !created2 {
		t.Fatal("expected bob's session to be created independently of alice's")
	}
	if s1 == s2 {
		t.Fatal("expected distinct sessions per username even with the same name")
	}

	again, created3 := r.GetOrCreate("alice", "default")
	if created3 || again != s1 {
		t.Fatal("expected second GetOrCreate for alice to return the existing session")
	}
}

func TestRegistryDeleteDestroysSession(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("alice", "default")
	r.Delete("alice", "default")
	if _, ok := r.Get("alice", "default"); ok {
		t.Fatal("expected session to be removed from registry")
	}
}
