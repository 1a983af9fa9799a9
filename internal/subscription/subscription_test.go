package subscription

import (
	"testing"

	"github.com/mhub-dev/mhub/internal/match"
	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/node"
)

func TestFlushRespectsFiniteWindow(t *testing.T) {
	var delivered []int64
	s := New("s1", 2, func(m message.Message, seq int64) { delivered = append(delivered, seq) })

	s.Add(message.New("a"))
	s.Add(message.New("b"))
	s.Add(message.New("c")) // held back, window full

	if len(delivered) != 2 || delivered[0] != 1 || delivered[1] != 2 {
		t.Fatalf("expected seq [1 2] delivered, got %v", delivered)
	}
	if s.BufferLen() != 3 {
		t.Fatalf("expected buffer to retain all 3 messages pending ack, got %d", s.BufferLen())
	}
}

func TestAckReleasesBufferAndUnblocksFlush(t *testing.T) {
	var delivered []int64
	s := New("s1", 1, func(m message.Message, seq int64) { delivered = append(delivered, seq) })

	s.Add(message.New("a"))
	s.Add(message.New("b"))
	if len(delivered) != 1 {
		t.Fatalf("expected only first message delivered under window 1, got %v", delivered)
	}

	if err := s.Ack(1, nil); err != nil {
		t.Fatal(err)
	}
	if len(delivered) != 2 || delivered[1] != 2 {
		t.Fatalf("expected ack to unblock delivery of seq 2, got %v", delivered)
	}
	if s.First() != 1 {
		t.Fatalf("expected first=1 after ack, got %d", s.First())
	}
}

func TestAckOutOfRangeRejected(t *testing.T) {
	s := New("s1", 5, func(message.Message, int64) {})
	s.Add(message.New("a"))
	if err := s.Ack(5, nil); err == nil {
		t.Fatal("expected error acking beyond buffer")
	}
	if err := s.Ack(-1, nil); err == nil {
		t.Fatal("expected error acking negative sequence")
	}
}

func TestAckCanChangeWindow(t *testing.T) {
	var delivered []int64
	s := New("s1", 1, func(m message.Message, seq int64) { delivered = append(delivered, seq) })
	s.Add(message.New("a"))
	s.Add(message.New("b"))
	s.Add(message.New("c"))

	newWindow := int64(5)
	if err := s.Ack(0, &newWindow); err != nil {
		t.Fatal(err)
	}
	if s.Window() != 5 {
		t.Fatalf("expected window updated to 5, got %d", s.Window())
	}
	if len(delivered) != 3 {
		t.Fatalf("expected widened window to flush remaining messages, got %v", delivered)
	}
}

func TestInfiniteWindowAutoAcks(t *testing.T) {
	var delivered []int64
	s := New("s1", InfiniteWindow, func(m message.Message, seq int64) { delivered = append(delivered, seq) })
	s.Add(message.New("a"))
	s.Add(message.New("b"))

	if len(delivered) != 2 || delivered[0] != 1 || delivered[1] != 2 {
		t.Fatalf("expected both delivered immediately, got %v", delivered)
	}
	if s.BufferLen() != 0 || s.First() != 2 || s.Inflight() != 0 {
		t.Fatalf("expected fully drained auto-acked state, got buffer=%d first=%d inflight=%d", s.BufferLen(), s.First(), s.Inflight())
	}
}

func TestConnectResetsInflightAndWindow(t *testing.T) {
	s := New("s1", 5, func(message.Message, int64) {})
	s.Add(message.New("a"))
	if s.Inflight() != 1 {
		t.Fatalf("expected 1 inflight before connect, got %d", s.Inflight())
	}
	s.Connect()
	if s.Inflight() != 0 || s.Window() != 0 {
		t.Fatalf("expected inflight and window reset by Connect, got inflight=%d window=%d", s.Inflight(), s.Window())
	}
	if s.BufferLen() != 1 {
		t.Fatalf("expected buffer preserved across Connect, got %d", s.BufferLen())
	}
}

func TestSubscribeDeliversOnlyMatchingAuthorizedTopics(t *testing.T) {
	ex := node.NewExchange("ex")
	var delivered []string
	s := New("s1", InfiniteWindow, func(m message.Message, seq int64) { delivered = append(delivered, m.Topic) })

	authPred, _ := match.Compile("foo/**")
	if err := s.Subscribe("ex", ex, "foo/*", authPred); err != nil {
		t.Fatal(err)
	}

	ex.Broadcast(message.New("foo/a"))
	ex.Broadcast(message.New("bar/a")) // denied by auth
	ex.Broadcast(message.New("foo/a/b")) // denied by client pattern (single segment)

	if len(delivered) != 1 || delivered[0] != "foo/a" {
		t.Fatalf("expected only foo/a delivered, got %v", delivered)
	}
}

func TestUnsubscribeRemovesBinding(t *testing.T) {
	ex := node.NewExchange("ex")
	var delivered []string
	s := New("s1", InfiniteWindow, func(m message.Message, seq int64) { delivered = append(delivered, m.Topic) })

	authPred, _ := match.Compile(nil)
	if err := s.Subscribe("ex", ex, nil, authPred); err != nil {
		t.Fatal(err)
	}
	s.Unsubscribe("ex", nil)
	ex.Broadcast(message.New("anything"))

	if len(delivered) != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %v", delivered)
	}
}

func TestUnsubscribeOneSourceKeepsOthers(t *testing.T) {
	exA := node.NewExchange("a")
	exB := node.NewExchange("b")
	var delivered []string
	s := New("s1", InfiniteWindow, func(m message.Message, seq int64) { delivered = append(delivered, m.Topic) })

	authPred, _ := match.Compile(nil)

	if err := s.Subscribe("a", exA, nil, authPred); err != nil {
		t.Fatal(err)
	}
	if err := s.Subscribe("b", exB, nil, authPred); err != nil {
		t.Fatal(err)
	}

	s.Unsubscribe("a", nil)
	exA.Broadcast(message.New("from-a"))
	exB.Broadcast(message.New("from-b"))

	if len(delivered) != 1 || delivered[0] != "from-b" {
		t.Fatalf("expected only from-b after removing a, got %v", delivered)
	}
}
