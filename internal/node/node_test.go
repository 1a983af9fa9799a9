package node

import (
	"context"
	"testing"

	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/pubsub"
	"github.com/mhub-dev/mhub/internal/storage"
)

func collect() (*[]message.Message, pubsub.Destination) {
	var got []message.Message
	return &got, pubsub.DestinationFunc(func(m message.Message) { got = append(got, m) })
}

func TestQueueBuffersAndReplaysOnBind(t *testing.T) {
	q, err := NewQueue("q", QueueOptions{Capacity: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	q.Send(message.New("a"))
	q.Send(message.New("b"))
	q.Send(message.New("c")) // trims "a"

	got, dest := collect()
	if err := q.Bind(dest, nil); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 2 || (*got)[0].Topic != "b" || (*got)[1].Topic != "c" {
		t.Fatalf("expected replay of [b c], got %v", *got)
	}
}

func TestQueueReplayRespectsPattern(t *testing.T) {
	q, err := NewQueue("q", QueueOptions{Capacity: 10}, nil)
	if err != nil {
		t.Fatal(err)
	}
	q.Send(message.New("foo/a"))
	q.Send(message.New("bar/a"))

	got, dest := collect()
	if err := q.Bind(dest, "foo/*"); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 1 || (*got)[0].Topic != "foo/a" {
		t.Fatalf("expected only foo/a replayed, got %v", *got)
	}
}

func TestQueuePersistenceRoundTrip(t *testing.T) {
	store, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	q1, _ := NewQueue("q", QueueOptions{Capacity: 5, Persist: true}, nil)
	if err := q1.Init(ctx, store); err != nil {
		t.Fatal(err)
	}
	q1.Send(message.New("a"))
	q1.Send(message.New("b"))

	q2, _ := NewQueue("q", QueueOptions{Capacity: 5, Persist: true}, nil)
	if err := q2.Init(ctx, store); err != nil {
		t.Fatal(err)
	}
	got, dest := collect()
	if err := q2.Bind(dest, nil); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 2 {
		t.Fatalf("expected reloaded buffer with 2 entries, got %v", *got)
	}
}

func TestHeaderStoreKeepAndDelete(t *testing.T) {
	h := NewHeaderStore("h", false, nil)
	h.Send(message.New("a").WithHeaders(message.Headers{"keep": true}))
	h.Send(message.New("b").WithHeaders(message.Headers{"keep": true}))
	h.Send(message.New("a").WithHeaders(message.Headers{"keep": true})) // re-insert "a" at tail

	got, dest := collect()
	if err := h.Bind(dest, nil); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 2 || (*got)[0].Topic != "b" || (*got)[1].Topic != "a" {
		t.Fatalf("expected replay [b a] (newest-insertion order), got %v", *got)
	}
}

func TestHeaderStoreKeepFalseDeletes(t *testing.T) {
	h := NewHeaderStore("h", false, nil)
	h.Send(message.New("a").WithHeaders(message.Headers{"keep": true}))
	h.Send(message.New("a").WithHeaders(message.Headers{"keep": false}))

	got, dest := collect()
	if err := h.Bind(dest, nil); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 0 {
		t.Fatalf("expected no replay after delete, got %v", *got)
	}
}

func TestHeaderStoreAbsentHeaderLeavesStateUnchanged(t *testing.T) {
	h := NewHeaderStore("h", false, nil)
	h.Send(message.New("a").WithHeaders(message.Headers{"keep": true}))
	h.Send(message.New("a")) // no keep header: broadcast only, no state change

	got, dest := collect()
	if err := h.Bind(dest, nil); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 1 {
		t.Fatalf("expected stored entry to remain, got %v", *got)
	}
}

func TestTopicStoreDataPresentReplacesAbsentDeletes(t *testing.T) {
	ts := NewTopicStore("t", false, nil)
	ts.Send(message.New("a").WithData(1))
	ts.Send(message.New("b").WithData(2))
	ts.Send(message.New("a")) // no data: delete

	got, dest := collect()
	if err := ts.Bind(dest, nil); err != nil {
		t.Fatal(err)
	}
	if len(*got) != 1 || (*got)[0].Topic != "b" {
		t.Fatalf("expected only b to remain, got %v", *got)
	}
}

func TestPingResponderRespondsOnlyToPing(t *testing.T) {
	p := NewPingResponder("p")
	got, dest := collect()
	_ = p.Bind(dest, nil)

	p.Send(message.New("ping"))
	p.Send(message.New("other"))

	if len(*got) != 1 || (*got)[0].Topic != "pong" {
		t.Fatalf("expected exactly one pong, got %v", *got)
	}
}
