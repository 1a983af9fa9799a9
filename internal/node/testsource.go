package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/pubsub"
)

// TestSource is an opt-in demo node (off by default): a Source-only node
// that synthesizes a monotonically increasing counter message on a fixed
// topic every interval, useful for exercising Queue/HeaderStore/TopicStore
// replay in integration tests and demos without a real publisher.
type TestSource struct {
	*pubsub.BaseSource
	name     string
	topic    string
	interval time.Duration
	counter  atomic.Int64
}

// TestSourceOptions configures a TestSource at construction time.
type TestSourceOptions struct {
	Topic    string        // default "test"
	Interval time.Duration // default 1s
}

// NewTestSource returns a named TestSource. Call Run to start emitting.
func NewTestSource(name string, opts TestSourceOptions) *TestSource {
	topic := opts.Topic
	if topic == "" {
		topic = "test"
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &TestSource{
		BaseSource: pubsub.NewBaseSource(),
		name:       name,
		topic:      topic,
		interval:   interval,
	}
}

func (t *TestSource) Name() string { return t.name }

// Run emits one message per interval until ctx is canceled. Run does not
// broadcast itself: each tick is handed to the caller-supplied emit
// callback, which must call Broadcast while holding the Hub's lock.
func (t *TestSource) Run(ctx context.Context, emit func(message.Message)) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := t.counter.Add(1)
			emit(message.New(t.topic).WithData(fmt.Sprintf("%d", n)))
		}
	}
}
