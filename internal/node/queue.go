package node

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mhub-dev/mhub/internal/match"
	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/pubsub"
	"github.com/mhub-dev/mhub/internal/storage"
)

const (
	queueTypeID      = "Queue"
	queuePersistVers = 1
	defaultQueueCap  = 10
)

// Queue is a Source+Destination with a bounded ring buffer: every sent
// message that matches an optional topic pattern is retained (oldest
// trimmed first) and replayed to any destination that newly binds.
type Queue struct {
	*pubsub.BaseSource
	name     string
	capacity int
	pattern  match.Predicate

	buffer []message.Message

	persist    bool
	store      storage.Storage
	log        *slog.Logger
}

// QueueOptions configures a Queue at construction time.
type QueueOptions struct {
	Capacity int    // default 10
	Pattern  any    // pattern spec retained messages must match; nil matches all
	Persist  bool   // whether to save/reload the buffer through storage
}

// NewQueue returns a named Queue.
func NewQueue(name string, opts QueueOptions, log *slog.Logger) (*Queue, error) {
	cap := opts.Capacity
	if cap <= 0 {
		cap = defaultQueueCap
	}
	pred, err := match.Compile(opts.Pattern)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		BaseSource: pubsub.NewBaseSource(),
		name:       name,
		capacity:   cap,
		pattern:    pred,
		persist:    opts.Persist,
		log:        log.With("node", name, "type", queueTypeID),
	}, nil
}

func (q *Queue) Name() string { return q.name }

// Init loads a previously persisted buffer, if this Queue is configured to
// persist and a matching file exists.
func (q *Queue) Init(ctx context.Context, store storage.Storage) error {
	q.store = store
	if !q.persist {
		return nil
	}
	data, found, err := store.Load(ctx, q.name)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var payload struct {
		persistentEnvelope
		Buffer []message.Message `json:"buffer"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		q.log.Warn("discarding unreadable persisted state", "error", err)
		return nil
	}
	if payload.Type != queueTypeID || payload.Version != queuePersistVers {
		q.log.Warn("discarding persisted state with mismatched type/version",
			"want_type", queueTypeID, "got_type", payload.Type,
			"want_version", queuePersistVers, "got_version", payload.Version)
		return nil
	}
	q.buffer = payload.Buffer
	return nil
}

// Send broadcasts m, then appends it to the ring buffer if it matches the
// configured pattern, trimming the head to capacity.
func (q *Queue) Send(m message.Message) {
	q.Broadcast(m)
	if !q.pattern(m.Topic) {
		return
	}
	q.buffer = append(q.buffer, m)
	if len(q.buffer) > q.capacity {
		q.buffer = q.buffer[len(q.buffer)-q.capacity:]
	}
	q.saveAsync()
}

// Bind shadows BaseSource.Bind to replay buffered messages matching the new
// binding's pattern, in arrival order, immediately after binding.
func (q *Queue) Bind(dest pubsub.Destination, pattern any) error {
	if err := q.BaseSource.Bind(dest, pattern); err != nil {
		return err
	}
	pred, err := match.Compile(pattern)
	if err != nil {
		return err
	}
	for _, m := range q.buffer {
		if pred(m.Topic) {
			dest.Send(m)
		}
	}
	return nil
}

func (q *Queue) saveAsync() {
	if !q.persist || q.store == nil {
		return
	}
	payload := struct {
		persistentEnvelope
		Buffer []message.Message `json:"buffer"`
	}{
		persistentEnvelope: persistentEnvelope{Type: queueTypeID, Version: queuePersistVers},
		Buffer:              q.buffer,
	}
	if err := q.store.Save(context.Background(), q.name, payload); err != nil {
		fatalPersistFailure(q.log, q.name, err)
	}
}
