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
	headerStoreTypeID = "HeaderStore"
	headerStoreVers   = 1
)

// HeaderStore is a Source+Destination keyed on the "keep" header: a message
// sent with keep=true replaces any existing entry for its topic (moved to
// the tail, preserving newest-insertion order); keep=false deletes the
// entry; an absent header leaves stored state untouched. Every message is
// always broadcast regardless of its effect on stored state.
type HeaderStore struct {
	*pubsub.BaseSource
	name string

	order []string // topics, in insertion order (oldest first)
	byTopic map[string]message.Message

	persist bool
	store   storage.Storage
	log     *slog.Logger
}

// NewHeaderStore returns a named HeaderStore.
func NewHeaderStore(name string, persist bool, log *slog.Logger) *HeaderStore {
	if log == nil {
		log = slog.Default()
	}
	return &HeaderStore{
		BaseSource: pubsub.NewBaseSource(),
		name:       name,
		byTopic:    make(map[string]message.Message),
		persist:    persist,
		log:        log.With("node", name, "type", headerStoreTypeID),
	}
}

func (h *HeaderStore) Name() string { return h.name }

func (h *HeaderStore) Init(ctx context.Context, store storage.Storage) error {
	h.store = store
	if !h.persist {
		return nil
	}
	data, found, err := store.Load(ctx, h.name)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var payload struct {
		persistentEnvelope
		Order   []string                     `json:"order"`
		Entries map[string]message.Message `json:"entries"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		h.log.Warn("discarding unreadable persisted state", "error", err)
		return nil
	}
	if payload.Type != headerStoreTypeID || payload.Version != headerStoreVers {
		h.log.Warn("discarding persisted state with mismatched type/version")
		return nil
	}
	h.order = payload.Order
	h.byTopic = payload.Entries
	if h.byTopic == nil {
		h.byTopic = make(map[string]message.Message)
	}
	return nil
}

// Send always broadcasts, then applies the keep-header state transition.
func (h *HeaderStore) Send(m message.Message) {
	h.Broadcast(m)
	keep, present := m.Header("keep")
	if !present {
		return
	}
	if b, _ := keep.(bool); b {
		h.removeTopic(m.Topic)
		h.order = append(h.order, m.Topic)
		h.byTopic[m.Topic] = m
	} else {
		h.removeTopic(m.Topic)
		delete(h.byTopic, m.Topic)
	}
	h.saveAsync()
}

func (h *HeaderStore) removeTopic(topic string) {
	for i, t := range h.order {
		if t == topic {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Bind shadows BaseSource.Bind to replay all stored messages matching the
// new binding's pattern, in stored insertion order.
func (h *HeaderStore) Bind(dest pubsub.Destination, pattern any) error {
	if err := h.BaseSource.Bind(dest, pattern); err != nil {
		return err
	}
	pred, err := match.Compile(pattern)
	if err != nil {
		return err
	}
	for _, topic := range h.order {
		m := h.byTopic[topic]
		if pred(m.Topic) {
			dest.Send(m)
		}
	}
	return nil
}

func (h *HeaderStore) saveAsync() {
	if !h.persist || h.store == nil {
		return
	}
	payload := struct {
		persistentEnvelope
		Order   []string                     `json:"order"`
		Entries map[string]message.Message `json:"entries"`
	}{
		persistentEnvelope: persistentEnvelope{Type: headerStoreTypeID, Version: headerStoreVers},
		Order:               h.order,
		Entries:             h.byTopic,
	}
	if err := h.store.Save(context.Background(), h.name, payload); err != nil {
		fatalPersistFailure(h.log, h.name, err)
	}
}
