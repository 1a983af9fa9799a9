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
	topicStoreTypeID = "TopicStore"
	topicStoreVers   = 1
)

// TopicStore is like HeaderStore but keyed on the presence of the
// message's data instead of a header: data present replaces the last
// message for that topic; data absent deletes it. Every message is always
// broadcast.
type TopicStore struct {
	*pubsub.BaseSource
	name string

	order   []string
	byTopic map[string]message.Message

	persist bool
	store   storage.Storage
	log     *slog.Logger
}

// NewTopicStore returns a named TopicStore.
func NewTopicStore(name string, persist bool, log *slog.Logger) *TopicStore {
	if log == nil {
		log = slog.Default()
	}
	return &TopicStore{
		BaseSource: pubsub.NewBaseSource(),
		name:       name,
		byTopic:    make(map[string]message.Message),
		persist:    persist,
		log:        log.With("node", name, "type", topicStoreTypeID),
	}
}

func (t *TopicStore) Name() string { return t.name }

func (t *TopicStore) Init(ctx context.Context, store storage.Storage) error {
	t.store = store
	if !t.persist {
		return nil
	}
	data, found, err := store.Load(ctx, t.name)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var payload struct {
		persistentEnvelope
		Order   []string                   `json:"order"`
		Entries map[string]message.Message `json:"entries"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.log.Warn("discarding unreadable persisted state", "error", err)
		return nil
	}
	if payload.Type != topicStoreTypeID || payload.Version != topicStoreVers {
		t.log.Warn("discarding persisted state with mismatched type/version")
		return nil
	}
	t.order = payload.Order
	t.byTopic = payload.Entries
	if t.byTopic == nil {
		t.byTopic = make(map[string]message.Message)
	}
	return nil
}

func (t *TopicStore) Send(m message.Message) {
	t.Broadcast(m)
	if m.HasData {
		t.removeTopic(m.Topic)
		t.order = append(t.order, m.Topic)
		t.byTopic[m.Topic] = m
	} else {
		t.removeTopic(m.Topic)
		delete(t.byTopic, m.Topic)
	}
	t.saveAsync()
}

func (t *TopicStore) removeTopic(topic string) {
	for i, v := range t.order {
		if v == topic {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Bind shadows BaseSource.Bind to replay stored messages matching the new
// binding's pattern, in stored insertion order.
func (t *TopicStore) Bind(dest pubsub.Destination, pattern any) error {
	if err := t.BaseSource.Bind(dest, pattern); err != nil {
		return err
	}
	pred, err := match.Compile(pattern)
	if err != nil {
		return err
	}
	for _, topic := range t.order {
		m := t.byTopic[topic]
		if pred(m.Topic) {
			dest.Send(m)
		}
	}
	return nil
}

func (t *TopicStore) saveAsync() {
	if !t.persist || t.store == nil {
		return
	}
	payload := struct {
		persistentEnvelope
		Order   []string                   `json:"order"`
		Entries map[string]message.Message `json:"entries"`
	}{
		persistentEnvelope: persistentEnvelope{Type: topicStoreTypeID, Version: topicStoreVers},
		Order:               t.order,
		Entries:             t.byTopic,
	}
	if err := t.store.Save(context.Background(), t.name, payload); err != nil {
		fatalPersistFailure(t.log, t.name, err)
	}
}
