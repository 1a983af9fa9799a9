// Package message defines the immutable unit of transfer routed between
// nodes: a topic, optional data, and a set of scalar headers.
package message

import (
	"encoding/json"
	"fmt"
)

// Headers maps header names to scalar values. Only string, float64, and bool
// are valid header value types on the wire; other JSON types fail Validate.
type Headers map[string]any

// Message is the immutable unit of transfer between nodes. Once handed to
// the core it must not be mutated; callers that need a modified copy should
// build a new Message.
type Message struct {
	Topic   string
	Data    any
	HasData bool
	Headers Headers
}

// New builds a Message with the given topic and no data or headers.
func New(topic string) Message {
	return Message{Topic: topic}
}

// WithData returns a copy of m carrying the given data value.
func (m Message) WithData(data any) Message {
	m.Data = data
	m.HasData = true
	return m
}

// WithHeaders returns a copy of m carrying the given headers.
func (m Message) WithHeaders(h Headers) Message {
	m.Headers = h
	return m
}

// Validate rejects messages with a non-string/empty topic or header values
// outside the allowed scalar types (string, float64/int, bool).
func (m Message) Validate() error {
	if m.Topic == "" {
		return fmt.Errorf("message: topic must be a non-empty string")
	}
	for k, v := range m.Headers {
		switch v.(type) {
		case string, bool, float64, int, int64:
		default:
			return fmt.Errorf("message: header %q has invalid type %T", k, v)
		}
	}
	return nil
}

// Header returns the value of header k and whether it was present.
func (m Message) Header(k string) (any, bool) {
	if m.Headers == nil {
		return nil, false
	}
	v, ok := m.Headers[k]
	return v, ok
}

// HeaderBool returns header k coerced to bool, defaulting to false when
// absent or not a bool.
func (m Message) HeaderBool(k string) bool {
	v, ok := m.Header(k)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// EffectiveHeaders returns m.Headers, substituting an empty (non-nil) map
// when none were set, matching the wire round-trip rule that absent headers
// re-appear as an empty object.
func (m Message) EffectiveHeaders() Headers {
	if m.Headers == nil {
		return Headers{}
	}
	return m.Headers
}

// wireMessage is the JSON shape used both on the wire and for node
// persistence: Data is omitted entirely (not even `null`) when absent. Data
// is a raw message rather than `any` so an explicit `data:null` (HasData
// true, Data nil) still serializes the key instead of being dropped by
// omitempty, which only sees an empty/nil `any` either way.
type wireMessage struct {
	Topic   string          `json:"topic"`
	Data    json.RawMessage `json:"data,omitempty"`
	Headers Headers         `json:"headers,omitempty"`
}

// MarshalJSON encodes m, omitting Data when it was never set.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Topic: m.Topic, Headers: m.Headers}
	if m.HasData {
		data, err := json.Marshal(m.Data)
		if err != nil {
			return nil, err
		}
		w.Data = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes m, treating the key's presence (not its value) as
// the signal for HasData, so `"data":null` still counts as present.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		Topic   string          `json:"topic"`
		Data    json.RawMessage `json:"data"`
		Headers Headers         `json:"headers"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.Topic = raw.Topic
	m.Headers = raw.Headers
	if raw.Data != nil {
		m.HasData = true
		if err := json.Unmarshal(raw.Data, &m.Data); err != nil {
			return err
		}
	}
	return nil
}
