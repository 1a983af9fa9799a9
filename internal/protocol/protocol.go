// Package protocol defines the wire messages exchanged between a client and
// the broker: a discriminated union keyed by a "type" field, mirroring the
// envelope-plus-type-constants shape used elsewhere in the stack.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/mhub-dev/mhub/internal/message"
)

// Command type constants (client -> broker).
const (
	TypeLogin        = "login"
	TypeSession      = "session"
	TypeSubscription = "subscription"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePublish      = "publish"
	TypeAck          = "ack"
	TypePing         = "ping"
)

// Response type constants (broker -> client).
const (
	TypeLoginAck        = "loginack"
	TypeSessionAck      = "sessionack"
	TypeSubscriptionAck = "subscriptionack"
	TypeSubAck          = "suback"
	TypeUnsubAck        = "unsuback"
	TypePubAck          = "puback"
	TypePingAck         = "pingack"
	TypeMessage         = "message"
	TypeError           = "error"
)

// MaxSeq bounds the optional per-command sequence number.
const MaxSeq = 65535

// envelope is decoded first to discover the command type and to capture the
// raw body for type-specific decoding below.
type envelope struct {
	Type string `json:"type"`
	Seq  *int64 `json:"seq,omitempty"`
}

// Command is any decoded client->broker message. CommandSeq returns the request's
// echoed sequence number, or nil if the client omitted one.
type Command interface {
	CommandType() string
	CommandSeq() *int64
}

type base struct {
	Type string `json:"type"`
	Seq  *int64 `json:"seq,omitempty"`
}

func (b base) CommandType() string { return b.Type }
func (b base) CommandSeq() *int64  { return b.Seq }

// LoginCommand authenticates a connection.
type LoginCommand struct {
	base
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionCommand finds-or-creates a named Memory session and attaches it.
type SessionCommand struct {
	base
	Name          string   `json:"name"`
	Subscriptions []string `json:"subscriptions,omitempty"`

	// SubscriptionsGiven distinguishes an omitted subscriptions field (leave
	// the session's existing subscriptions alone) from an explicit, possibly
	// empty, list (reconcile to exactly that set).
	SubscriptionsGiven bool `json:"-"`
}

// SubscriptionCommand adjusts or reads the source bindings of one
// subscription.
type SubscriptionCommand struct {
	base
	ID             string         `json:"id"`
	Bindings       map[string]any `json:"bindings,omitempty"`
	BindingsGiven  bool           `json:"-"`
}

// SubscribeCommand adds a pattern binding to a subscription (auto-creating a
// Volatile session/subscription if none is attached yet).
type SubscribeCommand struct {
	base
	Node    string `json:"node"`
	Pattern any    `json:"pattern,omitempty"`
	ID      string `json:"id,omitempty"` // default "default"
}

// UnsubscribeCommand removes a pattern binding, or all of them if Pattern is
// omitted.
type UnsubscribeCommand struct {
	base
	Node    string `json:"node"`
	Pattern any    `json:"pattern,omitempty"`
	ID      string `json:"id,omitempty"`
}

// PublishCommand sends one message through a node.
type PublishCommand struct {
	base
	Node string
	Msg  message.Message
}

// AckCommand releases delivered messages up to Ack and optionally resizes
// the window.
type AckCommand struct {
	base
	ID     string `json:"id"`
	Ack    int64  `json:"ack"`
	Window *int64 `json:"window,omitempty"`
}

// PingCommand requests a liveness pingack.
type PingCommand struct {
	base
}

// Decode inspects the "type" field of data and returns the matching typed
// Command. Unknown types produce an error, which the caller renders as a
// protocol-error response.
func Decode(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed command: %w", err)
	}
	if env.Seq != nil && (*env.Seq < 0 || *env.Seq > MaxSeq) {
		return nil, fmt.Errorf("protocol: seq out of range: %d", *env.Seq)
	}
	switch env.Type {
	case TypeLogin:
		var c LoginCommand
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("protocol: invalid login: %w", err)
		}
		return c, nil
	case TypeSession:
		var raw struct {
			base
			Name          string          `json:"name"`
			Subscriptions json.RawMessage `json:"subscriptions"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("protocol: invalid session: %w", err)
		}
		c := SessionCommand{base: raw.base, Name: raw.Name}
		if raw.Subscriptions != nil {
			c.SubscriptionsGiven = true
			if err := json.Unmarshal(raw.Subscriptions, &c.Subscriptions); err != nil {
				return nil, fmt.Errorf("protocol: invalid session subscriptions: %w", err)
			}
		}
		return c, nil
	case TypeSubscription:
		var raw struct {
			base
			ID       string          `json:"id"`
			Bindings json.RawMessage `json:"bindings"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("protocol: invalid subscription: %w", err)
		}
		c := SubscriptionCommand{base: raw.base, ID: raw.ID}
		if raw.Bindings != nil {
			c.BindingsGiven = true
			if err := json.Unmarshal(raw.Bindings, &c.Bindings); err != nil {
				return nil, fmt.Errorf("protocol: invalid subscription bindings: %w", err)
			}
		}
		return c, nil
	case TypeSubscribe:
		var c SubscribeCommand
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("protocol: invalid subscribe: %w", err)
		}
		if c.ID == "" {
			c.ID = "default"
		}
		return c, nil
	case TypeUnsubscribe:
		var c UnsubscribeCommand
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("protocol: invalid unsubscribe: %w", err)
		}
		if c.ID == "" {
			c.ID = "default"
		}
		return c, nil
	case TypePublish:
		var raw struct {
			base
			Node string `json:"node"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("protocol: invalid publish: %w", err)
		}
		var m message.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: invalid publish message: %w", err)
		}
		return PublishCommand{base: raw.base, Node: raw.Node, Msg: m}, nil
	case TypeAck:
		var c AckCommand
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("protocol: invalid ack: %w", err)
		}
		return c, nil
	case TypePing:
		var c PingCommand
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("protocol: invalid ping: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("protocol: unknown command type %q", env.Type)
	}
}

// --- Responses ---

// LoginAck acknowledges a successful login. Only sent when the command
// carried a seq.
type LoginAck struct {
	Type string `json:"type"`
	Seq  *int64 `json:"seq,omitempty"`
}

// SessionAck reports the name and current subscription ids of the attached
// session.
type SessionAck struct {
	Type          string   `json:"type"`
	Seq           *int64   `json:"seq,omitempty"`
	Name          string   `json:"name"`
	Subscriptions []string `json:"subscriptions"`
}

// SubscriptionAck reports the subscription's current ack floor and,
// when the client did not supply bindings itself, the server's view of the
// current bindings.
type SubscriptionAck struct {
	Type     string         `json:"type"`
	Seq      *int64         `json:"seq,omitempty"`
	ID       string         `json:"id"`
	LastAck  int64          `json:"lastAck"`
	Bindings map[string]any `json:"bindings,omitempty"`
}

// SubAck acknowledges a subscribe command.
type SubAck struct {
	Type string `json:"type"`
	Seq  *int64 `json:"seq,omitempty"`
	ID   string `json:"id"`
	Node string `json:"node"`
}

// UnsubAck acknowledges an unsubscribe command.
type UnsubAck struct {
	Type string `json:"type"`
	Seq  *int64 `json:"seq,omitempty"`
	ID   string `json:"id"`
	Node string `json:"node"`
}

// PubAck acknowledges a publish command.
type PubAck struct {
	Type string `json:"type"`
	Seq  *int64 `json:"seq,omitempty"`
	Node string `json:"node"`
}

// PingAck acknowledges a ping command.
type PingAck struct {
	Type string `json:"type"`
	Seq  *int64 `json:"seq,omitempty"`
}

// ErrorResponse carries a failure. Message is deliberately generic for
// permission-denied and unknown-node cases so a client cannot distinguish
// them.
type ErrorResponse struct {
	Type    string `json:"type"`
	Seq     *int64 `json:"seq,omitempty"`
	Message string `json:"message"`
}

// NewError builds an ErrorResponse echoing seq.
func NewError(seq *int64, msg string) ErrorResponse {
	return ErrorResponse{Type: TypeError, Seq: seq, Message: msg}
}

// PermissionDeniedMessage is the uniform text used for both denied-subscribe
// and unknown-node cases.
const PermissionDeniedMessage = "permission denied"

// MessageEvent is an unsolicited delivery carrying one routed message plus
// its owning subscription id and per-subscription sequence number.
type MessageEvent struct {
	Subscription string
	Seq          int64
	Msg          message.Message
}

// MarshalJSON renders the message's own topic/data/headers wire shape with
// "type", "subscription", and "seq" merged in.
func (e MessageEvent) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(e.Msg)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typeJSON, _ := json.Marshal(TypeMessage)
	subJSON, _ := json.Marshal(e.Subscription)
	seqJSON, _ := json.Marshal(e.Seq)
	fields["type"] = typeJSON
	fields["subscription"] = subJSON
	fields["seq"] = seqJSON
	if fields["headers"] == nil {
		h, _ := json.Marshal(e.Msg.EffectiveHeaders())
		fields["headers"] = h
	}
	return json.Marshal(fields)
}
