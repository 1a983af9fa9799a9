// Package client implements HubClient, the per-connection protocol state
// machine: it decodes wire commands, authenticates and authorizes them
// against a Hub, and produces responses. Transports (websocket, tcp) own
// framing and call HandleCommand with one decoded JSON document per call.
package client

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/mhub-dev/mhub/internal/auth"
	"github.com/mhub-dev/mhub/internal/hub"
	"github.com/mhub-dev/mhub/internal/match"
	"github.com/mhub-dev/mhub/internal/message"
	"github.com/mhub-dev/mhub/internal/protocol"
	"github.com/mhub-dev/mhub/internal/pubsub"
	"github.com/mhub-dev/mhub/internal/session"
	"github.com/mhub-dev/mhub/internal/subscription"
)

// Sender writes one response value as a JSON document to the client's
// connection. Transports supply this; it is the only thing Client needs to
// know about framing.
type Sender func(v any) error

// Client is one connection's protocol state machine. Not safe for
// concurrent use by multiple goroutines; a transport must serialize calls
// to HandleCommand for a given Client (normal for one reader goroutine per
// connection).
type Client struct {
	hub    *hub.Hub
	connID string
	send   Sender
	log    *slog.Logger

	username string
	loggedIn bool
	authz    *auth.Authorizer

	sess *session.Session

	closed  bool
	onEvict func() // invoked when another connection steals this client's named session
}

// New returns a Client bound to hub, writing responses through send.
// onEvict, if non-nil, is called when this connection's session is stolen
// by a reconnect elsewhere; transports should use it to close the
// underlying connection.
func New(h *hub.Hub, send Sender, onEvict func(), log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	connID := uuid.New().String()
	return &Client{hub: h, connID: connID, send: send, onEvict: onEvict, log: log.With("conn", connID)}
}

// Detach implements session.Holder: called when a reconnecting client
// steals our attached Memory session.
func (c *Client) Detach() {
	c.closed = true
	if c.onEvict != nil {
		c.onEvict()
	}
}

// Close releases this connection's session state. A Volatile session is
// destroyed outright; a Memory session merely loses its holder so a future
// reconnect can resume it.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.sess == nil {
		return
	}
	if c.sess.Kind == session.Volatile {
		c.sess.Destroy()
	} else {
		c.sess.Detach(c)
	}
}

// HandleCommand decodes one wire command and dispatches it, serialized
// against the rest of the node graph via the Hub's lock. Returns an error
// only when writing the response itself fails (the transport should then
// terminate the connection); protocol-level failures are reported to the
// client as an `error` response and do not return an error here.
func (c *Client) HandleCommand(data []byte) error {
	c.hub.Lock()
	defer c.hub.Unlock()

	cmd, err := protocol.Decode(data)
	if err != nil {
		return c.send(protocol.NewError(nil, err.Error()))
	}
	switch v := cmd.(type) {
	case protocol.LoginCommand:
		return c.handleLogin(v)
	case protocol.SessionCommand:
		return c.handleSession(v)
	case protocol.SubscriptionCommand:
		return c.handleSubscription(v)
	case protocol.SubscribeCommand:
		return c.handleSubscribe(v)
	case protocol.UnsubscribeCommand:
		return c.handleUnsubscribe(v)
	case protocol.PublishCommand:
		return c.handlePublish(v)
	case protocol.AckCommand:
		return c.handleAck(v)
	case protocol.PingCommand:
		return c.handlePing(v)
	default:
		return c.sendErr(cmd.CommandSeq(), "unknown command type")
	}
}

func (c *Client) sendErr(seq *int64, msg string) error {
	return c.send(protocol.NewError(seq, msg))
}

// ensureAuthz reports whether this connection has a resolved Authorizer,
// lazily anonymous-attaching (username "") on first use when the hub
// requires no login at all. Connections on a hub with users/rights
// configured must send an explicit login before any other command.
func (c *Client) ensureAuthz() bool {
	if c.authz != nil {
		return true
	}
	if c.hub.AuthRequired() {
		return false
	}
	c.username = ""
	c.authz = c.hub.Authorize("")
	return true
}

func (c *Client) handleLogin(cmd protocol.LoginCommand) error {
	if c.loggedIn {
		return c.sendErr(cmd.CommandSeq(), "already logged in")
	}
	if !c.hub.Authenticate(context.Background(), cmd.Username, cmd.Password) {
		return c.sendErr(cmd.CommandSeq(), "authentication failed")
	}
	c.username = cmd.Username
	c.loggedIn = true
	c.authz = c.hub.Authorize(cmd.Username)
	if cmd.CommandSeq() == nil {
		return nil
	}
	return c.send(protocol.LoginAck{Type: protocol.TypeLoginAck, Seq: cmd.CommandSeq()})
}

func (c *Client) handleSession(cmd protocol.SessionCommand) error {
	if !c.ensureAuthz() {
		return c.sendErr(cmd.CommandSeq(), "not logged in")
	}
	if c.sess != nil {
		return c.sendErr(cmd.CommandSeq(), "session already attached")
	}
	sess, created := c.hub.Sessions().GetOrCreate(c.username, cmd.Name)
	c.sess = sess
	if created {
		sess.Attach(c)
	} else {
		sess.Reconnect(c, c.deliverFor)
	}
	if cmd.SubscriptionsGiven {
		sess.SetSubscriptions(cmd.Subscriptions, c.deliverFor)
	}
	ids := sess.SubscriptionIDs()
	sort.Strings(ids)
	return c.send(protocol.SessionAck{
		Type:          protocol.TypeSessionAck,
		Seq:           cmd.CommandSeq(),
		Name:          cmd.Name,
		Subscriptions: ids,
	})
}

func (c *Client) handleSubscription(cmd protocol.SubscriptionCommand) error {
	if !c.ensureAuthz() {
		return c.sendErr(cmd.CommandSeq(), "not logged in")
	}
	c.ensureVolatileSession()
	sub, _ := c.sess.GetOrCreateSubscription(cmd.ID, subscription.InfiniteWindow, c.deliverFor(cmd.ID))

	if cmd.BindingsGiven {
		sources := make(map[string]pubsub.Source, len(cmd.Bindings))
		matchers := make(map[string]match.Predicate, len(cmd.Bindings))
		for node := range cmd.Bindings {
			src, ok := c.hub.Source(node)
			matcher := c.authz.SubscribeMatcher(node)
			if !ok || matcher == nil {
				return c.sendErr(cmd.CommandSeq(), protocol.PermissionDeniedMessage)
			}
			sources[node] = src
			matchers[node] = matcher
		}
		if err := sub.SetBindings(cmd.Bindings, sources, matchers); err != nil {
			return c.sendErr(cmd.CommandSeq(), err.Error())
		}
	}

	resp := protocol.SubscriptionAck{
		Type:    protocol.TypeSubscriptionAck,
		Seq:     cmd.CommandSeq(),
		ID:      cmd.ID,
		LastAck: sub.First(),
	}
	if !cmd.BindingsGiven {
		current := make(map[string]any, len(sub.Sources()))
		for node, specs := range sub.Sources() {
			current[node] = specs
		}
		resp.Bindings = current
	}
	return c.send(resp)
}

func (c *Client) handleSubscribe(cmd protocol.SubscribeCommand) error {
	if !c.ensureAuthz() {
		return c.sendErr(cmd.CommandSeq(), "not logged in")
	}
	src, ok := c.hub.Source(cmd.Node)
	matcher := c.authz.SubscribeMatcher(cmd.Node)
	if !ok || matcher == nil {
		return c.sendErr(cmd.CommandSeq(), protocol.PermissionDeniedMessage)
	}
	c.ensureVolatileSession()
	sub, _ := c.sess.GetOrCreateSubscription(cmd.ID, subscription.InfiniteWindow, c.deliverFor(cmd.ID))
	if err := sub.Subscribe(cmd.Node, src, cmd.Pattern, matcher); err != nil {
		return c.sendErr(cmd.CommandSeq(), err.Error())
	}
	return c.send(protocol.SubAck{Type: protocol.TypeSubAck, Seq: cmd.CommandSeq(), ID: cmd.ID, Node: cmd.Node})
}

func (c *Client) handleUnsubscribe(cmd protocol.UnsubscribeCommand) error {
	if !c.ensureAuthz() {
		return c.sendErr(cmd.CommandSeq(), "not logged in")
	}
	_, ok := c.hub.Source(cmd.Node)
	matcher := c.authz.SubscribeMatcher(cmd.Node)
	if !ok || matcher == nil {
		return c.sendErr(cmd.CommandSeq(), protocol.PermissionDeniedMessage)
	}
	c.ensureVolatileSession()
	sub, _ := c.sess.GetOrCreateSubscription(cmd.ID, subscription.InfiniteWindow, c.deliverFor(cmd.ID))
	sub.Unsubscribe(cmd.Node, cmd.Pattern)
	return c.send(protocol.UnsubAck{Type: protocol.TypeUnsubAck, Seq: cmd.CommandSeq(), ID: cmd.ID, Node: cmd.Node})
}

func (c *Client) handlePublish(cmd protocol.PublishCommand) error {
	if !c.ensureAuthz() {
		return c.sendErr(cmd.CommandSeq(), "not logged in")
	}
	allowed := c.authz.CanPublish(cmd.Node, cmd.Msg.Topic)
	dest, exists := c.hub.Destination(cmd.Node)
	if !allowed {
		return c.sendErr(cmd.CommandSeq(), protocol.PermissionDeniedMessage)
	}
	if !exists {
		return c.sendErr(cmd.CommandSeq(), "unknown node")
	}
	if err := cmd.Msg.Validate(); err != nil {
		return c.sendErr(cmd.CommandSeq(), err.Error())
	}
	dest.Send(cmd.Msg)
	return c.send(protocol.PubAck{Type: protocol.TypePubAck, Seq: cmd.CommandSeq(), Node: cmd.Node})
}

func (c *Client) handleAck(cmd protocol.AckCommand) error {
	if c.sess == nil {
		return c.sendErr(cmd.CommandSeq(), "no session attached")
	}
	sub, ok := c.sess.Subscription(cmd.ID)
	if !ok {
		return c.sendErr(cmd.CommandSeq(), "unknown subscription")
	}
	if err := sub.Ack(cmd.Ack, cmd.Window); err != nil {
		return c.sendErr(cmd.CommandSeq(), err.Error())
	}
	return nil
}

func (c *Client) handlePing(cmd protocol.PingCommand) error {
	return c.send(protocol.PingAck{Type: protocol.TypePingAck, Seq: cmd.CommandSeq()})
}

// ensureVolatileSession attaches a fresh Volatile session if this
// connection has none, per the auto-session rule for bare
// subscribe/unsubscribe/subscription commands.
func (c *Client) ensureVolatileSession() {
	if c.sess != nil {
		return
	}
	c.sess = session.New(session.Volatile, "")
	c.sess.Attach(c)
}

// deliverFor returns the DeliverFunc a subscription named id should use to
// push messages to this connection.
func (c *Client) deliverFor(id string) subscription.DeliverFunc {
	return func(m message.Message, seq int64) {
		if err := c.send(protocol.MessageEvent{Subscription: id, Seq: seq, Msg: m}); err != nil {
			c.log.Warn("delivery write failed", "subscription", id, "error", err)
		}
	}
}
