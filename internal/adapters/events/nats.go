// Package events fans conversation notifications out to NATS subjects.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// DefaultSubjectPrefix roots every published subject.
const DefaultSubjectPrefix = "ragchat"

// Client is a thin NATS connection wrapper publishing JSON payloads.
type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *zap.Logger
}

// NewClient connects to url, retrying in the background when the server
// is not up yet.
func NewClient(ctx context.Context, url, token string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name("ragchat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish marshals data as JSON and publishes it on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Subscribe registers handler for subject, which may contain wildcards.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", zap.String("subject", subject))
	return nil
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close drops subscriptions and the connection.
func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}

// Payload is the JSON body of every conversation event.
type Payload struct {
	ConversationID string         `json:"conversation_id"`
	Event          entities.Event `json:"event"`
	At             time.Time      `json:"at"`
}

type publisher interface {
	Publish(subject string, data any) error
}

// Subscriber publishes one conversation's notifications to
// <prefix>.conversation.<id>.<kind>.
type Subscriber struct {
	pub            publisher
	prefix         string
	conversationID string
	publishDeltas  bool
	logger         *zap.Logger
}

var _ ports.Subscriber = (*Subscriber)(nil)

// SubscriberOptions configures a conversation Subscriber.
type SubscriberOptions struct {
	Prefix string
	// PublishDeltas also forwards every streamed delta, not only messages
	// and status changes.
	PublishDeltas bool
}

// NewSubscriber binds a Subscriber to one conversation.
func NewSubscriber(client *Client, conversationID string, opts SubscriberOptions, logger *zap.Logger) *Subscriber {
	return newSubscriber(client, conversationID, opts, logger)
}

func newSubscriber(pub publisher, conversationID string, opts SubscriberOptions, logger *zap.Logger) *Subscriber {
	if opts.Prefix == "" {
		opts.Prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		pub:            pub,
		prefix:         opts.Prefix,
		conversationID: conversationID,
		publishDeltas:  opts.PublishDeltas,
		logger:         logger,
	}
}

// Subject returns the subject used for events of kind.
func (s *Subscriber) Subject(kind entities.EventKind) string {
	return fmt.Sprintf("%s.conversation.%s.%s", s.prefix, s.conversationID, kind)
}

func (s *Subscriber) publish(ev entities.Event) {
	subject := s.Subject(ev.Kind)
	err := s.pub.Publish(subject, Payload{
		ConversationID: s.conversationID,
		Event:          ev,
		At:             time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("publishing event failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (s *Subscriber) OnMessageAppended(msg entities.Message) {
	s.publish(entities.Event{Kind: entities.EventMessage, Message: &msg})
}

func (s *Subscriber) OnStreamDelta(delta string) {
	if !s.publishDeltas {
		return
	}
	s.publish(entities.Event{Kind: entities.EventDelta, Delta: delta})
}

func (s *Subscriber) OnStatusChanged(status entities.Status) {
	s.publish(entities.Event{Kind: entities.EventStatus, Status: status})
}
