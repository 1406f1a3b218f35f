package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
)

// channelToSubject converts a channel or glob pattern to a NATS subject:
// "chat:conversation:C1:messages" → "chat.conversation.C1.messages".
func channelToSubject(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}

type natsSubscription struct {
	sub    *nats.Subscription
	cancel context.CancelFunc
}

// NATSPubSub implements PubSub interface using core NATS subjects.
type NATSPubSub struct {
	conn          *nats.Conn
	subscriptions map[string]*natsSubscription
	mu            sync.Mutex
}

// NewNATSPubSub connects to NATS and returns a PubSub over it.
func NewNATSPubSub(cfg NATSConfig) (*NATSPubSub, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			l := log.L()
			l.Warn().Err(err).Msg("disconnected from nats")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l := log.L()
			l.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to nats")
		}),
		nats.Timeout(10 * time.Second),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPubSub{
		conn:          conn,
		subscriptions: make(map[string]*natsSubscription),
	}, nil
}

// Publish publishes an event to the subject derived from channel.
func (n *NATSPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return n.conn.Publish(channelToSubject(channel), data)
}

// Subscribe subscribes to a specific channel.
func (n *NATSPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return n.subscribe(ctx, channel, channelToSubject(channel))
}

// SubscribePattern subscribes with "*" as a single-token wildcard, which
// matches the Redis glob for the channel names used here.
func (n *NATSPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return n.subscribe(ctx, pattern, channelToSubject(pattern))
}

func (n *NATSPubSub) subscribe(ctx context.Context, key, subject string) (<-chan *Event, error) {
	msgCh := make(chan *nats.Msg, eventBufferSize)
	sub, err := n.conn.ChanSubscribe(subject, msgCh)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	if err := n.conn.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("failed to confirm subscription to %s: %w", subject, err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	n.mu.Lock()
	if existing, ok := n.subscriptions[key]; ok {
		existing.cancel()
		existing.sub.Unsubscribe()
	}
	n.subscriptions[key] = &natsSubscription{sub: sub, cancel: cancel}
	n.mu.Unlock()

	eventCh := make(chan *Event, eventBufferSize)
	go n.processMessages(subCtx, key, msgCh, eventCh)

	return eventCh, nil
}

func (n *NATSPubSub) processMessages(ctx context.Context, key string, msgCh <-chan *nats.Msg, eventCh chan<- *Event) {
	defer close(eventCh)

	l := log.Ctx(ctx).With().Str(log.FieldChannel, key).Logger()
	closed := n.conn.StatusChanged(nats.CLOSED)

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case msg := <-msgCh:
			var event Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				l.Warn().Err(err).Msg("dropping undecodable event")
				continue
			}

			select {
			case eventCh <- &event:
			case <-ctx.Done():
				return
			default:
				l.Warn().Msg("subscriber buffer full, event dropped")
			}
		}
	}
}

// Unsubscribe unsubscribes from a channel or pattern.
func (n *NATSPubSub) Unsubscribe(ctx context.Context, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if s, ok := n.subscriptions[channel]; ok {
		s.cancel()
		delete(n.subscriptions, channel)
		return s.sub.Unsubscribe()
	}
	return nil
}

// Close drains subscriptions and closes the connection.
func (n *NATSPubSub) Close() error {
	n.mu.Lock()
	for key, s := range n.subscriptions {
		s.cancel()
		s.sub.Unsubscribe()
		delete(n.subscriptions, key)
	}
	n.mu.Unlock()

	n.conn.Close()
	return nil
}
