// Package realtime pushes newly inserted messages to open chat views.
//
// A Broker holds at most one change-feed subscription per conversation and
// fans its events out to the Subscriptions attached to that conversation.
// Each conversation is served by a single dispatch goroutine, so listeners
// observe messages in feed order.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
	"github.com/israelseleshi/building-management-system-sub000/pkg/pubsub"
)

type topic struct {
	conversationID string
	listeners      []*Subscription
	cancel         context.CancelFunc
	// ready is closed once the feed subscription is settled; err is set
	// before that when it could not be established.
	ready chan struct{}
	err   error
	// closing is set once the broker itself ends the feed subscription, so
	// the dispatch loop can tell a detach from a lost connection.
	closing bool
}

func (t *topic) settled() bool {
	select {
	case <-t.ready:
		return true
	default:
		return false
	}
}

// Broker multiplexes conversation change feeds onto subscription handles.
//
// Feed calls are made without b.mu held. A conversation's next feed
// subscription waits until the previous one has been torn down.
type Broker struct {
	feed     pubsub.Subscriber
	ids      idgen.Generator
	mu       sync.Mutex
	topics   map[string]*topic
	draining map[string]chan struct{}
}

func NewBroker(feed pubsub.Subscriber, ids idgen.Generator) *Broker {
	return &Broker{
		feed:     feed,
		ids:      ids,
		topics:   make(map[string]*topic),
		draining: make(map[string]chan struct{}),
	}
}

// NewSubscription returns an Idle handle bound to this broker.
func (b *Broker) NewSubscription() *Subscription {
	sub := newSubscription(b)
	if id, err := b.ids.Generate(); err == nil {
		sub.id = id
	} else {
		// ids only identify handles in logs
		sub.id = fmt.Sprintf("sub-%p", sub)
	}
	return sub
}

// ListenerCount returns how many handles are attached to a conversation.
func (b *Broker) ListenerCount(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[conversationID]; ok {
		return len(t.listeners)
	}
	return 0
}

// attach adds sub to its conversation's topic. The first listener subscribes
// to the feed; later ones wait for that attempt and share its outcome.
func (b *Broker) attach(sub *Subscription) error {
	id := sub.conversationID

	b.mu.Lock()
	if t, ok := b.topics[id]; ok {
		t.listeners = append(t.listeners, sub)
		b.mu.Unlock()
		<-t.ready
		return t.err
	}
	t := &topic{
		conversationID: id,
		listeners:      []*Subscription{sub},
		ready:          make(chan struct{}),
	}
	b.topics[id] = t
	prev := b.draining[id]
	b.mu.Unlock()

	if prev != nil {
		<-prev
	}

	channel := pubsub.ConversationMessagesChannel(id)
	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.feed.Subscribe(ctx, channel)

	b.mu.Lock()
	if err != nil {
		cancel()
		t.err = fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
		if cur, ok := b.topics[id]; ok && cur == t {
			delete(b.topics, id)
		}
		t.listeners = nil
		close(t.ready)
		b.mu.Unlock()
		return t.err
	}

	t.cancel = cancel
	if t.closing || len(t.listeners) == 0 {
		// the broker closed, or every listener left, while subscribing
		if t.closing {
			t.err = domain.ErrChannelUnavailable
		}
		done := b.beginDrainLocked(t)
		close(t.ready)
		b.mu.Unlock()
		b.finishDrain(t, done)
		return t.err
	}
	close(t.ready)
	b.mu.Unlock()

	go b.dispatch(t, events)

	l := log.L()
	l.Debug().Str(log.FieldChannel, channel).Msg("conversation feed subscribed")
	return nil
}

// detach removes sub from its topic; the last listener out ends the feed
// subscription. Removing an unknown handle is a no-op. A topic still
// subscribing is left to the attach that created it.
func (b *Broker) detach(sub *Subscription) {
	b.mu.Lock()
	t, ok := b.topics[sub.conversationID]
	if !ok {
		b.mu.Unlock()
		return
	}
	removed := false
	for i, s := range t.listeners {
		if s == sub {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			removed = true
			break
		}
	}
	if !removed || len(t.listeners) > 0 || !t.settled() {
		b.mu.Unlock()
		return
	}
	done := b.beginDrainLocked(t)
	b.mu.Unlock()

	b.finishDrain(t, done)
}

// beginDrainLocked takes t out of service. The caller must follow with
// finishDrain once b.mu is released.
func (b *Broker) beginDrainLocked(t *topic) chan struct{} {
	t.closing = true
	if cur, ok := b.topics[t.conversationID]; ok && cur == t {
		delete(b.topics, t.conversationID)
	}
	done := make(chan struct{})
	b.draining[t.conversationID] = done
	return done
}

func (b *Broker) finishDrain(t *topic, done chan struct{}) {
	channel := pubsub.ConversationMessagesChannel(t.conversationID)
	if err := b.feed.Unsubscribe(context.Background(), channel); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldChannel, channel).Msg("feed unsubscribe failed")
	}
	t.cancel()

	b.mu.Lock()
	if b.draining[t.conversationID] == done {
		delete(b.draining, t.conversationID)
	}
	b.mu.Unlock()
	close(done)
}

func (b *Broker) dispatch(t *topic, events <-chan *pubsub.Event) {
	l := log.L().With().Str(log.FieldConversationID, t.conversationID).Logger()

	for event := range events {
		if event.Type != pubsub.EventMessageCreated {
			continue
		}
		var row pubsub.MessageRow
		if err := event.UnmarshalPayload(&row); err != nil {
			l.Warn().Err(err).Msg("dropping undecodable message event")
			continue
		}
		if row.ConversationID != t.conversationID {
			continue
		}
		msg := domain.Message{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			SenderID:       row.SenderID,
			Body:           row.Body,
			CreatedAt:      row.CreatedAt,
		}

		b.mu.Lock()
		listeners := make([]*Subscription, len(t.listeners))
		copy(listeners, t.listeners)
		b.mu.Unlock()

		for _, sub := range listeners {
			sub.deliver(msg)
		}
	}

	b.mu.Lock()
	if t.closing {
		b.mu.Unlock()
		return
	}
	t.closing = true
	if current, ok := b.topics[t.conversationID]; ok && current == t {
		delete(b.topics, t.conversationID)
	}
	orphans := t.listeners
	t.listeners = nil
	b.mu.Unlock()
	t.cancel()

	l.Warn().Int("listeners", len(orphans)).Msg("conversation feed lost")
	for _, sub := range orphans {
		sub.fail(domain.ErrChannelUnavailable)
	}
}

// Close ends every feed subscription and tears down all handles with
// ErrChannelUnavailable.
func (b *Broker) Close() {
	type drain struct {
		t    *topic
		done chan struct{}
	}

	b.mu.Lock()
	var (
		orphans []*Subscription
		drains  []drain
	)
	for _, t := range b.topics {
		orphans = append(orphans, t.listeners...)
		t.listeners = nil
		if t.settled() {
			drains = append(drains, drain{t, b.beginDrainLocked(t)})
			continue
		}
		t.closing = true
		delete(b.topics, t.conversationID)
	}
	b.mu.Unlock()

	for _, d := range drains {
		b.finishDrain(d.t, d.done)
	}
	for _, sub := range orphans {
		sub.fail(domain.ErrChannelUnavailable)
	}
}
