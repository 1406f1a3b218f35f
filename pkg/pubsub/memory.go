package pubsub

import (
	"context"
	"errors"
	"path"
	"sync"

	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
)

// ErrClosed is returned by operations on a closed PubSub.
var ErrClosed = errors.New("pubsub closed")

type memorySubscription struct {
	key     string
	pattern bool
	ch      chan *Event
}

func (s *memorySubscription) matches(channel string) bool {
	if !s.pattern {
		return s.key == channel
	}
	ok, err := path.Match(s.key, channel)
	return err == nil && ok
}

// MemoryPubSub is an in-process PubSub for single-instance deployments and tests.
type MemoryPubSub struct {
	subscriptions map[string]*memorySubscription
	closed        bool
	mu            sync.RWMutex
}

// NewMemoryPubSub creates a new in-process PubSub instance.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		subscriptions: make(map[string]*memorySubscription),
	}
}

// Publish delivers the event to every matching subscription without blocking.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	for _, sub := range m.subscriptions {
		if !sub.matches(channel) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			l := log.Ctx(ctx)
			l.Warn().Str(log.FieldChannel, channel).Msg("subscriber buffer full, event dropped")
		}
	}
	return nil
}

// Subscribe subscribes to a specific channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.subscribe(ctx, channel, false)
}

// SubscribePattern subscribes to channels matching a glob pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	return m.subscribe(ctx, pattern, true)
}

func (m *MemoryPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if existing, ok := m.subscriptions[key]; ok {
		close(existing.ch)
	}

	sub := &memorySubscription{
		key:     key,
		pattern: pattern,
		ch:      make(chan *Event, eventBufferSize),
	}
	m.subscriptions[key] = sub

	go func() {
		<-ctx.Done()
		m.remove(sub)
	}()

	return sub.ch, nil
}

// Unsubscribe unsubscribes from a channel or pattern.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subscriptions[channel]; ok {
		close(sub.ch)
		delete(m.subscriptions, channel)
	}
	return nil
}

// Close closes all subscriptions.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for key, sub := range m.subscriptions {
		close(sub.ch)
		delete(m.subscriptions, key)
	}
	return nil
}

// remove drops sub only if it is still the registered subscription for its key.
func (m *MemoryPubSub) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.subscriptions[sub.key]; ok && current == sub {
		close(sub.ch)
		delete(m.subscriptions, sub.key)
	}
}
