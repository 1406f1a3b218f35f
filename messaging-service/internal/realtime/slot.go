package realtime

import (
	"context"
	"sync"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

// Slot owns at most one Subscription. Acquire always tears the previous
// handle down before the next one subscribes.
type Slot struct {
	broker  *Broker
	mu      sync.Mutex
	current *Subscription
}

func NewSlot(b *Broker) *Slot {
	return &Slot{broker: b}
}

func (s *Slot) Acquire(ctx context.Context, conversationID, localParticipantID string, onMessage func(domain.Message)) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Unsubscribe()
		s.current = nil
	}

	sub := s.broker.NewSubscription()
	if err := sub.Subscribe(ctx, conversationID, localParticipantID, onMessage); err != nil {
		return nil, err
	}
	s.current = sub
	return sub, nil
}

// Release tears down the current handle, if any.
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.Unsubscribe()
		s.current = nil
	}
}

func (s *Slot) Current() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
