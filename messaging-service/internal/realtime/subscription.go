package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

// State is the lifecycle state of a Subscription.
type State int

const (
	StateIdle State = iota
	StateSubscribing
	StateActive
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

var ErrAlreadySubscribed = errors.New("subscription handle already used")

// Subscription is a one-shot binding of a conversation, a local participant
// and a callback. It moves Idle -> Subscribing -> Active -> TornDown and
// never leaves TornDown.
//
// onMessage runs on the broker's dispatch goroutine while the handle holds a
// read lock; it must not call Unsubscribe on the same handle synchronously.
type Subscription struct {
	id     string
	broker *Broker

	mu                 sync.RWMutex
	state              State
	conversationID     string
	localParticipantID string
	onMessage          func(domain.Message)
	err                error
	done               chan struct{}
}

func newSubscription(b *Broker) *Subscription {
	return &Subscription{
		broker: b,
		done:   make(chan struct{}),
	}
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Subscription) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// Done is closed when the handle reaches TornDown.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is ErrChannelUnavailable after a lost feed, nil after Unsubscribe.
func (s *Subscription) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Subscribe binds the handle. Messages sent by localParticipantID are never
// passed to onMessage. If Unsubscribe runs while the feed subscription is
// being established, the handle ends TornDown and Subscribe returns nil.
func (s *Subscription) Subscribe(ctx context.Context, conversationID, localParticipantID string, onMessage func(domain.Message)) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadySubscribed
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateSubscribing
	s.conversationID = conversationID
	s.localParticipantID = localParticipantID
	s.onMessage = onMessage
	s.mu.Unlock()

	err := s.broker.attach(s)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.state != StateTornDown {
			s.state = StateTornDown
			s.err = err
			close(s.done)
		}
		return err
	}
	if s.state == StateTornDown {
		s.broker.detach(s)
		return s.err
	}
	s.state = StateActive
	return nil
}

// Unsubscribe tears the handle down. It is idempotent and safe to call
// concurrently with a delivery; once it returns, onMessage is not invoked again.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTornDown {
		return
	}
	wasAttached := s.state != StateIdle
	s.state = StateTornDown
	close(s.done)
	if wasAttached {
		s.broker.detach(s)
	}
}

func (s *Subscription) deliver(msg domain.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateSubscribing && s.state != StateActive {
		return
	}
	if msg.SenderID == s.localParticipantID {
		return
	}
	s.onMessage(msg)
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTornDown {
		return
	}
	s.state = StateTornDown
	s.err = err
	close(s.done)
}
