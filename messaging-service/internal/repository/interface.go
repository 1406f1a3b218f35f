package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

// ParticipantRepository reads the participants provisioned by the identity system.
type ParticipantRepository interface {
	Get(ctx context.Context, id string) (*domain.Participant, error)
	Create(ctx context.Context, p *domain.Participant) error
}

// ConversationRepository defines the interface for conversation persistence.
type ConversationRepository interface {
	// FindOrCreate returns the conversation of the unordered pair (a, b),
	// inserting it if absent. Concurrent callers converge on one row.
	FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error)
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	// ListForParticipant returns the participant's conversations, latest activity first.
	ListForParticipant(ctx context.Context, participantID string) ([]*domain.Conversation, error)
	UpdateSummary(ctx context.Context, id, body, senderID string, at time.Time) error
}

// MessageRepository defines the interface for the append-only message log.
type MessageRepository interface {
	// Create persists msg. Fields the store normalises (CreatedAt precision)
	// are written back into msg.
	Create(ctx context.Context, msg *domain.Message) error
	// ListByConversation returns every message, oldest first, insertion
	// order breaking timestamp ties.
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
