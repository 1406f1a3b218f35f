package service

import (
	"context"
	"time"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

// ConversationResolver finds or creates the single conversation of a pair.
type ConversationResolver interface {
	Resolve(ctx context.Context, participantA, participantB string) (*domain.Conversation, error)
	Get(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListForParticipant(ctx context.Context, participantID string) ([]*domain.Conversation, error)
}

// MessageStore is the append-only, ordered message log of a conversation.
type MessageStore interface {
	Append(ctx context.Context, conversationID, senderID, body string) (*domain.Message, error)
	ListHistory(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// SummaryUpdater maintains the last-message preview of a conversation.
type SummaryUpdater interface {
	UpdateSummary(ctx context.Context, conversationID, body, senderID string, ts time.Time) error
}

// ParticipantDirectory serves participant profiles for chat headers and
// inbox rows.
type ParticipantDirectory interface {
	Get(ctx context.Context, participantID string) (*domain.ParticipantProfile, error)
	Profile(ctx context.Context, p *domain.Participant) *domain.ParticipantProfile
}
