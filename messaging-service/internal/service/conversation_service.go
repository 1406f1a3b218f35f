package service

import (
	"context"
	"time"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/audit"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/identity"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/repository"
)

type conversationServiceImpl struct {
	identity      identity.Provider
	participants  repository.ParticipantRepository
	conversations repository.ConversationRepository
}

func NewConversationService(
	idp identity.Provider,
	participants repository.ParticipantRepository,
	conversations repository.ConversationRepository,
) ConversationResolver {
	return &conversationServiceImpl{
		identity:      idp,
		participants:  participants,
		conversations: conversations,
	}
}

func (s *conversationServiceImpl) Resolve(ctx context.Context, participantA, participantB string) (*domain.Conversation, error) {
	caller, err := s.identity.CurrentParticipant(ctx)
	if err != nil {
		return nil, err
	}

	if participantA == "" || participantB == "" || participantA == participantB {
		return nil, domain.ErrInvalidParticipants
	}

	for _, id := range []string{participantA, participantB} {
		if id == caller.ID {
			continue
		}
		if _, err := s.participants.Get(ctx, id); err != nil {
			return nil, err
		}
	}

	conv, err := s.conversations.FindOrCreate(ctx, participantA, participantB)
	if err != nil {
		return nil, err
	}

	audit.LogWithTarget(ctx, audit.ActionResolveConversation, caller.ID, conv.ID, "conversation resolved")
	return conv, nil
}

func (s *conversationServiceImpl) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return s.conversations.Get(ctx, conversationID)
}

func (s *conversationServiceImpl) ListForParticipant(ctx context.Context, participantID string) ([]*domain.Conversation, error) {
	return s.conversations.ListForParticipant(ctx, participantID)
}

type summaryUpdaterImpl struct {
	conversations repository.ConversationRepository
}

// NewSummaryUpdater returns a SummaryUpdater that overwrites the preview
// fields unconditionally; the last call wins.
func NewSummaryUpdater(conversations repository.ConversationRepository) SummaryUpdater {
	return &summaryUpdaterImpl{conversations: conversations}
}

func (s *summaryUpdaterImpl) UpdateSummary(ctx context.Context, conversationID, body, senderID string, ts time.Time) error {
	return s.conversations.UpdateSummary(ctx, conversationID, body, senderID, ts)
}
