// Package identity answers "who is the caller" for the messaging core.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/repository"
)

// Provider resolves the authenticated participant of a request.
type Provider interface {
	CurrentParticipant(ctx context.Context) (*domain.Participant, error)
}

type ctxKey struct{}

// WithParticipantID attaches a verified participant ID to ctx.
func WithParticipantID(ctx context.Context, participantID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, participantID)
}

// ParticipantID returns the participant ID stored in ctx, if any.
func ParticipantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// ContextProvider reads the participant ID from the context and loads the
// participant record.
type ContextProvider struct {
	participants repository.ParticipantRepository
}

func NewContextProvider(participants repository.ParticipantRepository) *ContextProvider {
	return &ContextProvider{participants: participants}
}

func (p *ContextProvider) CurrentParticipant(ctx context.Context) (*domain.Participant, error) {
	id, ok := ParticipantID(ctx)
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}

	participant, err := p.participants.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: participant %s is not provisioned", domain.ErrNotAuthenticated, id)
		}
		return nil, err
	}
	return participant, nil
}
