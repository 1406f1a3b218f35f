package service

import (
	"context"
	"time"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/repository"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
	"github.com/israelseleshi/building-management-system-sub000/pkg/storage"
)

type participantServiceImpl struct {
	participants repository.ParticipantRepository
	avatars      storage.URLSigner
	avatarTTL    time.Duration
}

// NewParticipantDirectory returns a directory that resolves avatar references
// with avatars. A nil signer leaves AvatarURL empty.
func NewParticipantDirectory(participants repository.ParticipantRepository, avatars storage.URLSigner, avatarTTL time.Duration) ParticipantDirectory {
	return &participantServiceImpl{
		participants: participants,
		avatars:      avatars,
		avatarTTL:    avatarTTL,
	}
}

func (s *participantServiceImpl) Get(ctx context.Context, participantID string) (*domain.ParticipantProfile, error) {
	p, err := s.participants.Get(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return s.Profile(ctx, p), nil
}

// Profile never fails; an avatar that cannot be signed is left out.
func (s *participantServiceImpl) Profile(ctx context.Context, p *domain.Participant) *domain.ParticipantProfile {
	profile := &domain.ParticipantProfile{Participant: *p}
	if s.avatars == nil || p.AvatarRef == nil || *p.AvatarRef == "" {
		return profile
	}

	u, err := s.avatars.SignedURL(ctx, *p.AvatarRef, s.avatarTTL)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldParticipantID, p.ID).Msg("failed to sign avatar url")
		return profile
	}
	profile.AvatarURL = u
	return profile
}
