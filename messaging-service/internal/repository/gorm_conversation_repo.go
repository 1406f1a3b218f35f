package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
)

// GormConversationRepository implements ConversationRepository using GORM.
type GormConversationRepository struct {
	db  *gorm.DB
	ids idgen.Generator
}

// NewGormConversationRepository creates a new GORM-based conversation
// repository. ids names new conversations.
func NewGormConversationRepository(db *gorm.DB, ids idgen.Generator) *GormConversationRepository {
	return &GormConversationRepository{db: db, ids: ids}
}

// FindOrCreate looks the pair up by its canonical key and inserts it when
// missing. The insert is ON CONFLICT DO NOTHING on pair_key followed by a
// re-read, so a concurrent first contact returns the winner's row.
func (r *GormConversationRepository) FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error) {
	key := domain.PairKey(a, b)

	existing, err := r.getByPairKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrConversationNotFound) {
		return nil, err
	}

	id, err := r.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate conversation id: %w", err)
	}

	model := domain.ConversationToModel(&domain.Conversation{
		ID:           id,
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    time.Now().UTC(),
	})
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return nil, storageErr(result.Error)
	}

	return r.getByPairKey(ctx, key)
}

func (r *GormConversationRepository) getByPairKey(ctx context.Context, key string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	result := r.db.WithContext(ctx).First(&model, "pair_key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, storageErr(result.Error)
	}
	return model.ToDomain(), nil
}

// Get retrieves a conversation by ID.
func (r *GormConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, storageErr(result.Error)
	}
	return model.ToDomain(), nil
}

// ListForParticipant returns the inbox of a participant, most recent activity first.
func (r *GormConversationRepository) ListForParticipant(ctx context.Context, participantID string) ([]*domain.Conversation, error) {
	var models []domain.ConversationModel
	result := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", participantID, participantID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Order("id ASC").
		Find(&models)
	if result.Error != nil {
		return nil, storageErr(result.Error)
	}

	conversations := make([]*domain.Conversation, 0, len(models))
	for i := range models {
		conversations = append(conversations, models[i].ToDomain())
	}
	return conversations, nil
}

// UpdateSummary overwrites the last-message preview. Last write wins.
func (r *GormConversationRepository) UpdateSummary(ctx context.Context, id, body, senderID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.ConversationModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_body":      body,
			"last_message_at":        at.UTC(),
			"last_message_sender_id": senderID,
		})
	if result.Error != nil {
		return storageErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
