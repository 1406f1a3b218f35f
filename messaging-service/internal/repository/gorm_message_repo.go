package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create inserts a message. Timestamps are kept at microsecond precision,
// the finest all supported databases store.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Microsecond)

	if err := r.db.WithContext(ctx).Create(domain.MessageToModel(msg)).Error; err != nil {
		return storageErr(err)
	}
	return nil
}

// ListByConversation returns all messages of a conversation in ascending order.
func (r *GormMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var models []domain.MessageModel
	result := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&models)
	if result.Error != nil {
		return nil, storageErr(result.Error)
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, *models[i].ToDomain())
	}
	return messages, nil
}
