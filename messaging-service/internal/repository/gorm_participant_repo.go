package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/israelseleshi/building-management-system-sub000/pkg/database"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
)

// GormParticipantRepository implements ParticipantRepository using GORM.
type GormParticipantRepository struct {
	db *gorm.DB
}

// NewGormParticipantRepository creates a new GORM-based participant repository.
func NewGormParticipantRepository(db *gorm.DB) *GormParticipantRepository {
	return &GormParticipantRepository{db: db}
}

// Get retrieves a participant by ID.
func (r *GormParticipantRepository) Get(ctx context.Context, id string) (*domain.Participant, error) {
	var model domain.ParticipantModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, storageErr(result.Error)
	}
	return model.ToDomain(), nil
}

// Create inserts a participant. Used by seeding and tests; in production
// rows come from the identity system.
func (r *GormParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	if p.Roles == nil {
		p.Roles = []string{}
	}
	if err := r.db.WithContext(ctx).Create(domain.ParticipantToModel(p)).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return domain.ErrParticipantExists
		}
		return storageErr(err)
	}
	return nil
}
