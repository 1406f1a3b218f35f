package repository

import (
	"gorm.io/gorm"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/domain"
	"github.com/israelseleshi/building-management-system-sub000/pkg/database"
)

// Migrate creates or updates the relational tables. withMessages is false
// when the message log lives in Cassandra.
func Migrate(db *gorm.DB, withMessages bool) error {
	models := []interface{}{
		&domain.ParticipantModel{},
		&domain.ConversationModel{},
	}
	if withMessages {
		models = append(models, &domain.MessageModel{})
	}
	return database.AutoMigrate(db, models...)
}
