package domain

import (
	"github.com/israelseleshi/building-management-system-sub000/pkg/database"
)

const (
	RoleLandlord = "landlord"
	RoleTenant   = "tenant"
)

// Participant is a user who can hold conversations. Rows are provisioned by
// the identity system; this service only reads them.
type Participant struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	AvatarRef   *string  `json:"avatar_ref,omitempty"`
	Roles       []string `json:"roles"`
}

// ParticipantModel is the GORM model for the participants table.
type ParticipantModel struct {
	ID          string               `gorm:"type:varchar(64);primaryKey"`
	DisplayName string               `gorm:"type:varchar(100);not null"`
	AvatarRef   *string              `gorm:"type:varchar(512)"`
	Roles       database.StringArray `gorm:"type:text"`
}

// TableName specifies the table name for ParticipantModel.
func (ParticipantModel) TableName() string {
	return "participants"
}

// ToDomain converts ParticipantModel to domain Participant.
func (m *ParticipantModel) ToDomain() *Participant {
	return &Participant{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		AvatarRef:   m.AvatarRef,
		Roles:       []string(m.Roles),
	}
}

// ParticipantToModel converts domain Participant to ParticipantModel.
func ParticipantToModel(p *Participant) *ParticipantModel {
	return &ParticipantModel{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarRef:   p.AvatarRef,
		Roles:       database.StringArray(p.Roles),
	}
}

// ParticipantProfile is a participant with its avatar reference resolved to
// a fetchable URL.
type ParticipantProfile struct {
	Participant
	AvatarURL string `json:"avatar_url,omitempty"`
}
