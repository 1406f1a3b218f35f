package domain

import "time"

// Conversation is the single thread between two participants.
type Conversation struct {
	ID                  string     `json:"id"`
	ParticipantA        string     `json:"participant_a"`
	ParticipantB        string     `json:"participant_b"`
	LastMessageBody     *string    `json:"last_message_body,omitempty"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
	LastMessageSenderID *string    `json:"last_message_sender_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// HasParticipant reports whether id is one of the two members.
func (c *Conversation) HasParticipant(id string) bool {
	return id != "" && (c.ParticipantA == id || c.ParticipantB == id)
}

// Counterpart returns the member that is not id.
func (c *Conversation) Counterpart(id string) string {
	if c.ParticipantA == id {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// PairKey is the canonical, order-independent key of a participant pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// ConversationModel is the GORM model for the conversations table.
type ConversationModel struct {
	ID                  string     `gorm:"type:varchar(36);primaryKey"`
	ParticipantA        string     `gorm:"type:varchar(64);not null;index"`
	ParticipantB        string     `gorm:"type:varchar(64);not null;index"`
	PairKey             string     `gorm:"type:varchar(130);uniqueIndex;not null"`
	LastMessageBody     *string    `gorm:"type:text"`
	LastMessageAt       *time.Time `gorm:"index"`
	LastMessageSenderID *string    `gorm:"type:varchar(64)"`
	CreatedAt           time.Time  `gorm:"autoCreateTime"`
}

// TableName specifies the table name for ConversationModel.
func (ConversationModel) TableName() string {
	return "conversations"
}

// ToDomain converts ConversationModel to domain Conversation.
func (m *ConversationModel) ToDomain() *Conversation {
	return &Conversation{
		ID:                  m.ID,
		ParticipantA:        m.ParticipantA,
		ParticipantB:        m.ParticipantB,
		LastMessageBody:     m.LastMessageBody,
		LastMessageAt:       m.LastMessageAt,
		LastMessageSenderID: m.LastMessageSenderID,
		CreatedAt:           m.CreatedAt,
	}
}

// ConversationToModel converts domain Conversation to ConversationModel.
func ConversationToModel(c *Conversation) *ConversationModel {
	return &ConversationModel{
		ID:                  c.ID,
		ParticipantA:        c.ParticipantA,
		ParticipantB:        c.ParticipantB,
		PairKey:             PairKey(c.ParticipantA, c.ParticipantB),
		LastMessageBody:     c.LastMessageBody,
		LastMessageAt:       c.LastMessageAt,
		LastMessageSenderID: c.LastMessageSenderID,
		CreatedAt:           c.CreatedAt,
	}
}
