package domain

import (
	"sort"
	"time"
)

// Message is one immutable entry of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageModel is the GORM model for the messages table. Seq records
// insertion order and breaks ties between equal timestamps.
type MessageModel struct {
	Seq            uint64    `gorm:"primaryKey;autoIncrement"`
	ID             string    `gorm:"type:varchar(26);uniqueIndex;not null"`
	ConversationID string    `gorm:"type:varchar(36);not null;index:idx_messages_conversation_created,priority:1"`
	SenderID       string    `gorm:"type:varchar(64);not null"`
	Body           string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null;index:idx_messages_conversation_created,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

// MessageToModel converts domain Message to MessageModel. Seq is left for the
// database to assign.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	}
}

// InsertMessage adds msg to a list sorted by CreatedAt, keeping it after any
// entry with an equal timestamp. A message whose ID is already present is
// ignored; the second return value reports whether msg was added.
func InsertMessage(list []Message, msg Message) ([]Message, bool) {
	for i := range list {
		if list[i].ID == msg.ID {
			return list, false
		}
	}
	i := sort.Search(len(list), func(i int) bool {
		return list[i].CreatedAt.After(msg.CreatedAt)
	})
	list = append(list, Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list, true
}
