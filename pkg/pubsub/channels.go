package pubsub

import (
	"fmt"
	"strings"
	"time"
)

// Channel naming conventions for the messaging change feed.
const (
	// ChannelConversationMessages carries row-insert events of the messages collection.
	ChannelConversationMessages = "chat:conversation:%s:messages"

	// PatternConversationMessages matches every conversation's message channel.
	PatternConversationMessages = "chat:conversation:*:messages"
)

// Event types.
const (
	EventMessageCreated = "message.created"
)

// ConversationMessagesChannel returns the channel name for a conversation's inserted messages.
func ConversationMessagesChannel(conversationID string) string {
	return fmt.Sprintf(ChannelConversationMessages, conversationID)
}

// ConversationIDFromChannel extracts the conversation ID from a message channel name.
func ConversationIDFromChannel(channel string) (string, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != "chat" || parts[1] != "conversation" || parts[3] != "messages" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// MessageRow is the payload of EventMessageCreated: the inserted row as stored.
type MessageRow struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}
