package domain

// ResolveConversationRequest opens (or creates) the conversation with a participant.
type ResolveConversationRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

// SendMessageRequest represents an append request.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// ComposeLinkRequest represents a deep-link compose request.
type ComposeLinkRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	Prefill  string `json:"prefill"`
	AutoSend bool   `json:"auto_send"`
}

// ComposeLinkResponse is the composed link as parameters and as an encoded query.
type ComposeLinkResponse struct {
	Params map[string]string `json:"params"`
	Query  string            `json:"query"`
}

// ConversationListResponse is the inbox of the caller.
type ConversationListResponse struct {
	Conversations []*Conversation `json:"conversations"`
}

// MessageListResponse is the full history of a conversation.
type MessageListResponse struct {
	Messages []Message `json:"messages"`
}
