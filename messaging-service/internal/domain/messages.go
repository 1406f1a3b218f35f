package domain

// WebSocket message types from client.
const (
	MsgTypeAuth              = "auth"
	MsgTypeOpenConversation  = "open_conversation"
	MsgTypeOpenLink          = "open_link"
	MsgTypeCompose           = "compose"
	MsgTypeSend              = "send"
	MsgTypeReload            = "reload"
	MsgTypeCloseConversation = "close_conversation"
	MsgTypePing              = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult         = "auth_result"
	MsgTypeConversationOpened = "conversation_opened"
	MsgTypeMessage            = "message"
	MsgTypePending            = "pending"
	MsgTypeError              = "error"
	MsgTypePong               = "pong"
)

// Error codes
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeEmptyMessage       = "EMPTY_MESSAGE"
	ErrCodeInvalidLink        = "INVALID_LINK"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeNoConversation     = "NO_CONVERSATION"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type OpenConversationMessage struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
}

// OpenLinkMessage carries the raw query string of a deep link.
type OpenLinkMessage struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

type ComposeMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendMessageWS sends Content when set, otherwise the current compose text.
type SendMessageWS struct {
	Type    string  `json:"type"`
	Content *string `json:"content,omitempty"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type          string `json:"type"`
	Success       bool   `json:"success"`
	ParticipantID string `json:"participant_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	Message       string `json:"message,omitempty"`
}

type ConversationOpenedMessage struct {
	Type         string        `json:"type"`
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
	Compose      string        `json:"compose"`
}

type MessageOut struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type PendingOut struct {
	Type    string   `json:"type"`
	LocalID string   `json:"local_id"`
	Status  string   `json:"status"`
	Body    string   `json:"body"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type ComposeOut struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
