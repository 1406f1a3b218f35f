package domain

import "time"

// PendingStatus is the lifecycle state of a locally sent message.
type PendingStatus int

const (
	PendingStatusPending PendingStatus = iota
	PendingStatusConfirmed
	PendingStatusFailed
)

func (s PendingStatus) String() string {
	switch s {
	case PendingStatusPending:
		return "pending"
	case PendingStatusConfirmed:
		return "confirmed"
	case PendingStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingMessage is the optimistic, never-persisted record of a send.
// Message is set once confirmed; Err once failed.
type PendingMessage struct {
	LocalID        string
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
	Status         PendingStatus
	Message        *Message
	Err            error
}
