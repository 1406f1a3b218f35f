package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNotFound           = errors.New("not found")
	ErrEmptyMessage       = errors.New("message body is empty")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrChannelUnavailable = errors.New("realtime channel unavailable")

	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
	ErrParticipantNotFound  = fmt.Errorf("participant %w", ErrNotFound)

	ErrParticipantExists   = errors.New("participant already exists")
	ErrNotParticipant      = errors.New("caller is not a participant of the conversation")
	ErrInvalidParticipants = errors.New("a conversation needs two distinct participants")
	ErrInvalidLink         = errors.New("invalid deep link")

	// ErrSuperseded is returned by an open that lost to a newer one.
	ErrSuperseded = errors.New("superseded by a newer request")
)
