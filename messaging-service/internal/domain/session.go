package domain

import "sync"

// Session is the connection-scoped identity of a WebSocket client.
type Session struct {
	ID            string
	ParticipantID string
	Authenticated bool
	mu            sync.RWMutex
}

func NewSession(id string) *Session {
	return &Session{ID: id}
}

func (s *Session) Authenticate(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ParticipantID = participantID
	s.Authenticated = true
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Authenticated
}

func (s *Session) GetParticipantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ParticipantID
}
