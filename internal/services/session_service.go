package services

import (
	"context"
	"sync"
	"time"

	"vpn-assistant/internal/domain"
)

const DefaultSessionTTL = 30 * time.Minute

// SessionService is the in-memory dialogue store. Sessions idle for longer
// than the ttl read back as StateStart.
type SessionService struct {
	sessions map[int64]*domain.Session
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// NewSessionService creates a new session service instance
func NewSessionService(ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &SessionService{
		sessions: make(map[int64]*domain.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the chat's state, or StateStart when unknown or expired
func (s *SessionService) Get(_ context.Context, chatID int64) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[chatID]
	if !exists {
		return domain.StateStart{}, nil
	}

	if s.now().Sub(session.UpdatedAt) > s.ttl {
		delete(s.sessions, chatID)
		return domain.StateStart{}, nil
	}

	return session.State, nil
}

// Set stores the chat's state. Storing StateStart drops the session.
func (s *SessionService) Set(_ context.Context, chatID int64, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, idle := state.(domain.StateStart); idle || state == nil {
		delete(s.sessions, chatID)
		return nil
	}

	now := s.now()
	session, exists := s.sessions[chatID]
	if !exists {
		session = &domain.Session{ChatID: chatID, CreatedAt: now}
		s.sessions[chatID] = session
	}

	session.State = state
	session.UpdatedAt = now
	return nil
}

// Clear removes a session from memory
func (s *SessionService) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, chatID)
	return nil
}

// Sweep drops every expired session and returns how many were removed
func (s *SessionService) Sweep(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	now := s.now()
	for chatID, session := range s.sessions {
		if now.Sub(session.UpdatedAt) > s.ttl {
			delete(s.sessions, chatID)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored sessions
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}
