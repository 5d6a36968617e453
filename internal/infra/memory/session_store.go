package memory

import (
	"context"
	"sync"
	"time"

	"dingleup-reward-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.RewardSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.RewardSession),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.RewardSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.VideoIDs = append([]string(nil), session.VideoIDs...)
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.RewardSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.RewardSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) MarkCompleted(_ context.Context, sessionID string, watchedVideoIDs []string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.Status == domain.SessionCompleted {
		return false, nil
	}
	session.Status = domain.SessionCompleted
	session.WatchedVideoIDs = append([]string(nil), watchedVideoIDs...)
	session.CompletedAt = &at
	s.sessions[sessionID] = session
	return true, nil
}

func (s *SessionStore) PurgeStale(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, session := range s.sessions {
		if session.Status == domain.SessionPending && session.CreatedAt.Before(before) {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged, nil
}

// Len reports how many sessions are stored.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
