package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

// Storage is an in-process session backend. A single RWMutex serializes
// mutations; reads run concurrently. Records are copied on the way in and
// out so callers never alias the stored maps.
type Storage struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func New() *Storage {
	return &Storage{
		sessions: make(map[string]models.Session),
	}
}

func (s *Storage) SaveSession(_ context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = cloneSession(sess)

	return nil
}

func (s *Storage) Session(_ context.Context, id string) (*models.Session, error) {
	const op = "storage.memory.Session"

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	copied := cloneSession(sess)

	return &copied, nil
}

func (s *Storage) UpdateSession(_ context.Context, sess models.Session) error {
	const op = "storage.memory.UpdateSession"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	s.sessions[sess.ID] = cloneSession(sess)

	return nil
}

func (s *Storage) DeleteSession(_ context.Context, id string) error {
	const op = "storage.memory.DeleteSession"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
	}

	delete(s.sessions, id)

	return nil
}

func (s *Storage) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			deleted++
		}
	}

	return deleted, nil
}

func cloneSession(sess models.Session) models.Session {
	sess.Data = maps.Clone(sess.Data)
	return sess
}
