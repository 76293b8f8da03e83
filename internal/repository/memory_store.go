package repository

import (
	"context"
	"maps"
	"sync"
)

// memoryStore implements SessionStore in process memory
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]string
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore() SessionStore {
	return &memoryStore{sessions: make(map[string]map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, sessionID string) (map[string]string, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]string, len(s.sessions[sessionID]))
	maps.Copy(values, s.sessions[sessionID])
	return values, nil
}

func (s *memoryStore) Set(_ context.Context, sessionID string, values map[string]string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = make(map[string]string, len(values))
		s.sessions[sessionID] = session
	}
	maps.Copy(session, values)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, sessionID string, keys ...string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	for _, key := range keys {
		delete(session, key)
	}
	if len(session) == 0 {
		delete(s.sessions, sessionID)
	}
	return nil
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}
