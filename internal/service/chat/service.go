package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

var (
	ErrBackendRequired = errors.New("backend id is required")
	ErrSessionNotFound = errors.New("session not found")
)

type entry struct {
	session chat.Session
	store   *Store
}

// Service keeps the live sessions of this process. Nothing outlives a restart.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService bootstraps the in-memory session registry.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]*entry),
	}
}

// CreateSession provisions an anonymous session bound to a backend profile.
func (s *Service) CreateSession(_ context.Context, backendID string) (chat.Session, error) {
	if backendID == "" {
		return chat.Session{}, ErrBackendRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		BackendID: backendID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session, store: NewStore()}
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return e.session, nil
}

// Store returns the transcript store owned by the session.
func (s *Service) Store(_ context.Context, sessionID string) (*Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.store, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	store, err := s.Store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return store.All(), nil
}

// DeleteSession drops the session and its transcript.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// Count reports the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
