package conversation

import (
	"context"
	"sync"

	"github.com/zhouzirui/chatdesk/backend/internal/metrics"
	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/completion"
)

// BackendResolver looks up the completion backend bound to a profile id.
type BackendResolver interface {
	Get(id string) (completion.Backend, error)
}

// Manager owns the session registry and one controller per live session.
type Manager struct {
	sessions      *chatservice.Service
	backends      BackendResolver
	profiles      backend.Store
	transcriber   Transcriber
	defaultPrompt string

	mu          sync.RWMutex
	notifier    Notifier
	controllers map[string]*Controller
}

// NewManager wires sessions to backends. defaultPrompt applies to profiles without their own.
func NewManager(sessions *chatservice.Service, backends BackendResolver, profiles backend.Store, transcriber Transcriber, defaultPrompt string) *Manager {
	return &Manager{
		sessions:      sessions,
		backends:      backends,
		profiles:      profiles,
		transcriber:   transcriber,
		defaultPrompt: defaultPrompt,
		controllers:   make(map[string]*Controller),
	}
}

// SetNotifier registers the renderer notified on every transition.
// Controllers created afterwards use it.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// Profiles returns the configured backend profiles.
func (m *Manager) Profiles() backend.Store {
	return m.profiles
}

// CreateSession opens a session on backendID, or the default profile when empty.
func (m *Manager) CreateSession(ctx context.Context, backendID string) (chat.Session, error) {
	if backendID == "" {
		backendID = m.profiles.Default().ID
	}
	if _, err := m.backends.Get(backendID); err != nil {
		return chat.Session{}, err
	}

	session, err := m.sessions.CreateSession(ctx, backendID)
	if err != nil {
		return chat.Session{}, err
	}
	metrics.ActiveSessions.Inc()
	return session, nil
}

// GetSession returns session metadata.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	return m.sessions.GetSession(ctx, sessionID)
}

// Controller returns the controller of a session, creating it on first use.
func (m *Manager) Controller(ctx context.Context, sessionID string) (*Controller, error) {
	m.mu.RLock()
	c, ok := m.controllers[sessionID]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	session, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	store, err := m.sessions.Store(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	be, err := m.backends.Get(session.BackendID)
	if err != nil {
		return nil, err
	}

	prompt := m.defaultPrompt
	if profile, ok := m.profiles.FindByID(session.BackendID); ok && profile.SystemPrompt != "" {
		prompt = profile.SystemPrompt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.controllers[sessionID]; ok {
		return c, nil
	}
	// DeleteSession may have run since the lookup above.
	if _, err := m.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	c = NewController(Options{
		SessionID:    sessionID,
		Store:        store,
		Backend:      be,
		SystemPrompt: prompt,
		Transcriber:  m.transcriber,
		Notifier:     m.notifier,
	})
	m.controllers[sessionID] = c
	return c, nil
}

// DeleteSession drops the session and its controller. A busy session is kept.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.controllers[sessionID]; ok && c.Busy() {
		return ErrBusy
	}
	if err := m.sessions.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	delete(m.controllers, sessionID)
	metrics.ActiveSessions.Dec()
	return nil
}
