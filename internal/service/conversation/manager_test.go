package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/completion"
)

type staticResolver map[string]completion.Backend

func (r staticResolver) Get(id string) (completion.Backend, error) {
	if b, ok := r[id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", completion.ErrBackendNotFound, id)
}

func newManager() (*Manager, *fakeBackend) {
	be := &fakeBackend{name: "OpenAI"}
	profiles := backend.NewMemoryStore([]backend.Profile{
		{ID: "openai", Name: "OpenAI", Kind: backend.KindRawHTTP},
		{ID: "pirate", Name: "Pirate", Kind: backend.KindRawHTTP, SystemPrompt: "Talk like a pirate."},
	}, "openai")
	resolver := staticResolver{"openai": be, "pirate": be}
	return NewManager(chatservice.NewService(), resolver, profiles, nil, "default prompt"), be
}

func TestManagerDefaultsBackend(t *testing.T) {
	assert := require.New(t)

	m, _ := newManager()
	session, err := m.CreateSession(context.Background(), "")
	assert.NoError(err)
	assert.Equal("openai", session.BackendID)

	_, err = m.CreateSession(context.Background(), "missing")
	assert.ErrorIs(err, completion.ErrBackendNotFound)
}

func TestManagerReusesController(t *testing.T) {
	assert := require.New(t)

	m, _ := newManager()
	session, _ := m.CreateSession(context.Background(), "openai")

	a, err := m.Controller(context.Background(), session.ID)
	assert.NoError(err)
	b, err := m.Controller(context.Background(), session.ID)
	assert.NoError(err)
	assert.Same(a, b)

	_, err = m.Controller(context.Background(), "nope")
	assert.ErrorIs(err, chatservice.ErrSessionNotFound)
}

func TestManagerProfilePromptOverridesDefault(t *testing.T) {
	assert := require.New(t)

	m, be := newManager()
	plain, _ := m.CreateSession(context.Background(), "openai")
	pirate, _ := m.CreateSession(context.Background(), "pirate")

	for _, id := range []string{plain.ID, pirate.ID} {
		c, err := m.Controller(context.Background(), id)
		assert.NoError(err)
		_, err = c.Submit(context.Background(), chat.TurnInput{Text: "hi"})
		assert.NoError(err)
	}
	assert.Equal([]string{"default prompt", "Talk like a pirate."}, be.sys)
}

func TestManagerSessionsAreIsolated(t *testing.T) {
	assert := require.New(t)

	m, _ := newManager()
	a, _ := m.CreateSession(context.Background(), "")
	b, _ := m.CreateSession(context.Background(), "")

	ca, _ := m.Controller(context.Background(), a.ID)
	cb, _ := m.Controller(context.Background(), b.ID)
	_, _ = ca.Submit(context.Background(), chat.TurnInput{Text: "only a"})

	assert.Len(ca.Messages(), 2)
	assert.Empty(cb.Messages())
}

func TestManagerDeleteSession(t *testing.T) {
	assert := require.New(t)

	m, _ := newManager()
	session, _ := m.CreateSession(context.Background(), "")
	_, _ = m.Controller(context.Background(), session.ID)

	assert.NoError(m.DeleteSession(context.Background(), session.ID))
	_, err := m.Controller(context.Background(), session.ID)
	assert.ErrorIs(err, chatservice.ErrSessionNotFound)
	assert.ErrorIs(m.DeleteSession(context.Background(), session.ID), chatservice.ErrSessionNotFound)
}

func TestManagerDeleteLeavesNoControllerBehind(t *testing.T) {
	assert := require.New(t)

	m, _ := newManager()
	for i := 0; i < 50; i++ {
		session, err := m.CreateSession(context.Background(), "")
		assert.NoError(err)

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = m.Controller(context.Background(), session.ID)
			}()
		}
		assert.NoError(m.DeleteSession(context.Background(), session.ID))
		wg.Wait()

		m.mu.RLock()
		_, leaked := m.controllers[session.ID]
		m.mu.RUnlock()
		assert.False(leaked, "controller survived its session")
	}
}

func TestManagerDeleteBusySession(t *testing.T) {
	assert := require.New(t)

	be := &fakeBackend{name: "OpenAI", gate: make(chan struct{})}
	profiles := backend.NewMemoryStore([]backend.Profile{{ID: "openai", Name: "OpenAI", Kind: backend.KindRawHTTP}}, "openai")
	m := NewManager(chatservice.NewService(), staticResolver{"openai": be}, profiles, nil, "prompt")

	session, _ := m.CreateSession(context.Background(), "")
	c, _ := m.Controller(context.Background(), session.ID)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), chat.TurnInput{Text: "hi"})
		done <- err
	}()
	assert.Eventually(c.Busy, time.Second, time.Millisecond)

	assert.ErrorIs(m.DeleteSession(context.Background(), session.ID), ErrBusy)
	close(be.gate)
	assert.NoError(<-done)
	assert.NoError(m.DeleteSession(context.Background(), session.ID))
}
