package completion

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
)

var ErrBackendNotFound = errors.New("backend not found")

// Registry maps profile ids to ready-to-use backends.
type Registry struct {
	mu       sync.RWMutex
	profiles backend.Store
	backends map[string]Backend
}

// NewRegistry constructs a backend for every chat profile in store.
func NewRegistry(profiles backend.Store, httpClient *http.Client) (*Registry, error) {
	r := &Registry{profiles: profiles, backends: make(map[string]Backend)}

	for _, p := range profiles.List() {
		switch p.Kind {
		case backend.KindRawHTTP:
			r.backends[p.ID] = NewRawHTTPBackend(p, httpClient)
		case backend.KindSDKChat:
			r.backends[p.ID] = NewSDKChatBackend(p, nil)
		default:
			return nil, fmt.Errorf("profile %q: kind %q cannot serve chat completions", p.ID, p.Kind)
		}
	}
	return r, nil
}

// Register replaces the backend bound to id.
func (r *Registry) Register(id string, b Backend) {
	r.mu.Lock()
	r.backends[id] = b
	r.mu.Unlock()
}

// Get returns the backend bound to a profile id.
func (r *Registry) Get(id string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, id)
	}
	return b, nil
}

// Profiles exposes the underlying profile store.
func (r *Registry) Profiles() backend.Store {
	return r.profiles
}
