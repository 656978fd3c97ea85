package backend

// Store exposes backend profile retrieval for HTTP handlers and the conversation layer.
type Store interface {
	List() []Profile
	FindByID(id string) (Profile, bool)
	Default() Profile
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items     []Profile
	defaultID string
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
// defaultID falls back to the first profile when it does not match any item.
func NewMemoryStore(items []Profile, defaultID string) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...), defaultID: defaultID}
}

// List returns the configured profiles.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByID looks up a profile by identifier.
func (s *MemoryStore) FindByID(id string) (Profile, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Profile{}, false
}

// Default returns the profile used when a session does not name one.
func (s *MemoryStore) Default() Profile {
	if p, ok := s.FindByID(s.defaultID); ok {
		return p
	}
	if len(s.items) > 0 {
		return s.items[0]
	}
	return Profile{}
}
