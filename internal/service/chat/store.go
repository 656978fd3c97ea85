package chat

import (
	"sync"

	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

// Store holds the ordered transcript of one session.
// The controller is its only writer; the lock only protects readers such as
// the rendering layer from observing a half-grown slice.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{messages: make([]chat.Message, 0, 16)}
}

// Append adds a message to the end of the transcript.
func (s *Store) Append(message chat.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()
}

// All returns a copy of the transcript in insertion order.
func (s *Store) All() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len reports the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Reset empties the transcript while keeping the store usable.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = make([]chat.Message, 0, 16)
	s.mu.Unlock()
}
