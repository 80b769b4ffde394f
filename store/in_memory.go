package store

import (
	"fmt"
	"sync"

	"github.com/hupe1980/parley/core"
)

// InMemoryStore is a volatile ConversationStore implementation storing
// conversations in a process local map. It is safe for concurrent access and
// best suited for tests or ephemeral demo servers. Each returned
// conversation is cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*core.Conversation
}

var _ core.ConversationStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*core.Conversation)}
}

// Create stores a clone of the conversation snapshot.
func (s *InMemoryStore) Create(c *core.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c.Clone()
	return nil
}

// Get returns a clone of an existing conversation or
// core.ErrConversationNotFound.
func (s *InMemoryStore) Get(id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	return c.Clone(), nil
}

// AppendMessage adds a committed message to the stored transcript.
func (s *InMemoryStore) AppendMessage(id string, m core.Message) error {
	c, err := s.get(id)
	if err != nil {
		return err
	}
	c.Append(m)
	return nil
}

// UpdateStatus records a lifecycle transition.
func (s *InMemoryStore) UpdateStatus(id string, status core.Status) error {
	c, err := s.get(id)
	if err != nil {
		return err
	}
	return c.SetStatus(status)
}

// UpdateCursor records an advanced speaking-order cursor.
func (s *InMemoryStore) UpdateCursor(id string, cursor int) error {
	c, err := s.get(id)
	if err != nil {
		return err
	}
	c.SetCursor(cursor)
	return nil
}

// AddParticipant records a participant admitted mid-conversation.
func (s *InMemoryStore) AddParticipant(id string, participantID string) error {
	c, err := s.get(id)
	if err != nil {
		return err
	}
	c.AddParticipant(participantID)
	return nil
}

func (s *InMemoryStore) get(id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	return c, nil
}
