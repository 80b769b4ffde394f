package core

// ConversationStore persists conversations and their transcripts. It is a
// plain record store: the engine owns all state-machine logic and calls the
// store with simple CRUD operations. Failures after creation are soft
// errors: the engine logs them and keeps the conversation live from its
// in-memory state.
type ConversationStore interface {
	// Create persists a new conversation snapshot.
	Create(c *Conversation) error
	// Get returns a snapshot of the conversation or
	// ErrConversationNotFound.
	Get(id string) (*Conversation, error)
	// AppendMessage records a committed transcript message.
	AppendMessage(id string, m Message) error
	// UpdateStatus records a lifecycle transition.
	UpdateStatus(id string, status Status) error
	// UpdateCursor records an advanced speaking-order cursor.
	UpdateCursor(id string, cursor int) error
	// AddParticipant records a participant admitted mid-conversation.
	AddParticipant(id string, participantID string) error
}
