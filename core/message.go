package core

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single committed transcript record. After commit it should be
// treated as immutable: the transcript is append-only and never reordered.
// Sender is a participant id for AI replies or the user's display name for
// user-authored messages.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	IsUser         bool      `json:"is_user"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessage constructs an AI-authored message for a conversation with a
// fresh id and UTC timestamp.
func NewMessage(conversationID, sender, text string) Message {
	return Message{
		ID:             NewID(),
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewUserMessage constructs a user-authored message. Sender is the user's
// display name, not a participant id.
func NewUserMessage(conversationID, sender, text string) Message {
	m := NewMessage(conversationID, sender, text)
	m.IsUser = true
	return m
}

// NewID generates a new unique identifier for conversations and messages.
func NewID() string { return uuid.NewString() }
