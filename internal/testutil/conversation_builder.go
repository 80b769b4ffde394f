package testutil

import (
	"github.com/hupe1980/parley/core"
)

// ConversationBuilder provides a fluent helper for constructing conversations
// in tests. Example:
//
//	conv := NewConversationBuilder("conv-1").Topic("cats vs dogs").
//		Participants("Alpha", "Beta").Messages(m1, m2).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type ConversationBuilder struct {
	id           string
	topic        string
	userName     string
	participants []string
	order        []string
	status       core.Status
	cursor       int
	messages     []core.Message
}

// NewConversationBuilder creates a builder with default topic "topic" and
// user "user".
func NewConversationBuilder(id string) *ConversationBuilder {
	return &ConversationBuilder{id: id, topic: "topic", userName: "user", status: core.StatusActive}
}

// Topic sets the conversation topic (chainable).
func (b *ConversationBuilder) Topic(t string) *ConversationBuilder { b.topic = t; return b }

// User sets the human participant's display name (chainable).
func (b *ConversationBuilder) User(name string) *ConversationBuilder { b.userName = name; return b }

// Participants sets the participant ids; the speaking order defaults to the
// same sequence unless Order is also chained.
func (b *ConversationBuilder) Participants(ids ...string) *ConversationBuilder {
	b.participants = ids
	return b
}

// Order overrides the speaking order (chainable).
func (b *ConversationBuilder) Order(ids ...string) *ConversationBuilder { b.order = ids; return b }

// Status sets the lifecycle status applied after construction (chainable).
func (b *ConversationBuilder) Status(s core.Status) *ConversationBuilder { b.status = s; return b }

// Cursor positions the round-robin cursor (chainable).
func (b *ConversationBuilder) Cursor(c int) *ConversationBuilder { b.cursor = c; return b }

// Message appends a single transcript message (chainable).
func (b *ConversationBuilder) Message(m core.Message) *ConversationBuilder {
	b.messages = append(b.messages, m)
	return b
}

// Messages appends multiple transcript messages (chainable).
func (b *ConversationBuilder) Messages(ms ...core.Message) *ConversationBuilder {
	b.messages = append(b.messages, ms...)
	return b
}

// Build returns a *core.Conversation with the configured transcript, cursor
// and status.
func (b *ConversationBuilder) Build() *core.Conversation {
	order := b.order
	if order == nil {
		order = b.participants
	}
	c := core.NewConversation(b.id, b.topic, b.userName, b.participants, order)
	for _, m := range b.messages {
		c.Append(m)
	}
	c.SetCursor(b.cursor)
	if b.status != core.StatusActive {
		// Ignore the error: builders construct fresh conversations and a
		// fresh conversation accepts any first transition.
		_ = c.SetStatus(b.status)
	}
	return c
}
