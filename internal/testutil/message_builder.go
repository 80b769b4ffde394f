package testutil

import (
	"time"

	"github.com/hupe1980/parley/core"
)

// MessageBuilder provides a fluent helper for constructing transcript
// messages in tests. Example:
//
//	m := NewMessageBuilder("conv-1").Sender("Alpha").Text("hello").Build()
type MessageBuilder struct {
	id             string
	conversationID string
	sender         string
	text           string
	isUser         bool
	createdAt      time.Time
}

// NewMessageBuilder creates a builder with default sender "Alpha".
func NewMessageBuilder(conversationID string) *MessageBuilder {
	return &MessageBuilder{conversationID: conversationID, sender: "Alpha"}
}

// ID overrides the auto-generated message ID (chainable). Use mainly where
// determinism matters.
func (b *MessageBuilder) ID(id string) *MessageBuilder { b.id = id; return b }

// Sender sets the sender (participant id or user display name) (chainable).
func (b *MessageBuilder) Sender(s string) *MessageBuilder { b.sender = s; return b }

// Text sets the message body (chainable).
func (b *MessageBuilder) Text(t string) *MessageBuilder { b.text = t; return b }

// FromUser marks the message as user-authored (chainable).
func (b *MessageBuilder) FromUser() *MessageBuilder { b.isUser = true; return b }

// At sets the commit timestamp (chainable).
func (b *MessageBuilder) At(ts time.Time) *MessageBuilder { b.createdAt = ts; return b }

// Build returns the assembled core.Message.
func (b *MessageBuilder) Build() core.Message {
	m := core.NewMessage(b.conversationID, b.sender, b.text)
	if b.id != "" {
		m.ID = b.id
	}
	if b.isUser {
		m.IsUser = true
	}
	if !b.createdAt.IsZero() {
		m.CreatedAt = b.createdAt
	}
	return m
}
