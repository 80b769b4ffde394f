package core

import "time"

// NotificationKind discriminates the outbound event union published to
// subscribers of a conversation.
type NotificationKind string

const (
	// KindThinking signals that a participant started generating a reply.
	KindThinking NotificationKind = "thinking"
	// KindThinkingCleared signals that a pending indicator became stale
	// without a committed message (pause or stop while generating).
	KindThinkingCleared NotificationKind = "thinking_cleared"
	// KindMessage carries a committed transcript message.
	KindMessage NotificationKind = "message"
	// KindStatus signals a lifecycle status change.
	KindStatus NotificationKind = "status"
)

// Notification is the unit of communication pushed to subscribers. For a
// given conversation, notifications are observed in emission order: a
// thinking notification always precedes its corresponding message (or the
// thinking_cleared / error message that replaces it).
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	ConversationID string           `json:"conversation_id"`
	ParticipantID  string           `json:"participant_id,omitempty"`
	Message        *Message         `json:"message,omitempty"`
	Status         Status           `json:"status,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// NewThinkingNotification marks the start of a generation for a speaker.
func NewThinkingNotification(conversationID, participantID string) Notification {
	return Notification{
		Kind:           KindThinking,
		ConversationID: conversationID,
		ParticipantID:  participantID,
		Timestamp:      time.Now().UTC(),
	}
}

// NewThinkingClearedNotification clears a stale pending indicator.
func NewThinkingClearedNotification(conversationID, participantID string) Notification {
	return Notification{
		Kind:           KindThinkingCleared,
		ConversationID: conversationID,
		ParticipantID:  participantID,
		Timestamp:      time.Now().UTC(),
	}
}

// NewMessageNotification wraps a committed message.
func NewMessageNotification(m Message) Notification {
	return Notification{
		Kind:           KindMessage,
		ConversationID: m.ConversationID,
		ParticipantID:  m.Sender,
		Message:        &m,
		Timestamp:      time.Now().UTC(),
	}
}

// NewStatusNotification signals a lifecycle transition.
func NewStatusNotification(conversationID string, status Status) Notification {
	return Notification{
		Kind:           KindStatus,
		ConversationID: conversationID,
		Status:         status,
		Timestamp:      time.Now().UTC(),
	}
}
