package core

import "errors"

var (
	// ErrConversationNotFound is returned when a conversation id does not
	// exist in the underlying store.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrParticipantNotFound is returned when a participant id cannot be
	// resolved by the registry.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrInvalidTransition marks a lifecycle transition request that the
	// current status does not permit (e.g. resuming a stopped
	// conversation). Callers log it and treat the request as a no-op.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmptyTopic is returned when a conversation is created without a
	// topic.
	ErrEmptyTopic = errors.New("topic must not be empty")

	// ErrNoParticipants is returned when a conversation is created with an
	// empty participant set.
	ErrNoParticipants = errors.New("at least one participant is required")
)
