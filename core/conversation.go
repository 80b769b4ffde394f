package core

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle state of a conversation. Active and paused are
// freely reversible; stopped is terminal.
type Status string

const (
	// StatusActive means turns are being scheduled.
	StatusActive Status = "active"
	// StatusPaused means no further turns are scheduled until a resume.
	StatusPaused Status = "paused"
	// StatusStopped is terminal; no transition leaves it.
	StatusStopped Status = "stopped"
)

// String returns the string representation of the status.
func (s Status) String() string { return string(s) }

// Conversation is the central entity: a stateful container tracking the
// participant set, the shuffled speaking order and cursor, the lifecycle
// status and the append-only transcript. It is safe for concurrent access.
//
// Contract:
//   - participants and speakingOrder only ever grow; insertion order is
//     preserved and a newly admitted participant is appended to the tail of
//     the speaking order
//   - the cursor always satisfies 0 <= cursor < len(speakingOrder) whenever
//     the order is non-empty
//   - the transcript is append-only and never reordered or mutated
//   - accessors return defensive copies to avoid external mutation
//
// All turn scheduling and status transitions are driven by the engine, which
// is the single writer for a conversation; the struct-level mutex protects
// concurrent readers (subscribers, snapshots).
type Conversation struct {
	ID       string
	Topic    string
	UserName string
	Created  time.Time
	Updated  time.Time

	participants  []string
	speakingOrder []string
	cursor        int
	status        Status
	transcript    []Message
	thinking      map[string]bool

	mu sync.RWMutex
}

// NewConversation creates an active conversation with the given topic, user
// display name and shuffled speaking order. Participants are recorded in
// registration order; order must be a permutation of participants.
func NewConversation(id, topic, userName string, participants, order []string) *Conversation {
	now := time.Now().UTC()
	c := &Conversation{
		ID:       id,
		Topic:    topic,
		UserName: userName,
		Created:  now,
		Updated:  now,
		status:   StatusActive,
		thinking: map[string]bool{},
	}
	c.participants = append(c.participants, participants...)
	c.speakingOrder = append(c.speakingOrder, order...)
	return c
}

// Status returns the current lifecycle status.
func (c *Conversation) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus transitions the conversation to the given status. It returns an
// error wrapping ErrInvalidTransition when the conversation is already
// stopped; callers treat that as a logged no-op, never as fatal.
func (c *Conversation) SetStatus(s Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusStopped {
		return fmt.Errorf("%w: conversation %s is stopped", ErrInvalidTransition, c.ID)
	}
	c.status = s
	c.Updated = time.Now().UTC()
	return nil
}

// Participants returns a copy of the participant ids in registration order.
func (c *Conversation) Participants() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.participants))
	copy(out, c.participants)
	return out
}

// SpeakingOrder returns a copy of the shuffled speaking order.
func (c *Conversation) SpeakingOrder() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.speakingOrder))
	copy(out, c.speakingOrder)
	return out
}

// Cursor returns the current index into the speaking order.
func (c *Conversation) Cursor() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

// SetCursor stores an advanced cursor position. The value is normalized
// modulo the order length so the cursor invariant holds even if the order
// grew since the caller computed it.
func (c *Conversation) SetCursor(cursor int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.speakingOrder); n > 0 {
		c.cursor = cursor % n
	} else {
		c.cursor = 0
	}
	c.Updated = time.Now().UTC()
}

// AddParticipant admits a participant mid-conversation, appending it to both
// the participant set and the tail of the speaking order. Admitting an id
// that is already present is a no-op, keeping admission idempotent.
func (c *Conversation) AddParticipant(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.participants {
		if p == id {
			return false
		}
	}
	c.participants = append(c.participants, id)
	c.speakingOrder = append(c.speakingOrder, id)
	c.Updated = time.Now().UTC()
	return true
}

// Append adds a committed message to the transcript.
func (c *Conversation) Append(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = append(c.transcript, m)
	c.Updated = time.Now().UTC()
}

// Transcript returns a defensive copy of the committed transcript in commit
// order.
func (c *Conversation) Transcript() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// TranscriptText renders the transcript as "sender: text" lines, the form
// handed to providers as conversational context.
func (c *Conversation) TranscriptText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var b strings.Builder
	for _, m := range c.transcript {
		b.WriteString(m.Sender)
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// SetThinking marks or clears the pending indicator for a speaker. The set
// supports multiple simultaneous entries so indicators stay independently
// clearable even though turns are currently sequential.
func (c *Conversation) SetThinking(participantID string, pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pending {
		c.thinking[participantID] = true
	} else {
		delete(c.thinking, participantID)
	}
}

// Thinking returns the participant ids with a pending indicator, in no
// particular order.
func (c *Conversation) Thinking() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.thinking))
	for id := range c.thinking {
		out = append(out, id)
	}
	return out
}

// Snapshot is the persistence-shaped view of a conversation: plain exported
// fields, no lock, no transient thinking state. Stores serialize snapshots;
// FromSnapshot rehydrates them.
type Snapshot struct {
	ID            string    `json:"id"`
	Topic         string    `json:"topic"`
	UserName      string    `json:"user_name"`
	Participants  []string  `json:"participants"`
	SpeakingOrder []string  `json:"speaking_order"`
	Cursor        int       `json:"cursor"`
	Status        Status    `json:"status"`
	Transcript    []Message `json:"transcript"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
}

// Snapshot captures the current persisted state of the conversation.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		ID:       c.ID,
		Topic:    c.Topic,
		UserName: c.UserName,
		Cursor:   c.cursor,
		Status:   c.status,
		Created:  c.Created,
		Updated:  c.Updated,
	}
	s.Participants = append(s.Participants, c.participants...)
	s.SpeakingOrder = append(s.SpeakingOrder, c.speakingOrder...)
	s.Transcript = append(s.Transcript, c.transcript...)
	return s
}

// FromSnapshot rehydrates a conversation from persisted state.
func FromSnapshot(s Snapshot) *Conversation {
	c := &Conversation{
		ID:       s.ID,
		Topic:    s.Topic,
		UserName: s.UserName,
		Created:  s.Created,
		Updated:  s.Updated,
		cursor:   s.Cursor,
		status:   s.Status,
		thinking: map[string]bool{},
	}
	c.participants = append(c.participants, s.Participants...)
	c.speakingOrder = append(c.speakingOrder, s.SpeakingOrder...)
	c.transcript = append(c.transcript, s.Transcript...)
	return c
}

// Clone returns a deep copy of the conversation safe for independent
// mutation. The clone starts with no pending thinking indicators; those are
// transient engine state, not part of a snapshot.
func (c *Conversation) Clone() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Conversation{
		ID:       c.ID,
		Topic:    c.Topic,
		UserName: c.UserName,
		Created:  c.Created,
		Updated:  c.Updated,
		cursor:   c.cursor,
		status:   c.status,
		thinking: map[string]bool{},
	}
	clone.participants = append(clone.participants, c.participants...)
	clone.speakingOrder = append(clone.speakingOrder, c.speakingOrder...)
	clone.transcript = append(clone.transcript, c.transcript...)
	return clone
}
