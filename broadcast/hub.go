// Package broadcast implements the transcript sink and per-conversation
// fan-out hub: the single source of truth for what was said, in what order.
//
// Every commit goes through Append, which assigns any missing id/timestamp,
// extends the topic's committed log and fans the notification out to
// subscribers, all under the topic lock. Subscribe captures the committed
// log and registers the subscriber under the same lock, so a late joiner
// that renders the snapshot and then the live channel sees every committed
// message exactly once, in commit order.
package broadcast

import (
	"sync"
	"time"

	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/logging"
)

// Hub routes notifications to subscribers keyed by conversation id.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*topic
	logger logging.Logger

	bufferSize int
}

// Options configures a Hub.
type Options struct {
	// BufferSize is the per-subscriber channel buffer. When a subscriber's
	// buffer is full, further notifications to it are dropped (and logged)
	// rather than blocking the conversation's coordinator.
	BufferSize int
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// NewHub constructs a Hub with optional overrides.
func NewHub(optFns ...func(o *Options)) *Hub {
	opts := Options{
		BufferSize: 64,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Hub{
		topics:     make(map[string]*topic),
		logger:     opts.Logger,
		bufferSize: opts.BufferSize,
	}
}

type topic struct {
	mu      sync.Mutex
	log     []core.Message
	subs    map[int]*Subscription
	nextSub int
}

// Subscription is a live feed over one conversation plus the transcript
// snapshot taken at subscribe time. Render Snapshot first, then range over
// C; the two never overlap and have no gap between them.
type Subscription struct {
	// Snapshot holds the messages committed before the subscription began.
	Snapshot []core.Message
	// C delivers notifications committed after the snapshot, in commit
	// order. It is closed by Close.
	C <-chan core.Notification

	id    int
	ch    chan core.Notification
	once  sync.Once
	topic *topic
}

// Close detaches the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.topic.mu.Lock()
		delete(s.topic.subs, s.id)
		s.topic.mu.Unlock()
		close(s.ch)
	})
}

func (h *Hub) topicFor(conversationID string) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[conversationID]
	if !ok {
		t = &topic{subs: make(map[int]*Subscription)}
		h.topics[conversationID] = t
	}
	return t
}

// Append commits a message: assigns id and timestamp if absent, extends the
// ordered transcript log and fans out a message notification. It returns the
// canonical committed record.
func (h *Hub) Append(conversationID string, m core.Message) core.Message {
	if m.ID == "" {
		m.ID = core.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.ConversationID = conversationID

	t := h.topicFor(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log = append(t.log, m)
	h.fanOutLocked(t, core.NewMessageNotification(m))
	return m
}

// Publish fans out a non-message notification (thinking, thinking_cleared,
// status) through the same topic, keeping it ordered with committed
// messages for every subscriber.
func (h *Hub) Publish(conversationID string, n core.Notification) {
	t := h.topicFor(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()
	h.fanOutLocked(t, n)
}

// fanOutLocked delivers to every subscriber; caller holds the topic lock.
func (h *Hub) fanOutLocked(t *topic, n core.Notification) {
	for _, sub := range t.subs {
		select {
		case sub.ch <- n:
		default:
			h.logger.Warn("broadcast: dropping notification for slow subscriber conversation_id=%s kind=%s", n.ConversationID, n.Kind)
		}
	}
}

// Subscribe attaches a subscriber to a conversation. The returned
// Subscription carries the transcript snapshot taken atomically with the
// registration.
func (h *Hub) Subscribe(conversationID string) *Subscription {
	t := h.topicFor(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan core.Notification, h.bufferSize)
	sub := &Subscription{
		Snapshot: append([]core.Message{}, t.log...),
		C:        ch,
		id:       t.nextSub,
		ch:       ch,
		topic:    t,
	}
	t.subs[t.nextSub] = sub
	t.nextSub++
	return sub
}

// Transcript returns a copy of the committed message log for a conversation.
func (h *Hub) Transcript(conversationID string) []core.Message {
	t := h.topicFor(conversationID)
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Message{}, t.log...)
}

// Drop removes a conversation's topic and closes all of its subscriptions.
// Called when a conversation is stopped and unloaded.
func (h *Hub) Drop(conversationID string) {
	h.mu.Lock()
	t, ok := h.topics[conversationID]
	delete(h.topics, conversationID)
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	subs := make([]*Subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
