package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hupe1980/parley/broadcast"
	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/logging"
	"github.com/hupe1980/parley/registry"
	"github.com/hupe1980/parley/schedule"
	"github.com/hupe1980/parley/store"
)

// Config defines tuning parameters for the engine's turn loop.
type Config struct {
	// TurnDelay is the pacing delay between committing one turn and
	// scheduling the next, keeping the rendered conversation readable.
	// The delay is a cancellation checkpoint: a pause or stop during the
	// delay suppresses the queued turn.
	TurnDelay time.Duration

	// ProviderTimeout bounds each provider call. Expiry is treated
	// exactly like any other provider failure: a visible transcript
	// message, then the next speaker.
	ProviderTimeout time.Duration

	// CommandBufferSize sets the per-conversation command channel buffer.
	CommandBufferSize int
}

// DefaultConfig provides production-ready defaults: a one second pacing
// delay, a bounded provider call and a small command buffer.
var DefaultConfig = Config{
	TurnDelay:         time.Second,
	ProviderTimeout:   60 * time.Second,
	CommandBufferSize: 16,
}

// Options configures an Engine instance using the functional options
// pattern. All services have in-memory defaults suitable for development and
// testing.
type Options struct {
	// Config contains operational parameters for the turn loop.
	Config Config

	// Store persists conversations and transcripts. Defaults to an
	// in-memory implementation.
	Store core.ConversationStore

	// Hub fans committed messages and notifications out to subscribers.
	Hub *broadcast.Hub

	// Registry resolves participant ids to persona + provider.
	Registry *registry.Registry

	// Logger defaults to NoOp.
	Logger logging.Logger

	// Rand seeds the speaking-order shuffle. Nil uses a time-seeded
	// source.
	Rand *rand.Rand

	// Shuffler overrides the speaking-order permutation entirely. Tests
	// use this for deterministic orders; when nil, an unbiased
	// Fisher-Yates shuffle driven by Rand is used.
	Shuffler func(ids []string) []string
}

// Engine coordinates all active conversations in one process. Conversations
// are independent: each runs its own actor goroutine and they never share
// mutable state, so separate conversations proceed fully in parallel while
// turns within one conversation stay strictly sequential.
type Engine struct {
	config   Config
	store    core.ConversationStore
	hub      *broadcast.Hub
	registry *registry.Registry
	logger   logging.Logger
	shuffler func(ids []string) []string

	mu     sync.RWMutex
	actors map[string]*actor
}

// New creates an Engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:   DefaultConfig,
		Store:    store.NewInMemoryStore(),
		Hub:      broadcast.NewHub(),
		Registry: registry.New(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	shuffler := opts.Shuffler
	if shuffler == nil {
		rng := opts.Rand
		shuffler = func(ids []string) []string { return schedule.Shuffle(rng, ids) }
	}

	return &Engine{
		config:   opts.Config,
		store:    opts.Store,
		hub:      opts.Hub,
		registry: opts.Registry,
		logger:   opts.Logger,
		shuffler: shuffler,
		actors:   make(map[string]*actor),
	}
}

// Registry returns the participant registry backing this engine.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Hub returns the broadcast hub backing this engine.
func (e *Engine) Hub() *broadcast.Hub { return e.hub }

// CreateConversation validates the request, shuffles the speaking order,
// persists the conversation and starts its coordinator. The conversation
// begins active but idle: the first turn fires on the first user message.
//
// The engine accepts any participant count >= 1; narrower product bounds
// (the UI's 2-3) belong to the calling layer.
func (e *Engine) CreateConversation(topic, userName string, participantIDs []string) (*core.Conversation, error) {
	if topic == "" {
		return nil, core.ErrEmptyTopic
	}
	if len(participantIDs) == 0 {
		return nil, core.ErrNoParticipants
	}

	seen := make(map[string]bool, len(participantIDs))
	for _, id := range participantIDs {
		if seen[id] {
			return nil, fmt.Errorf("duplicate participant %s", id)
		}
		seen[id] = true
		if _, err := e.registry.Resolve(id); err != nil {
			return nil, err
		}
	}

	order := e.shuffler(participantIDs)
	conv := core.NewConversation(core.NewID(), topic, userName, participantIDs, order)

	if err := e.store.Create(conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	a := newActor(e, conv)

	e.mu.Lock()
	e.actors[conv.ID] = a
	e.mu.Unlock()

	go a.run()

	e.hub.Publish(conv.ID, core.NewStatusNotification(conv.ID, core.StatusActive))
	e.logger.Info("conversation created conversation_id=%s topic=%q participants=%d", conv.ID, topic, len(participantIDs))

	return conv.Clone(), nil
}

// SendUserMessage appends a user-authored message to the transcript. The
// message commits immediately (no thinking phase, no provider call) and, if
// the conversation is active with no turn already in flight, triggers the
// next AI turn exactly as a committed AI message would.
func (e *Engine) SendUserMessage(conversationID, senderName, text string) error {
	return e.send(conversationID, command{
		kind:    cmdUserMessage,
		message: core.NewUserMessage(conversationID, senderName, text),
	})
}

// Pause suspends turn scheduling. An in-flight generation is cancelled and
// its result, should it still arrive, is discarded rather than committed.
func (e *Engine) Pause(conversationID string) error {
	return e.send(conversationID, command{kind: cmdPause})
}

// Resume reactivates a paused conversation and immediately schedules exactly
// one turn for the next speaker.
func (e *Engine) Resume(conversationID string) error {
	return e.send(conversationID, command{kind: cmdResume})
}

// Stop terminates the conversation. Terminal: later pause/resume/stop
// requests and any in-flight turn result are no-ops.
func (e *Engine) Stop(conversationID string) error {
	return e.send(conversationID, command{kind: cmdStop})
}

// AddParticipant admits a registered participant mid-conversation, appending
// it to the tail of the speaking order. It speaks once the cursor wraps
// around to its position; no turn is triggered immediately.
func (e *Engine) AddParticipant(conversationID, participantID string) error {
	if _, err := e.registry.Resolve(participantID); err != nil {
		return err
	}
	return e.send(conversationID, command{kind: cmdAddParticipant, participantID: participantID})
}

// Subscribe attaches a subscriber to a conversation's notification feed. The
// returned subscription carries the transcript snapshot taken atomically
// with registration, so snapshot-then-live rendering neither duplicates nor
// misses a message.
func (e *Engine) Subscribe(conversationID string) (*broadcast.Subscription, error) {
	if _, err := e.Conversation(conversationID); err != nil {
		return nil, err
	}
	return e.hub.Subscribe(conversationID), nil
}

// Conversation returns a point-in-time snapshot of a conversation, from the
// live actor when one exists, otherwise from the store.
func (e *Engine) Conversation(conversationID string) (*core.Conversation, error) {
	e.mu.RLock()
	a, ok := e.actors[conversationID]
	e.mu.RUnlock()
	if ok {
		return a.conv.Clone(), nil
	}
	return e.store.Get(conversationID)
}

// Close stops every active conversation. Used on process shutdown.
func (e *Engine) Close() {
	e.mu.RLock()
	ids := make([]string, 0, len(e.actors))
	for id := range e.actors {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		if err := e.Stop(id); err != nil {
			e.logger.Warn("engine close: stop %s: %v", id, err)
		}
	}
}

// send routes a command to the owning actor. Commands for a stopped
// conversation degrade to a logged no-op per the failure semantics; commands
// for an unknown conversation surface core.ErrConversationNotFound.
func (e *Engine) send(conversationID string, cmd command) error {
	e.mu.RLock()
	a, ok := e.actors[conversationID]
	e.mu.RUnlock()

	if ok {
		if a.enqueue(cmd) {
			return nil
		}
		// Actor exited between lookup and enqueue: fall through to the
		// stopped-conversation path.
	}

	conv, err := e.store.Get(conversationID)
	if err != nil {
		if errors.Is(err, core.ErrConversationNotFound) {
			return err
		}
		e.logger.Error("engine: load conversation %s: %v", conversationID, err)
		return err
	}
	if conv.Status() == core.StatusStopped {
		e.logger.Warn("engine: %s on stopped conversation %s is a no-op", cmd.kind, conversationID)
		return nil
	}

	// A non-stopped conversation without an actor means the process
	// restarted since it was persisted; reload it and retry once.
	a = e.reviveActor(conv)
	if a.enqueue(cmd) {
		return nil
	}
	e.logger.Warn("engine: %s on conversation %s dropped during shutdown", cmd.kind, conversationID)
	return nil
}

// reviveActor restores the coordinator for a persisted conversation.
func (e *Engine) reviveActor(conv *core.Conversation) *actor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.actors[conv.ID]; ok {
		return a
	}
	a := newActor(e, conv)
	e.actors[conv.ID] = a
	go a.run()
	e.logger.Info("conversation revived conversation_id=%s", conv.ID)
	return a
}

func (e *Engine) removeActor(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.actors, conversationID)
}
