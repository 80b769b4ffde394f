// Package parley provides a high-level façade over the core Engine for
// orchestrating round-robin conversations between multiple LLM participants
// and a human observer. Most applications interact with this package by:
//  1. Creating a Parley via New() (optionally overriding default in-memory services)
//  2. Registering participants (vendor-backed or custom providers)
//  3. Creating a conversation and subscribing to its notification feed
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable store
// implementation and a structured logger.
package parley

import (
	"fmt"
	"math/rand"

	"github.com/hupe1980/parley/broadcast"
	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/engine"
	"github.com/hupe1980/parley/logging"
	"github.com/hupe1980/parley/registry"
)

// Options configures the Parley instance.
type Options struct {
	// EngineConfig contains operational parameters for the turn loop
	// (pacing delay, provider timeout, command buffers).
	EngineConfig engine.Config

	// MinParticipants and MaxParticipants bound the participant count
	// accepted by CreateConversation. The defaults match the product
	// surface of two to three models per conversation; the underlying
	// engine itself accepts any count >= 1.
	MinParticipants int
	MaxParticipants int

	// Store persists conversations and transcripts (defaults to the
	// in-memory implementation if not provided).
	Store core.ConversationStore

	// Hub fans committed messages and notifications out to subscribers.
	Hub *broadcast.Hub

	// Registry resolves participant ids to persona + provider.
	Registry *registry.Registry

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// Rand seeds the speaking-order shuffle; Shuffler replaces it
	// entirely for deterministic orders in tests.
	Rand     *rand.Rand
	Shuffler func(ids []string) []string
}

// Parley is the high-level façade aggregating the underlying engine and
// services.
type Parley struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Parley instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Parley {
	opts := Options{
		EngineConfig:    engine.DefaultConfig,
		MinParticipants: 2,
		MaxParticipants: 3,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		if opts.Store != nil {
			o.Store = opts.Store
		}
		if opts.Hub != nil {
			o.Hub = opts.Hub
		}
		if opts.Registry != nil {
			o.Registry = opts.Registry
		}
		o.Logger = opts.Logger
		o.Rand = opts.Rand
		o.Shuffler = opts.Shuffler
	})

	return &Parley{opts: opts, engine: e}
}

// RegisterParticipant adds a participant to the underlying registry.
func (p *Parley) RegisterParticipant(spec registry.Spec) (core.Participant, error) {
	return p.engine.Registry().Register(spec)
}

// CreateConversation starts a new conversation on the given topic, enforcing
// the configured participant bounds before delegating to the engine.
func (p *Parley) CreateConversation(topic, userName string, participantIDs []string) (*core.Conversation, error) {
	if n := len(participantIDs); n < p.opts.MinParticipants || n > p.opts.MaxParticipants {
		return nil, fmt.Errorf("participant count %d outside allowed range [%d, %d]",
			n, p.opts.MinParticipants, p.opts.MaxParticipants)
	}
	return p.engine.CreateConversation(topic, userName, participantIDs)
}

// SendUserMessage injects a human message into the conversation.
func (p *Parley) SendUserMessage(conversationID, senderName, text string) error {
	return p.engine.SendUserMessage(conversationID, senderName, text)
}

// Pause suspends turn scheduling for the conversation.
func (p *Parley) Pause(conversationID string) error { return p.engine.Pause(conversationID) }

// Resume reactivates a paused conversation.
func (p *Parley) Resume(conversationID string) error { return p.engine.Resume(conversationID) }

// Stop terminates the conversation permanently.
func (p *Parley) Stop(conversationID string) error { return p.engine.Stop(conversationID) }

// AddParticipant admits a registered participant mid-conversation.
func (p *Parley) AddParticipant(conversationID, participantID string) error {
	return p.engine.AddParticipant(conversationID, participantID)
}

// Subscribe attaches a subscriber to the conversation's notification feed.
func (p *Parley) Subscribe(conversationID string) (*broadcast.Subscription, error) {
	return p.engine.Subscribe(conversationID)
}

// Conversation returns a point-in-time snapshot of a conversation.
func (p *Parley) Conversation(conversationID string) (*core.Conversation, error) {
	return p.engine.Conversation(conversationID)
}

// Engine exposes the underlying engine for advanced integrations such as the
// websocket gateway.
func (p *Parley) Engine() *engine.Engine { return p.engine }

// Close stops every active conversation. Used on process shutdown.
func (p *Parley) Close() { p.engine.Close() }
