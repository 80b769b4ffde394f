package core

import "context"

// Provider is the black-box generation function behind a participant. It maps
// a persona prompt plus the rendered conversation to a reply text. The call
// is the engine's only long-latency suspension point; implementations must
// honor ctx cancellation where their transport allows it and report failures
// as a *model.ProviderError-compatible error.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// GenerateRequest carries the normalized provider input assembled per turn.
type GenerateRequest struct {
	Persona    string `json:"persona"`
	Transcript string `json:"transcript"`
	Topic      string `json:"topic"`
	UserName   string `json:"user_name"`
}

// GenerateResponse is the provider's reply.
type GenerateResponse struct {
	Text string `json:"text"`
}

// Participant is an LLM persona registered for one or more conversations.
// Immutable once admitted to a conversation; re-registering the same id in
// the registry updates the persona for future lookups but never creates a
// duplicate turn slot.
type Participant struct {
	ID       string
	Persona  string
	Provider Provider
}
