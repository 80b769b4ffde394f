// Package registry maps participant identifiers to their persona prompt and
// provider. It is the single place personas are defined; conversations hold
// only participant ids and the registry resolves them at turn time. The
// registry itself holds no conversation state; admitting a participant to a
// running conversation is the engine's job.
package registry

import (
	"fmt"

	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/model/anthropic"
	"github.com/hupe1980/parley/model/openai"
)

// Vendor identifies which SDK backs a custom participant.
type Vendor string

const (
	// VendorAnthropic backs a custom participant with the Anthropic API.
	VendorAnthropic Vendor = "anthropic"
	// VendorOpenAI backs a custom participant with the OpenAI API.
	VendorOpenAI Vendor = "openai"
)

// Spec describes a participant to register. Exactly one of the two shapes is
// used:
//
//   - a known participant supplies Provider directly (persona + provider
//     constructed by the caller, typically at startup from configuration)
//   - a custom participant supplies Vendor plus a credential; the registry
//     constructs the vendor adapter itself
//
// This keeps ad-hoc user-supplied personas typed instead of letting callers
// insert untyped records.
type Spec struct {
	ID      string
	Persona string

	// Known participant.
	Provider core.Provider

	// Custom participant.
	Vendor   Vendor
	APIKey   string
	Endpoint string
	ModelID  string
}

// Registry is a thread-safe participant directory.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]core.Participant
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{participants: make(map[string]core.Participant)}
}

// Register adds or updates a participant. Re-registering an existing id
// updates its persona and provider but never creates a duplicate turn slot;
// conversations referencing the id are unaffected beyond resolving the new
// persona on their next turn.
func (r *Registry) Register(spec Spec) (core.Participant, error) {
	if spec.ID == "" {
		return core.Participant{}, fmt.Errorf("participant id must not be empty")
	}

	provider := spec.Provider
	if provider == nil {
		var err error
		provider, err = buildProvider(spec)
		if err != nil {
			return core.Participant{}, err
		}
	}

	p := core.Participant{ID: spec.ID, Persona: spec.Persona, Provider: provider}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[spec.ID] = p
	return p, nil
}

// Resolve returns the participant for id or core.ErrParticipantNotFound.
func (r *Registry) Resolve(id string) (core.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return core.Participant{}, fmt.Errorf("%w: %s", core.ErrParticipantNotFound, id)
	}
	return p, nil
}

// IDs returns the registered participant ids in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.participants))
	for id := range r.participants {
		out = append(out, id)
	}
	return out
}

func buildProvider(spec Spec) (core.Provider, error) {
	switch spec.Vendor {
	case VendorAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = spec.APIKey
			if spec.Endpoint != "" {
				o.BaseURL = spec.Endpoint
			}
			if spec.ModelID != "" {
				o.Model = sdk.Model(spec.ModelID)
			}
		}), nil
	case VendorOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = spec.APIKey
			if spec.Endpoint != "" {
				o.BaseURL = spec.Endpoint
			}
			if spec.ModelID != "" {
				o.Model = spec.ModelID
			}
		}), nil
	default:
		return nil, fmt.Errorf("participant %s: unknown vendor %q", spec.ID, spec.Vendor)
	}
}
