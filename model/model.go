package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/parley/core"
)

// Info contains metadata about a provider implementation.
type Info struct {
	Name   string `json:"name"`
	Vendor string `json:"vendor"` // "openai", "anthropic", "mock", etc.
}

// ProviderError wraps a failed or malformed generation call. The engine
// recovers from it locally by committing a visible transcript message
// attributed to the speaker, so the human sees the failure rather than
// silence.
type ProviderError struct {
	Vendor string
	Err    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Vendor, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err as a ProviderError for the given vendor.
func NewProviderError(vendor string, err error) *ProviderError {
	return &ProviderError{Vendor: vendor, Err: err}
}

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// MockModel is a lightweight in-memory core.Provider useful for tests &
// examples. Replies can be canned per transcript suffix or scripted in
// order; an optional gate channel lets tests hold a call in flight to
// exercise pause/stop races, and the in-flight counter lets them assert the
// at-most-one-concurrent-turn invariant.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	script    []string
	scriptPos int
	fail      error

	gate     chan struct{}
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

// NewMockModel constructs a MockModel identified by name.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Vendor: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned reply keyed by the full
// transcript text handed to Generate.
func (m *MockModel) AddResponse(transcript, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[transcript] = reply
}

// Script queues replies returned in order, regardless of input.
func (m *MockModel) Script(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
}

// FailWith makes every subsequent call return the given error wrapped as a
// ProviderError. Pass nil to restore normal behavior.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Gate installs a channel the next calls block on until it is closed or
// receives a value. Used by tests to keep a generation in flight while the
// conversation is paused or stopped.
func (m *MockModel) Gate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// Calls returns the total number of Generate invocations.
func (m *MockModel) Calls() int64 { return m.calls.Load() }

// MaxConcurrent returns the highest number of simultaneously outstanding
// Generate calls observed.
func (m *MockModel) MaxConcurrent() int64 { return m.maxSeen.Load() }

// Generate implements core.Provider.
func (m *MockModel) Generate(ctx context.Context, req core.GenerateRequest) (core.GenerateResponse, error) {
	m.calls.Add(1)
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		max := m.maxSeen.Load()
		if cur <= max || m.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	m.mu.Lock()
	gate := m.gate
	fail := m.fail
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return core.GenerateResponse{}, NewProviderError(m.info.Vendor, ctx.Err())
		}
	}

	select {
	case <-ctx.Done():
		return core.GenerateResponse{}, NewProviderError(m.info.Vendor, ctx.Err())
	default:
	}

	if fail != nil {
		return core.GenerateResponse{}, NewProviderError(m.info.Vendor, fail)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scriptPos < len(m.script) {
		reply := m.script[m.scriptPos]
		m.scriptPos++
		return core.GenerateResponse{Text: reply}, nil
	}
	if reply, ok := m.responses[req.Transcript]; ok {
		return core.GenerateResponse{Text: reply}, nil
	}
	return core.GenerateResponse{Text: fmt.Sprintf("%s weighs in on %s", m.info.Name, req.Topic)}, nil
}

// Info returns metadata describing this mock implementation.
func (m *MockModel) Info() Info { return m.info }
