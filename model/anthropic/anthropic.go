// Package anthropic provides a provider adapter for the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/model"
)

// Options configures the Anthropic provider adapter (temperature, model id,
// max tokens, API key, base URL). Extend via functional options to preserve
// stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the core.Provider interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

var _ core.Provider = (*Model)(nil)

// NewModel creates a new Anthropic provider using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic provider from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate implements core.Provider. The persona becomes the system prompt
// and the rendered transcript is handed over as the single user message; the
// reply is the concatenation of all returned text blocks.
func (m *Model) Generate(ctx context.Context, req core.GenerateRequest) (core.GenerateResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req))),
		},
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return core.GenerateResponse{}, model.NewProviderError("anthropic", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return core.GenerateResponse{}, model.NewProviderError("anthropic", fmt.Errorf("empty completion"))
	}

	return core.GenerateResponse{Text: text}, nil
}

// Info returns metadata describing this Anthropic provider implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:   string(m.opts.Model),
		Vendor: "anthropic",
	}
}

func systemPrompt(req core.GenerateRequest) string {
	return fmt.Sprintf(
		"%s\n\nYou are taking part in a group conversation about %q with %s and other AI participants. Reply with your next contribution only, in your own voice, without repeating the transcript.",
		req.Persona, req.Topic, req.UserName,
	)
}

func userPrompt(req core.GenerateRequest) string {
	if req.Transcript == "" {
		return fmt.Sprintf("Open the conversation about %q.", req.Topic)
	}
	return fmt.Sprintf("The conversation so far:\n\n%s\nYour reply:", req.Transcript)
}
