// Package openai provides a provider adapter for the OpenAI Chat Completions
// API. It maps Parley's normalized generation request onto the SDK's message
// format and back.
package openai

import (
	"context"
	"fmt"

	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI provider adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Model wraps the OpenAI Chat Completions API behind the core.Provider
// interface.
type Model struct {
	client *openai.Client
	opts   Options
}

var _ core.Provider = (*Model)(nil)

// NewModel creates a new OpenAI provider using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
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

	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI provider from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements core.Provider. The persona becomes the system message
// and the rendered transcript the user message; the first choice's content
// is the reply.
func (m *Model) Generate(ctx context.Context, req core.GenerateRequest) (core.GenerateResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(req)),
			openai.UserMessage(userPrompt(req)),
		},
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.GenerateResponse{}, model.NewProviderError("openai", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return core.GenerateResponse{}, model.NewProviderError("openai", fmt.Errorf("empty completion"))
	}

	return core.GenerateResponse{Text: resp.Choices[0].Message.Content}, nil
}

// Info returns metadata describing this OpenAI provider implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:   m.opts.Model,
		Vendor: "openai",
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
