// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/warden/internal/provider"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/sigil-dev/warden/pkg/health"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey string
	// BaseURL points the client at an OpenAI-compatible endpoint.
	BaseURL string
	// Name registers the provider under another name, e.g. "openrouter".
	Name string
}

// Provider implements provider.Provider using the OpenAI Chat Completions API.
type Provider struct {
	client openaisdk.Client
	name   string
	health *health.Tracker
}

// New creates a new OpenAI provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "openai: missing api_key in config", sigilerr.FieldProvider("openai"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	tracker, err := health.NewTracker(health.DefaultCooldown)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "openai: creating health tracker")
	}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &Provider{client: openaisdk.NewClient(opts...), name: name, health: tracker}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func knownModels(name string) []provider.ModelInfo {
	return []provider.ModelInfo{
		{ID: "gpt-4.1", Name: "GPT-4.1", Provider: name, MaxOutputTokens: 32768},
		{ID: "gpt-4.1-mini", Name: "GPT-4.1 Mini", Provider: name, MaxOutputTokens: 16384},
		{ID: "gpt-4.1-nano", Name: "GPT-4.1 Nano", Provider: name, MaxOutputTokens: 16384},
		{ID: "o4-mini", Name: "o4-mini", Provider: name, MaxOutputTokens: 100000},
	}
}

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return knownModels(p.name), nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "%s: building request params", p.name)
	}

	eventCh := make(chan provider.ChatEvent, 100)

	go func() {
		defer close(eventCh)
		p.streamChat(ctx, params, eventCh)
	}()

	return eventCh, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	st := provider.ProviderStatus{
		Available: p.Available(ctx),
		Provider:  p.name,
		Message:   "ok",
	}
	if !st.Available {
		st.Message = "cooling down after upstream failure"
	}
	return st, nil
}

func (p *Provider) Close() error { return nil }

// buildParams converts a provider.ChatRequest into OpenAI SDK ChatCompletionNewParams.
func buildParams(req provider.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		},
	}

	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Options.Temperature))
	}
	if len(req.Options.StopSequences) > 0 {
		params.Stop = openaisdk.ChatCompletionNewParamsStopUnion{
			OfStringArray: req.Options.StopSequences,
		}
	}

	return params, nil
}

// convertMessages transforms provider.Message slices into OpenAI SDK message params.
// The system prompt is prepended as a system message if present.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case provider.MessageRoleAssistant:
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		case provider.MessageRoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, sigilerr.Errorf(sigilerr.CodeProviderRequestInvalid, "openai: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// streamChat runs the streaming loop, converting SDK chunks into provider.ChatEvent values.
func (p *Provider) streamChat(ctx context.Context, params openaisdk.ChatCompletionNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				ch <- provider.ChatEvent{
					Type: provider.EventTypeTextDelta,
					Text: choice.Delta.Content,
				}
			}
		}

		// Usage arrives on the last chunk when include_usage is set.
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			ch <- provider.ChatEvent{
				Type: provider.EventTypeUsage,
				Usage: &provider.Usage{
					InputTokens:     int(chunk.Usage.PromptTokens),
					OutputTokens:    int(chunk.Usage.CompletionTokens),
					CacheReadTokens: int(chunk.Usage.PromptTokensDetails.CachedTokens),
				},
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() == nil {
			p.health.RecordFailure()
		}
		ch <- provider.ChatEvent{
			Type:  provider.EventTypeError,
			Error: err.Error(),
		}
		return
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}
