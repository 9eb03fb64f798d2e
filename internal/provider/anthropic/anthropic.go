// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	"context"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigil-dev/warden/internal/provider"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/sigil-dev/warden/pkg/health"
)

const defaultMaxTokens = 1024

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	health *health.Tracker
}

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "anthropic: missing api_key in config", sigilerr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	tracker, err := health.NewTracker(health.DefaultCooldown)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "anthropic: creating health tracker")
	}

	return &Provider{
		client: anthropicsdk.NewClient(opts...),
		health: tracker,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func knownModels() []provider.ModelInfo {
	return []provider.ModelInfo{
		{ID: "claude-opus-4-6", Name: "Claude Opus 4.6", Provider: "anthropic", MaxOutputTokens: 32000},
		{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", Provider: "anthropic", MaxOutputTokens: 16000},
		{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", Provider: "anthropic", MaxOutputTokens: 8192},
	}
}

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return knownModels(), nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "anthropic: building request params")
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
		Provider:  "anthropic",
		Message:   "ok",
	}
	if !st.Available {
		st.Message = "cooling down after upstream failure"
	}
	return st, nil
}

func (p *Provider) Close() error { return nil }

// buildParams converts a provider.ChatRequest into Anthropic SDK MessageNewParams.
func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	msgs, system, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}

	if req.SystemPrompt != "" {
		params.System = append(params.System, anthropicsdk.TextBlockParam{Text: req.SystemPrompt})
	}
	params.System = append(params.System, system...)

	if req.Options.Temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*req.Options.Temperature))
	}
	if len(req.Options.StopSequences) > 0 {
		params.StopSequences = req.Options.StopSequences
	}

	return params, nil
}

// convertMessages splits provider messages into conversation turns and
// system blocks; the Messages API takes system text as a top-level param.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, []anthropicsdk.TextBlockParam, error) {
	var (
		result []anthropicsdk.MessageParam
		system []anthropicsdk.TextBlockParam
	)

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, anthropicsdk.NewUserMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case provider.MessageRoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case provider.MessageRoleSystem:
			system = append(system, anthropicsdk.TextBlockParam{Text: msg.Content})
		default:
			return nil, nil, sigilerr.Errorf(sigilerr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", msg.Role)
		}
	}

	return result, system, nil
}

// streamChat runs the streaming loop, converting SDK events into provider.ChatEvent values.
func (p *Provider) streamChat(ctx context.Context, params anthropicsdk.MessageNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				ch <- provider.ChatEvent{
					Type: provider.EventTypeTextDelta,
					Text: event.Delta.Text,
				}
			}

		case "message_start":
			if event.Message.Usage.InputTokens > 0 {
				ch <- provider.ChatEvent{
					Type: provider.EventTypeUsage,
					Usage: &provider.Usage{
						InputTokens:     int(event.Message.Usage.InputTokens),
						OutputTokens:    int(event.Message.Usage.OutputTokens),
						CacheReadTokens: int(event.Message.Usage.CacheReadInputTokens),
					},
				}
			}

		case "message_delta":
			// message_delta carries the final output token count
			ch <- provider.ChatEvent{
				Type: provider.EventTypeUsage,
				Usage: &provider.Usage{
					OutputTokens: int(event.Usage.OutputTokens),
				},
			}

		case "message_stop":
			p.health.RecordSuccess()
			ch <- provider.ChatEvent{Type: provider.EventTypeDone}
			return
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

	// If we exit the loop without a message_stop, still send done.
	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}
