// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/sigil-dev/warden/internal/provider"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/sigil-dev/warden/pkg/health"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey string
}

// Provider implements provider.Provider using the Google Gemini API.
type Provider struct {
	client *genai.Client
	health *health.Tracker
}

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeProviderRequestInvalid, "google: missing api_key in config", sigilerr.FieldProvider("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	tracker, err := health.NewTracker(health.DefaultCooldown)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "google: creating health tracker")
	}

	return &Provider{
		client: client,
		health: tracker,
	}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func knownModels() []provider.ModelInfo {
	return []provider.ModelInfo{
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: "google", MaxOutputTokens: 65536},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: "google", MaxOutputTokens: 65536},
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: "google", MaxOutputTokens: 8192},
	}
}

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return knownModels(), nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	contents, system, err := convertMessages(req.Messages)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderRequestInvalid, "google: converting messages")
	}

	config := buildConfig(req, system)

	eventCh := make(chan provider.ChatEvent, 100)

	go func() {
		defer close(eventCh)
		p.streamChat(ctx, req.Model, contents, config, eventCh)
	}()

	return eventCh, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	st := provider.ProviderStatus{
		Available: p.Available(ctx),
		Provider:  "google",
		Message:   "ok",
	}
	if !st.Available {
		st.Message = "cooling down after upstream failure"
	}
	return st, nil
}

func (p *Provider) Close() error { return nil }

// buildConfig converts request options and system text into a genai.GenerateContentConfig.
func buildConfig(req provider.ChatRequest, system []string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.Options.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Options.Temperature)
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if len(req.Options.StopSequences) > 0 {
		cfg.StopSequences = req.Options.StopSequences
	}

	var parts []*genai.Part
	if req.SystemPrompt != "" {
		parts = append(parts, &genai.Part{Text: req.SystemPrompt})
	}
	for _, s := range system {
		parts = append(parts, &genai.Part{Text: s})
	}
	if len(parts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: parts}
	}

	return cfg
}

// convertMessages transforms provider.Message slices into genai.Content slices.
// System messages are returned separately for the SystemInstruction.
func convertMessages(msgs []provider.Message) ([]*genai.Content, []string, error) {
	var (
		result []*genai.Content
		system []string
	)

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case provider.MessageRoleAssistant:
			result = append(result, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case provider.MessageRoleSystem:
			system = append(system, msg.Content)
		default:
			return nil, nil, sigilerr.Errorf(sigilerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
	}

	return result, system, nil
}

// streamChat runs the streaming loop, converting SDK responses into provider.ChatEvent values.
func (p *Provider) streamChat(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.ChatEvent,
) {
	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			if ctx.Err() == nil {
				p.health.RecordFailure()
			}
			ch <- provider.ChatEvent{
				Type:  provider.EventTypeError,
				Error: err.Error(),
			}
			return
		}

		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" && !part.Thought {
					ch <- provider.ChatEvent{
						Type: provider.EventTypeTextDelta,
						Text: part.Text,
					}
				}
			}
		}

		if result.UsageMetadata != nil {
			ch <- provider.ChatEvent{
				Type: provider.EventTypeUsage,
				Usage: &provider.Usage{
					InputTokens:     int(result.UsageMetadata.PromptTokenCount),
					OutputTokens:    int(result.UsageMetadata.CandidatesTokenCount),
					CacheReadTokens: int(result.UsageMetadata.CachedContentTokenCount),
				},
			}
		}
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}
