// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package provider adapts hosted LLM APIs for query classification.
package provider

import (
	"context"
)

// Provider is the core interface for LLM providers.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// Router resolves a "provider/model" reference to a provider.
type Router interface {
	Route(ctx context.Context, modelRef string) (Provider, string, error)
}

// ChatRequest represents a request to the LLM.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Options      ChatOptions
}

// ChatOptions contains model configuration. A nil Temperature leaves the
// provider default in place.
type ChatOptions struct {
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
}

// Message represents a conversation message.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ChatEvent is a streaming response event.
type ChatEvent struct {
	Type  EventType
	Text  string
	Usage *Usage
	Error string
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// Usage tracks token consumption.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// ModelInfo describes a model.
type ModelInfo struct {
	ID              string
	Name            string
	Provider        string
	MaxOutputTokens int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
}
