// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"sync/atomic"

	"github.com/sigil-dev/warden/internal/provider"
)

// mockProvider is a configurable provider.Provider for registry tests.
type mockProvider struct {
	name      string
	available atomic.Bool
	closed    atomic.Bool
	closeErr  error
}

func newMockProvider(name string, available bool) *mockProvider {
	m := &mockProvider{name: name}
	m.available.Store(available)
	return m
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Available(_ context.Context) bool { return m.available.Load() }

func (m *mockProvider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: "test-model", Name: "Test Model", Provider: m.name}}, nil
}

func (m *mockProvider) Chat(_ context.Context, _ provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, 3)
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: "hello"}
	ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 5}}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{
		Available: m.available.Load(),
		Provider:  m.name,
		Message:   "ok",
	}, nil
}

func (m *mockProvider) Close() error {
	m.closed.Store(true)
	return m.closeErr
}
