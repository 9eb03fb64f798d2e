// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/warden/internal/provider"
	"github.com/sigil-dev/warden/internal/provider/anthropic"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*anthropic.Provider)(nil)

func TestAnthropicProvider_Basics(t *testing.T) {
	p := mustNewProvider(t, "")
	assert.Equal(t, "anthropic", p.Name())
	assert.True(t, p.Available(context.Background()))

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	for _, m := range models {
		assert.Equal(t, "anthropic", m.Provider, "model %s should have provider=anthropic", m.ID)
		assert.Greater(t, m.MaxOutputTokens, 0)
	}

	status, err := p.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", status.Provider)
	assert.True(t, status.Available)
	assert.NoError(t, p.Close())
}

func TestAnthropicProvider_MissingAPIKey(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeProviderRequestInvalid))
}

func TestBuildParams(t *testing.T) {
	temp := float32(0)
	params, err := anthropic.BuildParams(provider.ChatRequest{
		Model:        "claude-haiku-4-5",
		SystemPrompt: "route this",
		Messages: []provider.Message{
			{Role: provider.MessageRoleSystem, Content: "plant context"},
			{Role: provider.MessageRoleUser, Content: "question"},
			{Role: provider.MessageRoleAssistant, Content: "answer"},
		},
		Options: provider.ChatOptions{Temperature: &temp},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1024), params.MaxTokens, "default max tokens")
	require.Len(t, params.System, 2)
	assert.Equal(t, "route this", params.System[0].Text)
	assert.Equal(t, "plant context", params.System[1].Text)
	require.Len(t, params.Messages, 2, "system messages are lifted out of the turn list")
	assert.True(t, params.Temperature.Valid())

	_, err = anthropic.BuildParams(provider.ChatRequest{
		Messages: []provider.Message{{Role: "tool", Content: "x"}},
	})
	require.Error(t, err)
}

const messageStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":20,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"{\"capabilities\": "}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"[\"compute\"]}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":9}}

event: message_stop
data: {"type":"message_stop"}

`

func TestAnthropicProvider_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key-not-real", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, messageStream)
	}))
	defer srv.Close()

	p := mustNewProvider(t, srv.URL)
	events, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "claude-haiku-4-5",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "seal temperature at 200 m3/h?"}},
	})
	require.NoError(t, err)

	var text strings.Builder
	var types []provider.EventType
	for ev := range events {
		if ev.Type == provider.EventTypeTextDelta {
			text.WriteString(ev.Text)
		}
		if ev.Type == provider.EventTypeError {
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
		types = append(types, ev.Type)
	}

	assert.Equal(t, `{"capabilities": ["compute"]}`, text.String())
	require.NotEmpty(t, types)
	assert.Equal(t, provider.EventTypeDone, types[len(types)-1])
	assert.Contains(t, types, provider.EventTypeUsage)
}

func TestAnthropicProvider_UpstreamErrorMarksUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`)
	}))
	defer srv.Close()

	p := mustNewProvider(t, srv.URL)
	events, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "nope",
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var errEvents int
	for ev := range events {
		if ev.Type == provider.EventTypeError {
			errEvents++
		}
	}
	assert.Equal(t, 1, errEvents)
	assert.False(t, p.Available(context.Background()))
}

func mustNewProvider(t *testing.T, baseURL string) *anthropic.Provider {
	t.Helper()
	p, err := anthropic.New(anthropic.Config{
		APIKey:  "test-key-not-real",
		BaseURL: baseURL,
	})
	require.NoError(t, err)
	return p
}
