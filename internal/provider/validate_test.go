// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/warden/internal/provider"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func TestValidateKey_Anthropic_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer srv.Close()

	err := provider.ValidateKeyWithURL(context.Background(), srv.Client(), provider.ProviderAnthropic, "test-api-key", srv.URL+"/v1/models")
	require.NoError(t, err)
}

func TestValidateKey_OpenAI_BearerHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := provider.ValidateKeyWithURL(context.Background(), srv.Client(), provider.ProviderOpenAI, "sk-test", srv.URL)
	require.NoError(t, err)
}

func TestValidateKey_InvalidKey_ReturnsError(t *testing.T) {
	tests := []struct {
		name       string
		provider   provider.ProviderName
		statusCode int
		wantCode   sigilerr.Code
	}{
		{
			name:       "anthropic 401",
			provider:   provider.ProviderAnthropic,
			statusCode: http.StatusUnauthorized,
			wantCode:   sigilerr.CodeProviderKeyInvalid,
		},
		{
			name:       "openai 403",
			provider:   provider.ProviderOpenAI,
			statusCode: http.StatusForbidden,
			wantCode:   sigilerr.CodeProviderKeyInvalid,
		},
		{
			name:       "google 401",
			provider:   provider.ProviderGoogle,
			statusCode: http.StatusUnauthorized,
			wantCode:   sigilerr.CodeProviderKeyInvalid,
		},
		{
			name:       "openai 500",
			provider:   provider.ProviderOpenAI,
			statusCode: http.StatusInternalServerError,
			wantCode:   sigilerr.CodeProviderKeyCheckFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			err := provider.ValidateKeyWithURL(context.Background(), srv.Client(), tt.provider, "bad-key", srv.URL+"/v1/models")
			require.Error(t, err)
			assert.True(t, sigilerr.HasCode(err, tt.wantCode),
				"expected %s, got %s", tt.wantCode, sigilerr.CodeOf(err))
		})
	}
}

func TestValidateKey_UnknownProvider(t *testing.T) {
	err := provider.ValidateKey(context.Background(), http.DefaultClient, "unknown", "key")
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeProviderKeyInvalid))
}
