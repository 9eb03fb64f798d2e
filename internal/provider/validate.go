// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// ProviderName identifies a supported LLM provider for key validation.
type ProviderName string

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOpenAI    ProviderName = "openai"
	ProviderGoogle    ProviderName = "google"
)

// modelsURL returns the models endpoint used to probe a key.
func modelsURL(provider ProviderName, key string) (string, bool) {
	switch provider {
	case ProviderAnthropic:
		return "https://api.anthropic.com/v1/models", true
	case ProviderOpenAI:
		return "https://api.openai.com/v1/models", true
	case ProviderGoogle:
		// Google's Generative Language API authenticates via query parameter.
		return "https://generativelanguage.googleapis.com/v1/models?key=" + key, true
	default:
		return "", false
	}
}

// ValidateKey makes a lightweight HTTP call to the provider's models endpoint
// to confirm the API key is valid.
func ValidateKey(ctx context.Context, client *http.Client, provider ProviderName, key string) error {
	return ValidateKeyWithURL(ctx, client, provider, key, "")
}

// ValidateKeyWithURL is ValidateKey against an explicit URL. An empty url
// uses the provider default.
func ValidateKeyWithURL(ctx context.Context, client *http.Client, provider ProviderName, key, url string) error {
	defaultURL, ok := modelsURL(provider, key)
	if !ok {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyInvalid, "unknown provider: %s", provider)
	}
	if url == "" {
		url = defaultURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	switch provider {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
	case ProviderOpenAI:
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyCheckFailed, "validating %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", provider, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return sigilerr.Errorf(sigilerr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", provider, resp.StatusCode)
	}
	return nil
}
