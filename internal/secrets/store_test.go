// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/sigil-dev/warden/internal/secrets"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func init() {
	// Use the mock keyring for all tests so they don't touch the real OS keyring.
	keyring.MockInit()
}

// backends runs fn once per Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s secrets.Store)) {
	t.Helper()
	t.Run("keyring", func(t *testing.T) { fn(t, secrets.NewKeyringStore()) })
	t.Run("memory", func(t *testing.T) { fn(t, secrets.NewMemoryStore()) })
}

func TestStore_StoreAndRetrieve(t *testing.T) {
	backends(t, func(t *testing.T, s secrets.Store) {
		svc := "test-store-retrieve"
		require.NoError(t, s.Store(svc, "api-key", "sk-secret-123"))

		val, err := s.Retrieve(svc, "api-key")
		require.NoError(t, err)
		assert.Equal(t, "sk-secret-123", val)
	})
}

func TestStore_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, s secrets.Store) {
		_, err := s.Retrieve("no-such-service", "no-key")
		require.Error(t, err)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretNotFound), "got: %v", err)

		err = s.Delete("no-such-service", "no-key")
		require.Error(t, err)
		assert.True(t, sigilerr.IsNotFound(err))
	})
}

func TestStore_DeleteAndList(t *testing.T) {
	backends(t, func(t *testing.T, s secrets.Store) {
		svc := "test-list-delete"

		keys, err := s.List(svc)
		require.NoError(t, err)
		assert.Empty(t, keys)

		require.NoError(t, s.Store(svc, "openai-api-key", "a"))
		require.NoError(t, s.Store(svc, "anthropic-api-key", "b"))
		require.NoError(t, s.Store(svc, "anthropic-api-key", "c"))

		keys, err = s.List(svc)
		require.NoError(t, err)
		assert.Equal(t, []string{"anthropic-api-key", "openai-api-key"}, keys)

		require.NoError(t, s.Delete(svc, "openai-api-key"))
		keys, err = s.List(svc)
		require.NoError(t, err)
		assert.Equal(t, []string{"anthropic-api-key"}, keys)

		val, err := s.Retrieve(svc, "anthropic-api-key")
		require.NoError(t, err)
		assert.Equal(t, "c", val)

		require.NoError(t, s.Delete(svc, "anthropic-api-key"))
	})
}

func TestStore_EmptyInputs(t *testing.T) {
	backends(t, func(t *testing.T, s secrets.Store) {
		tests := []struct {
			name    string
			service string
			key     string
		}{
			{"empty service", "", "key"},
			{"empty key", "svc", ""},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := s.Store(tt.service, tt.key, "val")
				require.Error(t, err)
				assert.True(t, sigilerr.IsInvalidInput(err))

				_, err = s.Retrieve(tt.service, tt.key)
				assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretInvalidInput))
			})
		}

		// An empty value is allowed.
		require.NoError(t, s.Store("svc-empty", "key", ""))
	})
}

func TestStore_IsolatedServices(t *testing.T) {
	backends(t, func(t *testing.T, s secrets.Store) {
		require.NoError(t, s.Store("svc-a", "shared-key", "value-a"))
		require.NoError(t, s.Store("svc-b", "shared-key", "value-b"))

		valA, err := s.Retrieve("svc-a", "shared-key")
		require.NoError(t, err)
		assert.Equal(t, "value-a", valA)

		valB, err := s.Retrieve("svc-b", "shared-key")
		require.NoError(t, err)
		assert.Equal(t, "value-b", valB)
	})
}

func TestProviderKeyURI(t *testing.T) {
	assert.Equal(t, "openai-api-key", secrets.ProviderKey("openai"))
	assert.Equal(t, "keyring://warden/openai-api-key", secrets.ProviderKeyURI("openai"))

	svc, key, err := secrets.ParseKeyringURI(secrets.ProviderKeyURI("anthropic"))
	require.NoError(t, err)
	assert.Equal(t, secrets.Service, svc)
	assert.Equal(t, "anthropic-api-key", key)
}
