// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps provider credentials out of the config file.
package secrets

import (
	"sort"
	"sync"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Service is the keyring service warden stores its secrets under.
const Service = "warden"

// Store provides secure secret storage operations.
// Implementations may use OS keyrings, encrypted files, or other backends.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// Returns CodeSecretNotFound if the key does not exist.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	// Returns CodeSecretNotFound if the key does not exist.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}

// ProviderKey is the key name under which a provider's API key is stored.
func ProviderKey(provider string) string {
	return provider + "-api-key"
}

// ProviderKeyURI is the config value that points at a stored provider key.
func ProviderKeyURI(provider string) string {
	return keyringScheme + Service + "/" + ProviderKey(provider)
}

// MemoryStore is an in-process Store for tests and hosts without a keyring.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]map[string]string)}
}

func (m *MemoryStore) Store(service, key, value string) error {
	if err := checkServiceKey("store", service, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secrets[service] == nil {
		m.secrets[service] = make(map[string]string)
	}
	m.secrets[service][key] = value
	return nil
}

func (m *MemoryStore) Retrieve(service, key string) (string, error) {
	if err := checkServiceKey("retrieve", service, key); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[service][key]
	if !ok {
		return "", sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return v, nil
}

func (m *MemoryStore) Delete(service, key string) error {
	if err := checkServiceKey("delete", service, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[service][key]; !ok {
		return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	delete(m.secrets[service], key)
	return nil
}

func (m *MemoryStore) List(service string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.secrets[service]))
	for k := range m.secrets[service] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func checkServiceKey(op, service, key string) error {
	if service == "" {
		return sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}
