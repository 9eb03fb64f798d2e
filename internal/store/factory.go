// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// AuditStoreFactory creates the audit store rooted at a data directory.
type AuditStoreFactory func(dataPath string) (AuditStore, error)

// ManualStoreFactory creates the manual store rooted at a data directory.
type ManualStoreFactory func(dataPath string) (ManualStore, error)

var (
	auditFactories  = map[string]AuditStoreFactory{}
	manualFactories = map[string]ManualStoreFactory{}
	factoriesMu     sync.RWMutex
)

// RegisterBackend registers factory functions for a named storage backend.
// Backend packages call this from init(). Goroutine-safe.
func RegisterBackend(name string, audit AuditStoreFactory, manuals ManualStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	auditFactories[name] = audit
	manualFactories[name] = manuals
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewAuditStore creates the audit store for the configured backend.
func NewAuditStore(cfg *StorageConfig, dataPath string) (AuditStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := auditFactories[backend]
	factoriesMu.RUnlock()
	if !ok || factory == nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}

// NewManualStore creates the manual store for the configured backend.
func NewManualStore(cfg *StorageConfig, dataPath string) (ManualStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := manualFactories[backend]
	factoriesMu.RUnlock()
	if !ok || factory == nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}
