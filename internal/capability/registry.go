// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package capability

import (
	"slices"
	"sync"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Registry is a goroutine-safe map of capability kinds to implementations.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Kind]Capability
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[Kind]Capability),
	}
}

// Register adds c under its own Kind, replacing any previous registration.
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return sigilerr.New(sigilerr.CodeCapabilityInvalidInput, "capability must not be nil")
	}
	if !c.Kind().Valid() {
		return sigilerr.Errorf(sigilerr.CodeCapabilityInvalidInput, "unknown capability kind %q", c.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.Kind()] = c
	return nil
}

// Lookup returns the capability registered for kind.
func (r *Registry) Lookup(kind Kind) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[kind]
	if !ok {
		return nil, sigilerr.New(sigilerr.CodeCapabilityNotFound, "capability not registered",
			sigilerr.FieldCapability(string(kind)))
	}
	return c, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.capabilities))
	for k := range r.capabilities {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
