// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"sort"
	"strings"
	"sync"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Registry manages provider registration, lookup, and routing with
// failover. It implements the Router interface.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string   // "provider/model" format
	failover   []string // ordered list of "provider/model" refs
}

// Compile-time check that Registry implements Router.
var _ Router = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry under its name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, sigilerr.New(
			sigilerr.CodeProviderNotFound,
			"provider not found: "+name,
			sigilerr.FieldProvider(name),
		)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the "provider/model" reference used when Route is
// called without one.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRefLocked(ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetFailover sets the ordered failover chain of "provider/model" refs.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRefLocked(ref); err != nil {
			return err
		}
	}
	r.failover = append([]string(nil), chain...)
	return nil
}

// Route selects an available provider for modelRef, walking the failover
// chain when the primary is unavailable. An empty ref uses the default.
func (r *Registry) Route(ctx context.Context, modelRef string) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref := modelRef
	if ref == "" || ref == "default" {
		ref = r.defaultRef
	}
	if ref == "" {
		return nil, "", sigilerr.New(
			sigilerr.CodeProviderNoDefault,
			"no default provider configured",
		)
	}
	if !strings.Contains(ref, "/") {
		return nil, "", sigilerr.Errorf(
			sigilerr.CodeProviderInvalidModelRef,
			"model name %q must use provider/model format", ref,
		)
	}

	if p, model, err := r.tryRef(ctx, ref); err == nil {
		return p, model, nil
	}
	for _, fallback := range r.failover {
		if fallback == ref {
			continue
		}
		if p, model, err := r.tryRef(ctx, fallback); err == nil {
			return p, model, nil
		}
	}

	return nil, "", sigilerr.New(
		sigilerr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found",
	)
}

// Statuses reports each registered provider, sorted by name.
func (r *Registry) Statuses(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0)
	for _, name := range r.Names() {
		p, err := r.Get(name)
		if err != nil {
			continue
		}
		st, err := p.Status(ctx)
		if err != nil {
			st = ProviderStatus{Provider: name, Message: err.Error()}
		}
		out = append(out, st)
	}
	return out
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return sigilerr.Join(errs...)
	}
	return nil
}

// caller holds r.mu.
func (r *Registry) checkRefLocked(ref string) error {
	provName, model := ParseModelRef(ref)
	if model == "" {
		return sigilerr.Errorf(
			sigilerr.CodeProviderInvalidModelRef,
			"model name %q must use provider/model format", ref,
		)
	}
	if _, ok := r.providers[provName]; !ok {
		return sigilerr.New(
			sigilerr.CodeProviderNotFound,
			"provider not registered: "+provName,
			sigilerr.FieldProvider(provName),
		)
	}
	return nil
}

// tryRef looks up the provider of ref and checks availability.
// Caller must hold r.mu (at least RLock).
func (r *Registry) tryRef(ctx context.Context, ref string) (Provider, string, error) {
	providerName, model := ParseModelRef(ref)

	p, ok := r.providers[providerName]
	if !ok {
		return nil, "", sigilerr.New(
			sigilerr.CodeProviderNotFound,
			"provider not found: "+providerName,
			sigilerr.FieldProvider(providerName),
		)
	}

	if !p.Available(ctx) {
		return nil, "", sigilerr.New(
			sigilerr.CodeProviderUpstreamFailure,
			"provider unavailable: "+providerName,
			sigilerr.FieldProvider(providerName),
		)
	}

	return p, model, nil
}

// ParseModelRef splits a "provider/model" reference on the first "/".
func ParseModelRef(ref string) (providerName, model string) {
	idx := strings.Index(ref, "/")
	if idx < 0 {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}
