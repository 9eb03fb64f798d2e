// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health

import (
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// DefaultCooldown is how long a backend stays unavailable after a
// non-transient failure before calls are attempted again.
const DefaultCooldown = 30 * time.Second

// Tracker tracks availability of one backend. It starts healthy;
// RecordFailure marks it unhealthy until the cooldown elapses.
type Tracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

// NewTracker returns a healthy tracker. cooldown must be positive.
func NewTracker(cooldown time.Duration) (*Tracker, error) {
	if cooldown <= 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &Tracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// caller holds h.mu.
func (h *Tracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy reports whether calls should be attempted.
func (h *Tracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *Tracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

func (h *Tracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *Tracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a snapshot of the tracker state.
func (h *Tracker) Metrics() Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := Metrics{FailureCount: h.failureCount}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	m.Available = h.isHealthyLocked()
	if !h.healthy {
		until := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &until
	}
	return m
}
