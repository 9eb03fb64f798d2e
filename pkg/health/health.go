// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health

import "time"

// Metrics is a point-in-time snapshot of a capability's availability,
// safe to serialize to JSON for the status endpoint.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}
