// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// AuditStore persists the append-only transition trail of every query.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	// Query returns matching entries ordered by (timestamp, seq).
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
	Close() error
}

// ManualStore holds equipment manuals: free-text sections and the
// numeric limits they document.
type ManualStore interface {
	PutManual(ctx context.Context, manual *Manual) error
	GetManual(ctx context.Context, id string) (*Manual, error)
	ListManuals(ctx context.Context) ([]*Manual, error)

	SearchSections(ctx context.Context, query SectionQuery) ([]*Section, error)
	FindLimits(ctx context.Context, query LimitQuery) ([]*Limit, error)

	Close() error
}
