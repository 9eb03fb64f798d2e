// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"errors"
)

var _ AuditStore = (*MultiAuditStore)(nil)

// MultiAuditStore writes every entry to a primary store and any number of
// mirrors. Reads are served by the primary only.
type MultiAuditStore struct {
	primary AuditStore
	mirrors []AuditStore
}

func NewMultiAuditStore(primary AuditStore, mirrors ...AuditStore) *MultiAuditStore {
	return &MultiAuditStore{primary: primary, mirrors: mirrors}
}

// Append writes to every store even when one fails and returns the joined
// errors.
func (m *MultiAuditStore) Append(ctx context.Context, entry *AuditEntry) error {
	errs := []error{m.primary.Append(ctx, entry)}
	for _, s := range m.mirrors {
		errs = append(errs, s.Append(ctx, entry))
	}
	return errors.Join(errs...)
}

func (m *MultiAuditStore) Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	return m.primary.Query(ctx, filter)
}

func (m *MultiAuditStore) Close() error {
	errs := []error{m.primary.Close()}
	for _, s := range m.mirrors {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
