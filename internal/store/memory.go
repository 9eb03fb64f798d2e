// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func init() {
	RegisterBackend("memory",
		func(string) (AuditStore, error) { return NewMemoryAuditStore(), nil },
		func(string) (ManualStore, error) { return NewMemoryManualStore(), nil },
	)
}

// Compile-time interface checks.
var (
	_ AuditStore  = (*MemoryAuditStore)(nil)
	_ ManualStore = (*MemoryManualStore)(nil)
)

// MemoryAuditStore is an in-process AuditStore for ephemeral runs and tests.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Append(_ context.Context, entry *AuditEntry) error {
	if entry == nil {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "audit entry must not be nil")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	cp := *entry
	cp.Payload = append([]byte(nil), entry.Payload...)

	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryAuditStore) Query(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*AuditEntry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return FilterAudit(out, filter), nil
}

func (s *MemoryAuditStore) Close() error { return nil }

// FilterAudit applies filter to entries in memory: matching, ordering by
// timestamp then seq, and pagination. The input slice is reordered.
func FilterAudit(entries []*AuditEntry, filter AuditFilter) []*AuditEntry {
	out := entries[:0]
	for _, e := range entries {
		if matchAudit(e, filter) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, compareAudit)
	return paginate(out, filter.Limit, filter.Offset)
}

func matchAudit(e *AuditEntry, f AuditFilter) bool {
	if f.QueryID != "" && e.QueryID != f.QueryID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	return true
}

func compareAudit(a, b *AuditEntry) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func paginate[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 1000
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// MemoryManualStore is an in-process ManualStore.
type MemoryManualStore struct {
	mu      sync.RWMutex
	manuals map[string]*Manual
}

func NewMemoryManualStore() *MemoryManualStore {
	return &MemoryManualStore{manuals: make(map[string]*Manual)}
}

func (s *MemoryManualStore) PutManual(_ context.Context, m *Manual) error {
	if m == nil {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "manual must not be nil")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	cp := stampManual(m)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.manuals[m.ID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryManualStore) GetManual(_ context.Context, id string) (*Manual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manuals[id]
	if !ok {
		return nil, sigilerr.Wrapf(ErrNotFound, sigilerr.CodeStoreEntityNotFound, "manual %s", id)
	}
	return stampManual(m), nil
}

func (s *MemoryManualStore) ListManuals(_ context.Context) ([]*Manual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Manual, 0, len(s.manuals))
	for _, m := range s.manuals {
		out = append(out, stampManual(m))
	}
	slices.SortFunc(out, func(a, b *Manual) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryManualStore) SearchSections(_ context.Context, q SectionQuery) ([]*Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Section
	for _, m := range s.manuals {
		if q.EquipmentID != "" && !strings.EqualFold(m.EquipmentID, q.EquipmentID) {
			continue
		}
		for _, sec := range m.Sections {
			score := ScoreText(sec.Heading+" "+sec.Text, q.Terms)
			if score == 0 {
				continue
			}
			cp := sec
			cp.Score = score
			out = append(out, &cp)
		}
	}
	SortSections(out)
	return paginate(out, topK(q.Limit), 0), nil
}

func (s *MemoryManualStore) FindLimits(_ context.Context, q LimitQuery) ([]*Limit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Limit
	for _, m := range s.manuals {
		for _, l := range m.Limits {
			if MatchLimit(l, q) {
				cp := l
				out = append(out, &cp)
			}
		}
	}
	SortLimits(out)
	return out, nil
}

func (s *MemoryManualStore) Close() error { return nil }

// stampManual deep-copies m and fills the denormalized fields of its
// sections and limits.
func stampManual(m *Manual) *Manual {
	cp := *m
	cp.Sections = make([]Section, len(m.Sections))
	for i, sec := range m.Sections {
		sec.ManualID, sec.Source, sec.EquipmentID = m.ID, m.Title, m.EquipmentID
		cp.Sections[i] = sec
	}
	cp.Limits = make([]Limit, len(m.Limits))
	for i, l := range m.Limits {
		l.ManualID, l.Source, l.EquipmentID = m.ID, m.Title, m.EquipmentID
		cp.Limits[i] = l
	}
	return &cp
}

// MatchLimit reports whether l satisfies q. A limit without a material
// applies to every material.
func MatchLimit(l Limit, q LimitQuery) bool {
	if q.EquipmentID != "" && !strings.EqualFold(l.EquipmentID, q.EquipmentID) {
		return false
	}
	if q.Material != "" && l.Material != "" && !strings.EqualFold(l.Material, q.Material) {
		return false
	}
	if len(q.Quantities) > 0 && !slices.Contains(q.Quantities, l.Quantity) {
		return false
	}
	return true
}

// SortSections orders by descending score, then manual and ref.
func SortSections(secs []*Section) {
	slices.SortStableFunc(secs, func(a, b *Section) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ManualID, b.ManualID); c != 0 {
			return c
		}
		return cmp.Compare(a.Ref, b.Ref)
	})
}

// SortLimits orders by manual, quantity, then material.
func SortLimits(limits []*Limit) {
	slices.SortStableFunc(limits, func(a, b *Limit) int {
		if c := cmp.Compare(a.ManualID, b.ManualID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Quantity, b.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Material, b.Material)
	})
}

func topK(k int) int {
	if k <= 0 {
		return 3
	}
	return k
}
