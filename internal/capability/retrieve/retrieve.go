// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package retrieve implements the manual lookup capability over a
// store.ManualStore.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/store"
)

// DefaultTopK is the passage count when a request does not set one.
const DefaultTopK = 3

var _ capability.Capability = (*Retriever)(nil)

// Retriever returns ranked manual passages and documented limits. A lookup
// that matches nothing succeeds with no evidence.
type Retriever struct {
	manuals store.ManualStore
	logger  *slog.Logger
}

func New(manuals store.ManualStore, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{manuals: manuals, logger: logger}
}

func (r *Retriever) Kind() capability.Kind { return capability.KindRetrieve }

func (r *Retriever) Invoke(ctx context.Context, req capability.Request) (capability.Result, error) {
	if err := ctx.Err(); err != nil {
		return capability.Result{}, err
	}
	rr := req.Retrieve
	if rr == nil || req.Kind() != capability.KindRetrieve {
		return capability.Result{}, capability.InvalidInput("retrieve request missing")
	}
	if strings.TrimSpace(rr.Query) == "" && rr.EquipmentID == "" {
		return capability.Result{}, capability.InvalidInput("retrieve needs a query or an equipment id")
	}

	topK := rr.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	sq := store.SectionQuery{Terms: store.Tokenize(rr.Query), Limit: topK}
	if !rr.Broaden {
		sq.EquipmentID = rr.EquipmentID
	}
	sections, err := r.manuals.SearchSections(ctx, sq)
	if err != nil {
		return capability.Result{}, lookupFailure(ctx, "searching manuals", err)
	}

	limits, err := r.manuals.FindLimits(ctx, store.LimitQuery{
		EquipmentID: rr.EquipmentID,
		Material:    rr.Material,
		Quantities:  rr.Quantities,
	})
	if err != nil {
		return capability.Result{}, lookupFailure(ctx, "finding limits", err)
	}

	res := capability.Result{Kind: capability.KindRetrieve}
	for _, sec := range sections {
		res.Passages = append(res.Passages, capability.Passage{
			Source: sec.Source,
			Ref:    sec.Ref,
			Text:   sec.Text,
			Score:  sec.Score,
		})
	}
	for _, l := range limits {
		res.Evidence = append(res.Evidence, capability.Evidence{
			Kind:     capability.EvidenceLimit,
			Quantity: l.Quantity,
			Value:    l.Max,
			Unit:     l.Unit,
			Limit:    l.Max,
			Source:   l.Source,
			Detail:   limitDetail(l),
		})
	}

	r.logger.Debug("retrieval complete",
		"equipment_id", rr.EquipmentID,
		"broaden", rr.Broaden,
		"passages", len(res.Passages),
		"limits", len(res.Evidence),
	)
	return res, nil
}

// lookupFailure keeps context errors intact so the invoker can classify
// deadlines; everything else is a transient outage of the store.
func lookupFailure(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return capability.Unavailable(true, "%s: %v", op, err)
}

func limitDetail(l *store.Limit) string {
	var parts []string
	if l.Material != "" {
		parts = append(parts, l.Material)
	}
	if l.Component != "" {
		parts = append(parts, l.Component)
	}
	d := strings.Join(parts, " ")
	if l.Ref != "" {
		if d != "" {
			d += " "
		}
		d += fmt.Sprintf("(section %s)", l.Ref)
	}
	return d
}
