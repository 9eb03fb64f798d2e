// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/warden/internal/store"
)

// Payload kinds.
const (
	PayloadPlan    = "plan"
	PayloadResults = "results"
	PayloadDraft   = "draft"
	PayloadReport  = "report"
	PayloadError   = "error"
)

// Record is one state transition of one query. Seq is assigned by the
// controller and orders the records of a query.
type Record struct {
	QueryID     string
	Seq         int64
	Iteration   int
	From        string
	To          string
	PayloadKind string
	Payload     any
	Actor       string
	Timestamp   time.Time
}

// entry converts r into its persisted form. Payloads that cannot be
// encoded are replaced by an error object so the transition is still kept.
func (r Record) entry() *store.AuditEntry {
	raw, err := json.Marshal(r.Payload)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"encode_error": err.Error()})
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &store.AuditEntry{
		ID:          uuid.NewString(),
		QueryID:     r.QueryID,
		Seq:         r.Seq,
		Iteration:   r.Iteration,
		From:        r.From,
		To:          r.To,
		PayloadKind: r.PayloadKind,
		Payload:     raw,
		Actor:       r.Actor,
		Timestamp:   ts.UTC(),
	}
}
