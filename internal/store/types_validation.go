// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"math"
	"strings"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Validate checks that the AuditEntry has the fields every sink relies on.
func (e AuditEntry) Validate() error {
	if e.ID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "audit entry: ID is required")
	}
	if e.QueryID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "audit entry: QueryID is required")
	}
	if e.To == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "audit entry: To state is required")
	}
	if e.Timestamp.IsZero() {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "audit entry: Timestamp is required")
	}
	return nil
}

// Validate checks the manual and every limit it documents.
func (m Manual) Validate() error {
	if m.ID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "manual: ID is required")
	}
	if strings.TrimSpace(m.Title) == "" {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "manual %s: title is required", m.ID)
	}
	if m.EquipmentID == "" {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "manual %s: equipment_id is required", m.ID)
	}
	for i, l := range m.Limits {
		if l.Quantity == "" || l.Unit == "" {
			return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput,
				"manual %s: limit %d needs quantity and unit", m.ID, i)
		}
		if math.IsNaN(l.Max) || math.IsInf(l.Max, 0) {
			return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput,
				"manual %s: limit %d max must be finite", m.ID, i)
		}
	}
	return nil
}
