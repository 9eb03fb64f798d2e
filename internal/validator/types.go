// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package validator

import (
	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/pkg/types"
)

// Draft is a candidate answer plus the evidence it was derived from.
// Drafts are replaced each iteration, never mutated.
type Draft struct {
	QueryID        string                `json:"query_id"`
	Iteration      int                   `json:"iteration"`
	Answer         string                `json:"answer" validate:"required"`
	Recommendation string                `json:"recommendation,omitempty"`
	Evidence       []capability.Evidence `json:"evidence" validate:"dive"`
	Passages       []capability.Passage  `json:"passages,omitempty"`
	ClaimedRisk    types.RiskLevel       `json:"claimed_risk" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	// Incomplete marks a draft built without any successful evidence. It
	// is never validated.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Violation is one failed rule.
type Violation struct {
	RuleID   string          `json:"rule_id"`
	Detail   string          `json:"detail"`
	Severity types.RiskLevel `json:"severity"`
}

// SafetyReport is the verdict on a draft's schema and policy compliance.
// It does not judge whether the physical situation is safe: a draft that
// correctly reports an exceeded limit is safe with a HIGH risk level.
type SafetyReport struct {
	IsSafe            bool            `json:"is_safe"`
	RiskLevel         types.RiskLevel `json:"risk_level"`
	Violations        []Violation     `json:"violations"`
	RedactionsApplied []string        `json:"redactions_applied"`
}

// HasViolation reports whether the report contains ruleID.
func (r SafetyReport) HasViolation(ruleID string) bool {
	for _, v := range r.Violations {
		if v.RuleID == ruleID {
			return true
		}
	}
	return false
}
