// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// RiskLevel grades how dangerous the content of an answer is.
// Levels are totally ordered: LOW < MEDIUM < HIGH < CRITICAL.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Valid reports whether r is a recognized risk level.
func (r RiskLevel) Valid() bool {
	return r.Rank() > 0
}

// Rank returns the ordinal of r (1 for LOW through 4 for CRITICAL), or 0
// for an unknown level.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether r is as severe as other or more.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// MaxRisk returns the most severe of the given levels. Unknown levels are
// ignored; with no valid input the result is RiskLow.
func MaxRisk(levels ...RiskLevel) RiskLevel {
	out := RiskLow
	for _, l := range levels {
		if l.Rank() > out.Rank() {
			out = l
		}
	}
	return out
}

// ParseRiskLevel parses a case-insensitive risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"invalid risk level: %q", s)
	}
	return r, nil
}
