// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package validator

import (
	"math"
	"strconv"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/pkg/types"
)

// Comparison is a computed value set against a documented limit, both in
// the computed value's unit.
type Comparison struct {
	Quantity    string
	Value       float64
	Limit       float64
	Unit        string
	Source      string // of the computed value
	LimitSource string
	LimitDetail string
	Ratio       float64
}

// Exceeds reports whether the value is above the limit.
func (c Comparison) Exceeds() bool { return c.Value > c.Limit }

// Compare pairs every computed entry with every limit for the same
// quantity whose unit converts. Pairs whose units do not convert are
// skipped; the unit rule reports them.
func Compare(evidence []capability.Evidence) []Comparison {
	var out []Comparison
	for _, e := range evidence {
		if e.Kind != capability.EvidenceComputed {
			continue
		}
		for _, l := range evidence {
			if l.Kind != capability.EvidenceLimit || l.Quantity != e.Quantity {
				continue
			}
			limit, ok := capability.ConvertUnit(l.Value, l.Unit, e.Unit)
			if !ok {
				continue
			}
			out = append(out, Comparison{
				Quantity:    e.Quantity,
				Value:       e.Value,
				Limit:       limit,
				Unit:        e.Unit,
				Source:      e.Source,
				LimitSource: l.Source,
				LimitDetail: l.Detail,
				Ratio:       ratio(e.Value, limit),
			})
		}
	}
	return out
}

func ratio(value, limit float64) float64 {
	if limit == 0 {
		if value > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return value / limit
}

// RiskForRatio maps a value/limit ratio onto a risk level.
func (c Config) RiskForRatio(r float64) types.RiskLevel {
	switch {
	case r >= c.CriticalRatio:
		return types.RiskCritical
	case r > 1:
		return types.RiskHigh
	case r >= c.MarginRatio:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// DomainRisk is the risk implied by the data alone: every comparison
// (computed/limit pairs and explicit conflict/margin entries) is scored,
// and a computed value with no comparable limit is at least MEDIUM.
func (c Config) DomainRisk(evidence []capability.Evidence) types.RiskLevel {
	risk := types.RiskLow
	compared := map[string]bool{}
	for _, cmp := range Compare(evidence) {
		risk = types.MaxRisk(risk, c.RiskForRatio(cmp.Ratio))
		compared[cmp.Quantity] = true
	}
	for _, e := range evidence {
		switch e.Kind {
		case capability.EvidenceConflict, capability.EvidenceMargin:
			risk = types.MaxRisk(risk, c.RiskForRatio(ratio(e.Value, e.Limit)))
			compared[e.Quantity] = true
		}
	}
	for _, e := range evidence {
		if e.Kind == capability.EvidenceComputed && !compared[e.Quantity] {
			risk = types.MaxRisk(risk, types.RiskMedium)
		}
	}
	return risk
}

// FormatNumber renders v the way answers quote numbers: shortest exact
// decimal, no exponent.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
