// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/validator"
	"github.com/sigil-dev/warden/pkg/types"
)

// NoManualsFound is the answer line used when retrieval matched nothing.
const NoManualsFound = "No relevant manuals found."

// maxQuotedPassage caps how much of a passage is quoted in an answer.
const maxQuotedPassage = 300

// Synthesizer merges capability results into a draft. It holds no state
// and has no side effects.
type Synthesizer struct {
	cfg validator.Config
}

// NewSynthesizer uses cfg's thresholds to claim a risk level, so the claim
// agrees with what the validator will compute.
func NewSynthesizer(cfg validator.Config) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

// Synthesize builds the draft for the current iteration from this
// iteration's results and the latest successful result of every kind that
// was not invoked again. The draft is incomplete when every call made in
// this iteration failed.
func (s *Synthesizer) Synthesize(results map[capability.Kind]capability.Result, lc *LoopContext) validator.Draft {
	d := validator.Draft{}
	if lc != nil {
		d.QueryID = lc.Query.ID
		d.Iteration = lc.Iteration
	}

	merged := mergeResults(results, lc)
	if len(merged) == 0 || allFailed(results) {
		d.Incomplete = true
		d.Answer = "No capability returned evidence for this query."
		d.ClaimedRisk = types.RiskLow
		return d
	}

	dropUnsourced := false
	if r := lc.LastReport(); r != nil && r.HasViolation(validator.RuleEvidenceUnsourced) {
		dropUnsourced = true
	}

	var computed, limits []capability.Evidence
	for _, kind := range capability.Kinds() {
		res, ok := merged[kind]
		if !ok {
			continue
		}
		for _, e := range res.Evidence {
			if dropUnsourced && strings.TrimSpace(e.Source) == "" {
				continue
			}
			switch e.Kind {
			case capability.EvidenceComputed:
				computed = append(computed, e)
			case capability.EvidenceLimit:
				limits = append(limits, e)
			}
		}
		for _, p := range res.Passages {
			if dropUnsourced && strings.TrimSpace(p.Source) == "" {
				continue
			}
			d.Passages = append(d.Passages, p)
		}
	}

	d.Evidence = append(d.Evidence, computed...)
	d.Evidence = append(d.Evidence, limits...)

	comparisons := validator.Compare(d.Evidence)
	for _, c := range comparisons {
		kind := capability.EvidenceMargin
		if c.Exceeds() {
			kind = capability.EvidenceConflict
		}
		d.Evidence = append(d.Evidence, capability.Evidence{
			Kind:     kind,
			Quantity: c.Quantity,
			Value:    c.Value,
			Unit:     c.Unit,
			Limit:    c.Limit,
			Source:   c.LimitSource,
			Detail:   c.LimitDetail,
		})
	}

	d.ClaimedRisk = s.cfg.DomainRisk(d.Evidence)
	d.Answer = s.answer(lc, computed, limits, comparisons, d.Passages)
	d.Recommendation = s.recommendation(comparisons, d.ClaimedRisk)
	return d
}

// mergeResults falls back to an earlier success only for kinds absent from
// results. A kind invoked again and failed contributes nothing.
func mergeResults(results map[capability.Kind]capability.Result, lc *LoopContext) map[capability.Kind]capability.Result {
	merged := make(map[capability.Kind]capability.Result)
	for _, kind := range capability.Kinds() {
		if r, ok := results[kind]; ok {
			if r.OK() {
				merged[kind] = r
			}
			continue
		}
		if r, ok := lc.LatestSuccess(kind); ok {
			merged[kind] = r
		}
	}
	return merged
}

func (s *Synthesizer) answer(lc *LoopContext, computed, limits []capability.Evidence, comparisons []validator.Comparison, passages []capability.Passage) string {
	var lines []string

	operating := ""
	if lc != nil {
		if flow, ok := flowRate(lc.Query); ok {
			operating = fmt.Sprintf(" at %s m³/h", validator.FormatNumber(flow))
		}
	}

	compared := map[string]bool{}
	for _, c := range comparisons {
		compared[c.Quantity] = true
	}

	for _, e := range computed {
		lines = append(lines, fmt.Sprintf("The estimated %s%s is %s %s (%s).",
			humanize(e.Quantity), operating, validator.FormatNumber(e.Value), e.Unit, e.Source))
	}
	for _, c := range comparisons {
		where := c.LimitSource
		if c.LimitDetail != "" {
			where += ", " + c.LimitDetail
		}
		if c.Exceeds() {
			lines = append(lines, fmt.Sprintf("This exceeds the %s %s limit documented in %s.",
				validator.FormatNumber(c.Limit), c.Unit, where))
		} else {
			lines = append(lines, fmt.Sprintf("This is within the %s %s limit documented in %s.",
				validator.FormatNumber(c.Limit), c.Unit, where))
		}
	}
	for _, e := range computed {
		if !compared[e.Quantity] {
			lines = append(lines, fmt.Sprintf("No documented limit was found for the %s, so the value could not be checked.",
				humanize(e.Quantity)))
		}
	}

	if len(computed) == 0 {
		for _, l := range limits {
			scope := ""
			if l.Detail != "" {
				scope = " for " + l.Detail
			}
			lines = append(lines, fmt.Sprintf("The documented %s limit%s is %s %s (%s).",
				humanize(l.Quantity), scope, validator.FormatNumber(l.Value), l.Unit, l.Source))
		}
		if len(passages) > 0 {
			p := passages[0]
			ref := p.Source
			if p.Ref != "" {
				ref += " section " + p.Ref
			}
			lines = append(lines, fmt.Sprintf("From %s: %s", ref, truncate(p.Text, maxQuotedPassage)))
		}
	}

	if len(limits) == 0 && len(passages) == 0 {
		lines = append(lines, NoManualsFound)
	}
	return strings.Join(lines, " ")
}

func (s *Synthesizer) recommendation(comparisons []validator.Comparison, risk types.RiskLevel) string {
	var exceeded []string
	for _, c := range comparisons {
		if c.Exceeds() {
			exceeded = append(exceeded, humanize(c.Quantity))
		}
	}
	switch {
	case len(exceeded) > 0:
		return fmt.Sprintf("Do not proceed: the %s would exceed the documented limit. "+
			"Keep the current operating point or use equipment rated for the new conditions.",
			strings.Join(exceeded, " and "))
	case risk.AtLeast(types.RiskHigh):
		return "Do not proceed until the values have been checked against the equipment documentation."
	case risk == types.RiskMedium:
		return "Proceed with caution and monitor the values closely; they are close to or missing a documented limit."
	default:
		return ""
	}
}

func humanize(quantity string) string {
	return strings.ReplaceAll(quantity, "_", " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func allFailed(results map[capability.Kind]capability.Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.OK() {
			return false
		}
	}
	return true
}
