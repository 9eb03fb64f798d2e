// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/validator"
	"github.com/sigil-dev/warden/pkg/types"
)

// Constraints are optional structured hints that accompany the query text.
type Constraints struct {
	EquipmentID string             `json:"equipment_id,omitempty"`
	Material    string             `json:"material,omitempty"`
	Parameters  map[string]float64 `json:"parameters,omitempty"`
}

// Query is the immutable input of one resolution.
type Query struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Constraints Constraints `json:"constraints"`
	UserID      string      `json:"user_id,omitempty"`
}

// Step is one capability call of a plan.
type Step struct {
	Kind    capability.Kind    `json:"kind"`
	Request capability.Request `json:"request"`
	// Reused marks a kind whose previous successful result is carried
	// forward instead of being invoked again.
	Reused bool `json:"reused,omitempty"`
}

// Plan is an ordered list of stages. Steps inside a stage run
// concurrently; stages run in order.
type Plan struct {
	Stages [][]Step `json:"stages"`
}

// Steps returns every step that will be invoked, in stage order.
func (p Plan) Steps() []Step {
	var out []Step
	for _, stage := range p.Stages {
		for _, s := range stage {
			if !s.Reused {
				out = append(out, s)
			}
		}
	}
	return out
}

// Kinds returns the kinds the plan covers, invoked or reused.
func (p Plan) Kinds() []capability.Kind {
	var out []capability.Kind
	for _, stage := range p.Stages {
		for _, s := range stage {
			out = append(out, s.Kind)
		}
	}
	return out
}

// Empty reports whether the plan covers no kind at all.
func (p Plan) Empty() bool {
	return len(p.Kinds()) == 0
}

// Step returns the step for kind, if the plan has one.
func (p Plan) Step(kind capability.Kind) (Step, bool) {
	for _, stage := range p.Stages {
		for _, s := range stage {
			if s.Kind == kind {
				return s, true
			}
		}
	}
	return Step{}, false
}

// Iteration is the history of one pass through the loop.
type Iteration struct {
	Number  int                                   `json:"number"`
	Plan    Plan                                  `json:"plan"`
	Results map[capability.Kind]capability.Result `json:"results,omitempty"`
	Draft   *validator.Draft                      `json:"draft,omitempty"`
	Report  *validator.SafetyReport               `json:"report,omitempty"`
}

// LoopContext is the per-query state owned by the controller. Components
// other than the controller only read it.
type LoopContext struct {
	Query      Query
	Iteration  int
	History    []Iteration
	Reports    []validator.SafetyReport
	Draft      *validator.Draft
	BestDraft  *validator.Draft
	lastResult map[capability.Kind]capability.Result
}

// NewLoopContext starts a context at iteration 1.
func NewLoopContext(q Query) *LoopContext {
	return &LoopContext{
		Query:      q,
		Iteration:  1,
		lastResult: make(map[capability.Kind]capability.Result),
	}
}

// Previous returns the last completed iteration, or nil on the first pass.
func (lc *LoopContext) Previous() *Iteration {
	if lc == nil || len(lc.History) == 0 {
		return nil
	}
	return &lc.History[len(lc.History)-1]
}

// LastReport returns the most recent safety report, or nil.
func (lc *LoopContext) LastReport() *validator.SafetyReport {
	if lc == nil || len(lc.Reports) == 0 {
		return nil
	}
	return &lc.Reports[len(lc.Reports)-1]
}

// LatestSuccess returns the most recent successful result for kind across
// all prior iterations.
func (lc *LoopContext) LatestSuccess(kind capability.Kind) (capability.Result, bool) {
	if lc == nil {
		return capability.Result{}, false
	}
	for i := len(lc.History) - 1; i >= 0; i-- {
		if r, ok := lc.History[i].Results[kind]; ok && r.OK() {
			return r, true
		}
	}
	return capability.Result{}, false
}

// LastResult returns the most recent result for kind, successful or not.
func (lc *LoopContext) LastResult(kind capability.Kind) (capability.Result, bool) {
	if lc == nil {
		return capability.Result{}, false
	}
	r, ok := lc.lastResult[kind]
	return r, ok
}

// record closes the current iteration. Only the controller calls it.
func (lc *LoopContext) record(it Iteration) {
	for k, r := range it.Results {
		lc.lastResult[k] = r
	}
	if it.Draft != nil {
		lc.Draft = it.Draft
		if !it.Draft.Incomplete || lc.BestDraft == nil || lc.BestDraft.Incomplete {
			lc.BestDraft = it.Draft
		}
	}
	if it.Report != nil {
		lc.Reports = append(lc.Reports, *it.Report)
	}
	lc.History = append(lc.History, it)
}

// Outcome is the terminal result returned to the caller. A FAILED outcome
// is never an approved answer: Answer explains the escalation and Draft
// holds the best candidate for human review.
type Outcome struct {
	QueryID    string                   `json:"query_id"`
	Status     types.Status             `json:"status"`
	Answer     string                   `json:"answer"`
	Evidence   []capability.Evidence    `json:"evidence"`
	AuditID    string                   `json:"audit_id"`
	RiskLevel  types.RiskLevel          `json:"risk_level,omitempty"`
	Iterations int                      `json:"iterations"`
	Reports    []validator.SafetyReport `json:"reports,omitempty"`
	Draft      *validator.Draft         `json:"draft,omitempty"`
	Escalated  bool                     `json:"escalated,omitempty"`
	Err        error                    `json:"-"`
}

// Report returns the final safety report, or nil.
func (o *Outcome) Report() *validator.SafetyReport {
	if o == nil || len(o.Reports) == 0 {
		return nil
	}
	return &o.Reports[len(o.Reports)-1]
}
