// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/metrics"
	"github.com/sigil-dev/warden/internal/validator"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Router strategies.
const (
	StrategyRules = "rules"
	StrategyLLM   = "llm"
)

// DefaultTopK is the number of passages requested on a first retrieval.
const DefaultTopK = 3

// Classifier maps a query onto capability kinds. It backs the llm routing
// strategy; any error makes the router fall back to its keyword rules.
type Classifier interface {
	Classify(ctx context.Context, q Query) ([]capability.Kind, error)
}

// RouterConfig holds dependencies for Router.
type RouterConfig struct {
	// Classifier is optional. When nil the keyword rules are used.
	Classifier Classifier
	TopK       int
	Logger     *slog.Logger
}

// Router turns a query and the accumulated loop context into a plan.
type Router struct {
	classifier Classifier
	topK       int
	logger     *slog.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		classifier: cfg.Classifier,
		topK:       cfg.TopK,
		logger:     cfg.Logger,
	}
}

var (
	flowPattern      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(m3/h|m³/h|m3/hr|gpm)`)
	pressurePattern  = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(psi|bar|kpa|mpa)\b`)
	equipmentPattern = regexp.MustCompile(`\b(pump|compressor|valve|turbine|motor|exchanger)\s+([a-z]|\d+[a-z]?|[a-z]\d+)\b`)
)

var (
	computeVerbs   = []string{"increase", "decrease", "raise", "calculate", "estimate", "compute", "predict", "simulate"}
	retrieveTerms  = []string{"seal", "material", "manual", "limit", "rated", "rating", "safety", "safe", "survive", "spec", "maximum", "pump", "compressor", "valve", "turbine", "motor", "exchanger"}
	knownMaterials = []string{"viton", "epdm", "ptfe", "nitrile", "kalrez", "buna", "neoprene", "silicone", "graphite"}
)

// Route builds the plan for the current iteration. The first iteration
// classifies the query; later ones adjust the previous plan using the
// last results and safety report.
func (r *Router) Route(ctx context.Context, q Query, lc *LoopContext) (Plan, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Plan{}, sigilerr.New(sigilerr.CodeAgentRouterNoMatch, "query text is empty",
			sigilerr.FieldQueryID(q.ID))
	}

	if prev := lc.Previous(); prev != nil {
		return r.replan(q, lc, prev)
	}

	kinds := r.classify(ctx, q)
	if len(kinds) == 0 {
		return Plan{}, sigilerr.New(sigilerr.CodeAgentRouterNoMatch, "no capability matches query",
			sigilerr.FieldQueryID(q.ID))
	}

	steps := r.initialSteps(q, kinds)
	if len(steps) == 0 {
		return Plan{}, sigilerr.New(sigilerr.CodeAgentRouterNoMatch, "no capability request could be built for query",
			sigilerr.FieldQueryID(q.ID))
	}
	return Plan{Stages: [][]Step{steps}}, nil
}

func (r *Router) classify(ctx context.Context, q Query) []capability.Kind {
	if r.classifier == nil {
		return ClassifyRules(q)
	}

	kinds, err := r.classifier.Classify(ctx, q)
	if err == nil {
		kinds = normalizeKinds(kinds)
	}
	if err != nil || len(kinds) == 0 {
		reason := "empty"
		if err != nil {
			reason = string(sigilerr.CodeOf(err))
			if reason == "" {
				reason = "error"
			}
		}
		metrics.RecordRouterFallback(reason)
		r.logger.Warn("classifier unavailable, using keyword rules",
			"query_id", q.ID,
			"error", err,
		)
		return ClassifyRules(q)
	}
	if slices.Contains(kinds, capability.KindCompute) && !slices.Contains(kinds, capability.KindRetrieve) {
		kinds = append(kinds, capability.KindRetrieve)
	}
	return kinds
}

// ClassifyRules is the keyword classifier. A compute question always pulls
// retrieval too so the computed values can be checked against limits.
func ClassifyRules(q Query) []capability.Kind {
	text := strings.ToLower(q.Text)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	compute := flowPattern.MatchString(text) || pressurePattern.MatchString(text) ||
		containsAny(words, computeVerbs) || q.Constraints.Parameters["flow_rate"] > 0
	retrieve := compute || containsAny(words, retrieveTerms) || containsAny(words, knownMaterials) ||
		q.Constraints.EquipmentID != "" || q.Constraints.Material != ""

	var kinds []capability.Kind
	if compute {
		kinds = append(kinds, capability.KindCompute)
	}
	if retrieve {
		kinds = append(kinds, capability.KindRetrieve)
	}
	return kinds
}

func (r *Router) initialSteps(q Query, kinds []capability.Kind) []Step {
	models := modelsFor(q.Text)
	var steps []Step
	for _, k := range kinds {
		switch k {
		case capability.KindCompute:
			flow, ok := flowRate(q)
			if !ok {
				r.logger.Debug("no flow rate in query, skipping compute", "query_id", q.ID)
				continue
			}
			steps = append(steps, Step{Kind: k, Request: capability.Request{Compute: &capability.ComputeRequest{
				Models:    models,
				FlowRate:  flow,
				Viscosity: q.Constraints.Parameters["viscosity"],
				Attempt:   1,
			}}})
		case capability.KindRetrieve:
			quantities := make([]string, 0, len(models))
			for _, m := range models {
				quantities = append(quantities, string(m))
			}
			steps = append(steps, Step{Kind: k, Request: capability.Request{Retrieve: &capability.RetrieveRequest{
				Query:       q.Text,
				EquipmentID: EquipmentID(q),
				Material:    Material(q),
				Quantities:  quantities,
				TopK:        r.topK,
				Attempt:     1,
			}}})
		}
	}
	return steps
}

// implicated lists the kinds a rule violation points at.
func implicated(report *validator.SafetyReport) map[capability.Kind]bool {
	out := map[capability.Kind]bool{}
	if report == nil {
		return out
	}
	for _, v := range report.Violations {
		switch v.RuleID {
		case validator.RuleEvidenceUnsourced, validator.RuleEvidenceUnitMismatch, validator.RulePolicyLimitUnaddressed:
			out[capability.KindRetrieve] = true
		case validator.RuleSchemaValueFinite:
			out[capability.KindCompute] = true
		}
	}
	return out
}

// replan derives the next plan from the previous one so that no kind is
// invoked again with identical input.
func (r *Router) replan(q Query, lc *LoopContext, prev *Iteration) (Plan, error) {
	blamed := implicated(prev.Report)

	var steps []Step
	for _, kind := range prev.Plan.Kinds() {
		step, _ := prev.Plan.Step(kind)
		res, had := lc.LastResult(kind)

		switch {
		case !had:
			steps = append(steps, retry(step))
		case !res.OK() && res.Failure.Kind == capability.FailureInvalidInput:
			r.logger.Info("dropping capability after invalid input",
				"query_id", q.ID, "capability", kind, "iteration", lc.Iteration)
		case !res.OK() && !res.Failure.Transient:
			r.logger.Info("dropping unavailable capability",
				"query_id", q.ID, "capability", kind, "iteration", lc.Iteration)
		case !res.OK():
			steps = append(steps, retry(step))
		case kind == capability.KindRetrieve && (blamed[kind] || len(res.Evidence) == 0 && len(res.Passages) == 0):
			steps = append(steps, broaden(step))
		case blamed[kind]:
			steps = append(steps, retry(step))
		default:
			step.Reused = true
			steps = append(steps, step)
		}
	}

	if len(steps) == 0 {
		return Plan{}, sigilerr.New(sigilerr.CodeAgentRouterNoMatch, "no capability left to invoke",
			sigilerr.FieldQueryID(q.ID), sigilerr.FieldIteration(lc.Iteration))
	}

	plan := Plan{Stages: [][]Step{steps}}
	if len(plan.Steps()) == 0 {
		for i := range steps {
			steps[i] = retry(steps[i])
		}
	}
	return plan, nil
}

func retry(s Step) Step {
	s.Reused = false
	s.Request = cloneRequest(s.Request)
	if s.Request.Compute != nil {
		s.Request.Compute.Attempt++
	}
	if s.Request.Retrieve != nil {
		s.Request.Retrieve.Attempt++
	}
	return s
}

func broaden(s Step) Step {
	s = retry(s)
	if rr := s.Request.Retrieve; rr != nil {
		rr.Broaden = true
		if rr.TopK <= 0 {
			rr.TopK = DefaultTopK
		}
		rr.TopK *= 2
	}
	return s
}

func cloneRequest(req capability.Request) capability.Request {
	var out capability.Request
	if req.Compute != nil {
		c := *req.Compute
		c.Models = slices.Clone(c.Models)
		out.Compute = &c
	}
	if req.Retrieve != nil {
		rr := *req.Retrieve
		rr.Quantities = slices.Clone(rr.Quantities)
		out.Retrieve = &rr
	}
	return out
}

func modelsFor(text string) []capability.Model {
	t := strings.ToLower(text)
	temp := strings.Contains(t, "seal") || strings.Contains(t, "temperature") || strings.Contains(t, "survive")
	pressure := strings.Contains(t, "pressure") || strings.Contains(t, "psi")
	switch {
	case temp && !pressure:
		return []capability.Model{capability.ModelSealTemperature}
	case pressure && !temp:
		return []capability.Model{capability.ModelDischargePressure}
	default:
		return []capability.Model{capability.ModelSealTemperature, capability.ModelDischargePressure}
	}
}

// flowRate reads the operating flow in m³/h from the constraints or the
// text. gpm values are converted.
func flowRate(q Query) (float64, bool) {
	if v, ok := q.Constraints.Parameters["flow_rate"]; ok {
		return v, true
	}
	m := flowPattern.FindStringSubmatch(strings.ToLower(q.Text))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "gpm" {
		return capability.ConvertUnit(v, "gpm", "m3/h")
	}
	return v, true
}

// EquipmentID returns the equipment the query is about: the constraint if
// set, else a "<type> <tag>" mention such as "Pump A" → "pump-a".
func EquipmentID(q Query) string {
	if q.Constraints.EquipmentID != "" {
		return q.Constraints.EquipmentID
	}
	m := equipmentPattern.FindStringSubmatch(strings.ToLower(q.Text))
	if m == nil {
		return ""
	}
	return m[1] + "-" + m[2]
}

// Material returns the seal or component material named by the query.
func Material(q Query) string {
	if q.Constraints.Material != "" {
		return q.Constraints.Material
	}
	words := strings.Fields(strings.ToLower(q.Text))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()\"'")
		if slices.Contains(knownMaterials, w) {
			return w
		}
	}
	return ""
}

func containsAny(words, terms []string) bool {
	for _, w := range words {
		if slices.Contains(terms, w) {
			return true
		}
		// plural forms such as "seals" or "limits"
		if strings.HasSuffix(w, "s") && slices.Contains(terms, strings.TrimSuffix(w, "s")) {
			return true
		}
	}
	return false
}

func normalizeKinds(kinds []capability.Kind) []capability.Kind {
	var out []capability.Kind
	for _, k := range kinds {
		k = capability.Kind(strings.ToLower(strings.TrimSpace(string(k))))
		if k.Valid() && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}
