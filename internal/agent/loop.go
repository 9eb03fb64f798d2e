// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package agent runs the plan, act, synthesize and validate loop that
// resolves one query.
package agent

import (
	"context"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigil-dev/warden/internal/audit"
	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/metrics"
	"github.com/sigil-dev/warden/internal/validator"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/sigil-dev/warden/pkg/types"
)

// DefaultMaxIterations bounds how often PLANNING is entered per query.
const DefaultMaxIterations = 3

// Planner produces the plan for the current iteration.
type Planner interface {
	Route(ctx context.Context, q Query, lc *LoopContext) (Plan, error)
}

// Executor runs a plan's capability calls and joins them.
type Executor interface {
	Invoke(ctx context.Context, plan Plan) map[capability.Kind]capability.Result
}

// Drafter merges results into a draft.
type Drafter interface {
	Synthesize(results map[capability.Kind]capability.Result, lc *LoopContext) validator.Draft
}

// Checker validates a draft and returns the redacted copy.
type Checker interface {
	Validate(d validator.Draft) (validator.SafetyReport, validator.Draft)
}

// AuditSink receives one record per transition. Emit must not block.
type AuditSink interface {
	Emit(r audit.Record)
}

// Hooks are optional callbacks fired synchronously on the controller
// goroutine. They must not block.
type Hooks struct {
	// OnTransition fires after the audit record of a transition is emitted.
	OnTransition func(from, to State, iteration int)
	// OnTerminal fires once with the final outcome.
	OnTerminal func(out *Outcome)
}

// ControllerConfig holds dependencies for Controller.
type ControllerConfig struct {
	Router        Planner
	Invoker       Executor
	Synthesizer   Drafter
	Validator     Checker
	Audit         AuditSink
	MaxIterations int
	Hooks         *Hooks
	Logger        *slog.Logger
}

// Controller resolves queries. It is safe for concurrent use: every call
// to Resolve owns its own LoopContext and touches no shared state except
// the audit sink.
type Controller struct {
	router        Planner
	invoker       Executor
	synthesizer   Drafter
	validator     Checker
	audit         AuditSink
	maxIterations int
	hooks         *Hooks
	logger        *slog.Logger
}

type discardSink struct{}

func (discardSink) Emit(audit.Record) {}

// NewController validates cfg and builds a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	var missing []string
	if cfg.Router == nil {
		missing = append(missing, "Router")
	}
	if cfg.Invoker == nil {
		missing = append(missing, "Invoker")
	}
	if cfg.Synthesizer == nil {
		missing = append(missing, "Synthesizer")
	}
	if cfg.Validator == nil {
		missing = append(missing, "Validator")
	}
	if len(missing) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeAgentLoopInvalidInput, "controller config missing: %v", missing)
	}
	if cfg.MaxIterations < 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"max iterations must be at least 1, got %d", cfg.MaxIterations)
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Audit == nil {
		cfg.Audit = discardSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		router:        cfg.Router,
		invoker:       cfg.Invoker,
		synthesizer:   cfg.Synthesizer,
		validator:     cfg.Validator,
		audit:         cfg.Audit,
		maxIterations: cfg.MaxIterations,
		hooks:         cfg.Hooks,
		logger:        cfg.Logger,
	}, nil
}

// MaxIterations returns the configured bound.
func (c *Controller) MaxIterations() int { return c.maxIterations }

// run is the state of one resolution.
type run struct {
	c     *Controller
	ctx   context.Context
	lc    *LoopContext
	state State
	seq   int64
	span  trace.Span // current state
	start time.Time

	plan    Plan
	results map[capability.Kind]capability.Result
	draft   validator.Draft
}

// Resolve drives q to DONE or FAILED. It always returns an outcome; errors
// that end the query are carried in Outcome.Err.
func (c *Controller) Resolve(ctx context.Context, q Query) *Outcome {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "agent.resolve", trace.WithAttributes(
		attribute.String("query.id", q.ID),
		attribute.Int("loop.max_iterations", c.maxIterations),
	))
	defer span.End()

	r := &run{
		c:     c,
		ctx:   ctx,
		lc:    NewLoopContext(q),
		state: StatePlanning,
		start: time.Now(),
	}
	r.enterSpan()

	c.logger.Debug("resolving query", "query_id", q.ID)

	var out *Outcome
	for out == nil {
		if err := ctx.Err(); err != nil {
			out = r.fail(sigilerr.Wrapf(err, sigilerr.CodeAgentLoopCancelled,
				"query %s cancelled in %s", q.ID, r.state), nil)
			continue
		}

		switch r.state {
		case StatePlanning:
			out = r.planning()
		case StateActing:
			r.acting()
		case StateSynthesizing:
			out = r.synthesizing()
		case StateValidating:
			out = r.validating()
		default:
			out = r.fail(sigilerr.Errorf(sigilerr.CodeAgentLoopFailure, "unexpected state %s", r.state), nil)
		}
	}

	if out.Status == types.StatusSuccess {
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(sigilerr.CodeOf(out.Err)))
	}
	span.SetAttributes(
		attribute.String("query.status", string(out.Status)),
		attribute.Int("loop.iterations", out.Iterations),
	)

	metrics.RecordQuery(string(out.Status), out.Iterations, time.Since(r.start).Seconds())
	if c.hooks != nil && c.hooks.OnTerminal != nil {
		c.hooks.OnTerminal(out)
	}
	return out
}

// planning is the top of every iteration.
func (r *run) planning() *Outcome {
	plan, err := r.c.router.Route(r.ctx, r.lc.Query, r.lc)
	if err == nil && plan.Empty() {
		err = sigilerr.New(sigilerr.CodeAgentRouterNoMatch, "router returned an empty plan",
			sigilerr.FieldQueryID(r.lc.Query.ID))
	}
	if err != nil {
		r.c.logger.Info("routing failed",
			"query_id", r.lc.Query.ID,
			"iteration", r.lc.Iteration,
			"error", err,
		)
		return r.fail(err, nil)
	}

	r.plan = plan
	r.transition(StateActing, audit.PayloadPlan, plan)
	return nil
}

func (r *run) acting() {
	r.results = r.c.invoker.Invoke(r.ctx, r.plan)
	r.transition(StateSynthesizing, audit.PayloadResults, summarize(r.results, r.plan))
}

func (r *run) synthesizing() *Outcome {
	r.draft = r.c.synthesizer.Synthesize(r.results, r.lc)
	if !r.draft.Incomplete {
		r.transition(StateValidating, audit.PayloadDraft, summarizeDraft(r.draft))
		return nil
	}

	r.c.logger.Info("draft incomplete, re-planning",
		"query_id", r.lc.Query.ID,
		"iteration", r.lc.Iteration,
	)
	draft := r.draft
	r.closeIteration(&draft, nil)
	return r.loopBack(audit.PayloadDraft, summarizeDraft(draft))
}

func (r *run) validating() *Outcome {
	report, clean := r.c.validator.Validate(r.draft)
	metrics.RecordValidation(report.IsSafe, string(report.RiskLevel), ruleIDs(report))

	r.closeIteration(&clean, &report)

	if report.IsSafe {
		r.transition(StateDone, audit.PayloadReport, report)
		return r.done(clean, report)
	}

	r.c.logger.Info("draft rejected",
		"query_id", r.lc.Query.ID,
		"iteration", r.lc.Iteration,
		"rule_id", ruleIDs(report),
	)
	return r.loopBack(audit.PayloadReport, report)
}

// loopBack moves to PLANNING for the next iteration, or to FAILED when
// that iteration would exceed the bound.
func (r *run) loopBack(kind string, payload any) *Outcome {
	if r.lc.Iteration >= r.c.maxIterations {
		err := sigilerr.New(sigilerr.CodeAgentLoopBoundExceeded, "iteration bound reached without an approved answer",
			sigilerr.FieldQueryID(r.lc.Query.ID),
			sigilerr.FieldIteration(r.lc.Iteration),
		)
		return r.fail(err, payload)
	}
	r.transition(StatePlanning, kind, payload)
	r.lc.Iteration++
	return nil
}

func (r *run) closeIteration(d *validator.Draft, report *validator.SafetyReport) {
	r.lc.record(Iteration{
		Number:  r.lc.Iteration,
		Plan:    r.plan,
		Results: r.results,
		Draft:   d,
		Report:  report,
	})
}

func (r *run) done(d validator.Draft, report validator.SafetyReport) *Outcome {
	out := r.outcome(types.StatusSuccess)
	out.Answer = d.Answer
	if d.Recommendation != "" {
		out.Answer += " Recommendation: " + d.Recommendation
	}
	out.Evidence = d.Evidence
	out.RiskLevel = report.RiskLevel
	out.Draft = &d
	return out
}

// errorPayload is the audit payload of a transition into FAILED.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// fail transitions to FAILED. The outcome carries the best draft for human
// review, never as an approved answer.
func (r *run) fail(err error, detail any) *Outcome {
	code := sigilerr.CodeOf(err)
	if code == "" {
		code = sigilerr.CodeAgentLoopFailure
	}
	r.transition(StateFailed, audit.PayloadError, errorPayload{
		Code:    string(code),
		Message: err.Error(),
		Detail:  detail,
	})

	out := r.outcome(types.StatusFailed)
	out.Err = err
	out.Escalated = true
	out.Answer = escalationMessage(code)
	if best := r.lc.BestDraft; best != nil {
		d := *best
		out.Draft = &d
		out.Evidence = d.Evidence
	}

	var risks []types.RiskLevel
	for _, rep := range r.lc.Reports {
		risks = append(risks, rep.RiskLevel)
	}
	if len(risks) > 0 {
		out.RiskLevel = types.MaxRisk(risks...)
	}

	r.c.logger.Warn("query escalated for human review",
		"query_id", r.lc.Query.ID,
		"iteration", r.lc.Iteration,
		"code", code,
	)
	return out
}

func escalationMessage(code sigilerr.Code) string {
	switch code {
	case sigilerr.CodeAgentRouterNoMatch:
		return "The question could not be matched to any capability. It has been escalated for human review."
	case sigilerr.CodeAgentLoopBoundExceeded:
		return "No answer passed validation within the iteration limit. It has been escalated for human review; the best draft is attached and is not approved."
	case sigilerr.CodeAgentLoopCancelled:
		return "The query was cancelled before an answer was approved. It has been escalated for human review."
	default:
		return "The query could not be resolved. It has been escalated for human review."
	}
}

func (r *run) outcome(status types.Status) *Outcome {
	return &Outcome{
		QueryID:    r.lc.Query.ID,
		Status:     status,
		AuditID:    r.lc.Query.ID,
		Iterations: r.lc.Iteration,
		Reports:    append([]validator.SafetyReport(nil), r.lc.Reports...),
		Evidence:   []capability.Evidence{},
	}
}

// transition emits the audit record for r.state → to and moves there.
func (r *run) transition(to State, kind string, payload any) {
	from := r.state
	if !CanTransition(from, to) {
		// Programming error; recorded rather than hidden.
		r.c.logger.Error("illegal transition", "query_id", r.lc.Query.ID, "state", from, "to", to)
	}

	r.seq++
	actor := r.lc.Query.UserID
	if actor == "" {
		actor = "warden"
	}
	r.c.audit.Emit(audit.Record{
		QueryID:     r.lc.Query.ID,
		Seq:         r.seq,
		Iteration:   r.lc.Iteration,
		From:        string(from),
		To:          string(to),
		PayloadKind: kind,
		Payload:     payload,
		Actor:       actor,
		Timestamp:   time.Now().UTC(),
	})
	metrics.RecordTransition(string(from), string(to))

	r.span.End()
	r.state = to
	if !to.Terminal() {
		r.enterSpan()
	}

	if h := r.c.hooks; h != nil && h.OnTransition != nil {
		h.OnTransition(from, to, r.lc.Iteration)
	}
}

func (r *run) enterSpan() {
	_, r.span = tracer.Start(r.ctx, "agent.state."+string(r.state), trace.WithAttributes(
		attribute.String("query.id", r.lc.Query.ID),
		attribute.Int("loop.iteration", r.lc.Iteration),
	))
}

// resultSummary is the audit payload of ACTING → SYNTHESIZING.
type resultSummary struct {
	Kind     capability.Kind     `json:"kind"`
	OK       bool                `json:"ok"`
	Reused   bool                `json:"reused,omitempty"`
	Attempts int                 `json:"attempts,omitempty"`
	Evidence int                 `json:"evidence"`
	Passages int                 `json:"passages"`
	Failure  *capability.Failure `json:"failure,omitempty"`
}

func summarize(results map[capability.Kind]capability.Result, plan Plan) []resultSummary {
	var out []resultSummary
	for _, kind := range plan.Kinds() {
		step, _ := plan.Step(kind)
		if step.Reused {
			out = append(out, resultSummary{Kind: kind, OK: true, Reused: true})
			continue
		}
		res, ok := results[kind]
		if !ok {
			continue
		}
		out = append(out, resultSummary{
			Kind:     kind,
			OK:       res.OK(),
			Attempts: res.Attempts,
			Evidence: len(res.Evidence),
			Passages: len(res.Passages),
			Failure:  res.Failure,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// draftSummary is the audit payload for a draft. Text fields are left out:
// the draft has not been redacted yet when it is recorded.
type draftSummary struct {
	Incomplete     bool                  `json:"incomplete,omitempty"`
	ClaimedRisk    types.RiskLevel       `json:"claimed_risk,omitempty"`
	AnswerChars    int                   `json:"answer_chars"`
	Recommendation bool                  `json:"recommendation"`
	Evidence       []capability.Evidence `json:"evidence"`
	Passages       int                   `json:"passages"`
}

func summarizeDraft(d validator.Draft) draftSummary {
	ev := make([]capability.Evidence, len(d.Evidence))
	for i, e := range d.Evidence {
		e.Detail = ""
		ev[i] = e
	}
	return draftSummary{
		Incomplete:     d.Incomplete,
		ClaimedRisk:    d.ClaimedRisk,
		AnswerChars:    utf8.RuneCountInString(d.Answer),
		Recommendation: d.Recommendation != "",
		Evidence:       ev,
		Passages:       len(d.Passages),
	}
}

func ruleIDs(report validator.SafetyReport) []string {
	ids := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		ids = append(ids, v.RuleID)
	}
	return ids
}

// IsBoundExceeded reports whether err ended a query at the iteration bound.
func IsBoundExceeded(err error) bool {
	return sigilerr.HasCode(err, sigilerr.CodeAgentLoopBoundExceeded)
}
