// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/warden/internal/agent"
	"github.com/sigil-dev/warden/internal/audit"
	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/capability/compute"
	"github.com/sigil-dev/warden/internal/capability/retrieve"
	"github.com/sigil-dev/warden/internal/validator"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/sigil-dev/warden/pkg/types"
)

func transitionsOf(records []audit.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.From + "->" + r.To
	}
	return out
}

func TestController_SealScenario(t *testing.T) {
	h := newHarness(t)

	out := h.controller.Resolve(context.Background(), agent.Query{ID: "q-seal", Text: sealQuestion})

	require.Equal(t, types.StatusSuccess, out.Status, "err: %v", out.Err)
	assert.NoError(t, out.Err)
	assert.Equal(t, "q-seal", out.AuditID)
	assert.Equal(t, types.RiskHigh, out.RiskLevel)
	assert.Equal(t, 1, out.Iterations)
	assert.False(t, out.Escalated)
	require.NotNil(t, out.Draft, "the approved draft is attached")
	assert.False(t, out.Draft.Incomplete)

	report := out.Report()
	require.NotNil(t, report)
	assert.True(t, report.IsSafe)
	assert.Empty(t, report.Violations)

	conflicts := evidenceOfKind(out.Evidence, capability.EvidenceConflict)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "seal_temperature", conflicts[0].Quantity)
	assert.InDelta(t, 205.0, conflicts[0].Value, 1e-9)
	assert.InDelta(t, 200.0, conflicts[0].Limit, 1e-9)
	assert.Equal(t, "°C", conflicts[0].Unit)
	assert.Equal(t, "Pump A Manual", conflicts[0].Source)

	assert.Contains(t, out.Answer, "205 °C")
	assert.Contains(t, out.Answer, "exceeds the 200 °C limit")
	assert.Contains(t, out.Answer, "Do not proceed")

	assert.Equal(t, int64(1), h.compute.calls.Load())
	assert.Equal(t, int64(1), h.retrieve.calls.Load())

	records := h.audit.snapshot()
	assert.Equal(t, []string{
		"PLANNING->ACTING",
		"ACTING->SYNTHESIZING",
		"SYNTHESIZING->VALIDATING",
		"VALIDATING->DONE",
	}, transitionsOf(records))
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.Seq)
		assert.Equal(t, "q-seal", r.QueryID)
		assert.Equal(t, 1, r.Iteration)
	}
	assert.Equal(t, audit.PayloadPlan, records[0].PayloadKind)
	assert.Equal(t, audit.PayloadResults, records[1].PayloadKind)
	assert.Equal(t, audit.PayloadDraft, records[2].PayloadKind)
	assert.Equal(t, audit.PayloadReport, records[3].PayloadKind)
}

func TestController_EmptyQueryFailsImmediately(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "   \t\n"},
		{"unroutable", "hello there, how are you"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			out := h.controller.Resolve(context.Background(), agent.Query{ID: "q-empty", Text: tt.text})

			assert.Equal(t, types.StatusFailed, out.Status)
			assert.True(t, sigilerr.HasCode(out.Err, sigilerr.CodeAgentRouterNoMatch), "got %v", out.Err)
			assert.True(t, out.Escalated)
			assert.Contains(t, out.Answer, "escalated for human review")
			assert.Equal(t, "q-empty", out.AuditID)
			assert.Equal(t, int64(0), h.capabilityCalls())
			assert.Equal(t, int64(1), h.router.calls.Load())

			records := h.audit.snapshot()
			require.Len(t, records, 1)
			assert.Equal(t, "PLANNING->FAILED", transitionsOf(records)[0])
			assert.Equal(t, audit.PayloadError, records[0].PayloadKind)
		})
	}
}

func TestController_IterationBound(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("max_iterations=%d", n), func(t *testing.T) {
			rejecter := &rejectingValidator{}
			h := newHarness(t, withChecker(rejecter), withMaxIterations(n))

			out := h.controller.Resolve(context.Background(), agent.Query{ID: "q-bound", Text: sealQuestion})

			assert.Equal(t, types.StatusFailed, out.Status)
			assert.True(t, agent.IsBoundExceeded(out.Err), "got %v", out.Err)
			assert.True(t, out.Escalated)
			assert.Len(t, out.Reports, n)
			assert.Equal(t, n, out.Iterations)
			assert.Equal(t, int64(n), h.router.calls.Load(), "PLANNING entered once per iteration")
			assert.Equal(t, int64(n), rejecter.calls.Load())

			records := h.audit.snapshot()
			assert.Len(t, records, 4*n)
			last := records[len(records)-1]
			assert.Equal(t, "VALIDATING", last.From)
			assert.Equal(t, "FAILED", last.To)

			// The best draft is attached for review but the answer is not it.
			require.NotNil(t, out.Draft)
			assert.NotEqual(t, out.Draft.Answer, out.Answer)
			assert.Contains(t, out.Answer, "escalated for human review")
		})
	}
}

func TestController_SpecBoundOfThree(t *testing.T) {
	rejecter := &rejectingValidator{}
	var planning atomic.Int64
	hooks := &agent.Hooks{
		OnTransition: func(from, to agent.State, _ int) {
			if to == agent.StatePlanning {
				planning.Add(1)
			}
		},
	}
	h := newHarness(t, withChecker(rejecter), withMaxIterations(3), func(cfg *agent.ControllerConfig) {
		cfg.Hooks = hooks
	})

	out := h.controller.Resolve(context.Background(), agent.Query{Text: sealQuestion})

	assert.Equal(t, types.StatusFailed, out.Status)
	assert.Len(t, out.Reports, 3)
	// One initial entry plus two loop-backs.
	assert.Equal(t, int64(2), planning.Load())
	assert.Len(t, h.audit.snapshot(), 12)
}

func TestController_IncompleteDraftSkipsValidation(t *testing.T) {
	down := func(context.Context, capability.Request) (capability.Result, error) {
		return capability.Result{}, capability.Unavailable(true, "backend down")
	}
	comp := &fakeCapability{kind: capability.KindCompute, fn: down}
	ret := &fakeCapability{kind: capability.KindRetrieve, fn: down}
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(comp))
	require.NoError(t, reg.Register(ret))

	rejecter := &rejectingValidator{}
	sink := &recordingAudit{}
	c, err := agent.NewController(agent.ControllerConfig{
		Router:        agent.NewRouter(agent.RouterConfig{}),
		Invoker:       agent.NewInvoker(agent.InvokerConfig{Registry: reg, Timeout: time.Second}),
		Synthesizer:   agent.NewSynthesizer(validator.DefaultConfig()),
		Validator:     rejecter,
		Audit:         sink,
		MaxIterations: 2,
	})
	require.NoError(t, err)

	out := c.Resolve(context.Background(), agent.Query{ID: "q-down", Text: sealQuestion})

	assert.Equal(t, types.StatusFailed, out.Status)
	assert.True(t, agent.IsBoundExceeded(out.Err))
	assert.Equal(t, int64(0), rejecter.calls.Load(), "incomplete drafts are never validated")
	assert.Empty(t, out.Reports)
	require.NotNil(t, out.Draft)
	assert.True(t, out.Draft.Incomplete)

	assert.Equal(t, []string{
		"PLANNING->ACTING",
		"ACTING->SYNTHESIZING",
		"SYNTHESIZING->PLANNING",
		"PLANNING->ACTING",
		"ACTING->SYNTHESIZING",
		"SYNTHESIZING->FAILED",
	}, transitionsOf(sink.snapshot()))
	assert.Equal(t, int64(2), comp.calls.Load())
	assert.Equal(t, int64(2), ret.calls.Load())
}

// unsourcedOnce rejects the first draft for unsourced evidence and then
// defers to the real validator.
type unsourcedOnce struct {
	real  *validator.Validator
	calls atomic.Int64
}

func (u *unsourcedOnce) Validate(d validator.Draft) (validator.SafetyReport, validator.Draft) {
	if u.calls.Add(1) == 1 {
		return validator.SafetyReport{
			RiskLevel: types.RiskMedium,
			Violations: []validator.Violation{
				{RuleID: validator.RuleEvidenceUnsourced, Detail: "stub", Severity: types.RiskMedium},
			},
			RedactionsApplied: []string{},
		}, d
	}
	return u.real.Validate(d)
}

func TestController_LoopBackReusesUnaffectedResults(t *testing.T) {
	real, err := validator.New(validator.DefaultConfig(), nil)
	require.NoError(t, err)
	h := newHarness(t, withChecker(&unsourcedOnce{real: real}))

	out := h.controller.Resolve(context.Background(), agent.Query{ID: "q-reuse", Text: sealQuestion})

	require.Equal(t, types.StatusSuccess, out.Status, "err: %v", out.Err)
	assert.Equal(t, 2, out.Iterations)
	assert.Len(t, out.Reports, 2)
	assert.False(t, out.Reports[0].IsSafe)
	assert.True(t, out.Reports[1].IsSafe)

	assert.Equal(t, int64(1), h.compute.calls.Load(), "compute result is reused")
	assert.Equal(t, int64(2), h.retrieve.calls.Load(), "retrieval is broadened")
	assert.Len(t, evidenceOfKind(out.Evidence, capability.EvidenceConflict), 1)

	records := h.audit.snapshot()
	require.Len(t, records, 8)
	assert.Equal(t, "VALIDATING->PLANNING", transitionsOf(records)[3])
	assert.Equal(t, 1, records[3].Iteration)
	assert.Equal(t, 2, records[4].Iteration)
}

func TestController_FailedReinvocationSkipsValidation(t *testing.T) {
	real, err := validator.New(validator.DefaultConfig(), nil)
	require.NoError(t, err)
	checker := &unsourcedOnce{real: real}

	manuals := retrieve.New(pumpManuals(t), nil)
	ret := &fakeCapability{kind: capability.KindRetrieve}
	ret.fn = func(ctx context.Context, req capability.Request) (capability.Result, error) {
		if ret.calls.Load() == 1 {
			return manuals.Invoke(ctx, req)
		}
		return capability.Result{}, capability.Unavailable(true, "index offline")
	}
	comp := &countingCapability{Capability: compute.New(compute.DefaultConfig(), nil)}

	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(comp))
	require.NoError(t, reg.Register(ret))

	sink := &recordingAudit{}
	c, err := agent.NewController(agent.ControllerConfig{
		Router:        agent.NewRouter(agent.RouterConfig{}),
		Invoker:       agent.NewInvoker(agent.InvokerConfig{Registry: reg, Timeout: time.Second}),
		Synthesizer:   agent.NewSynthesizer(validator.DefaultConfig()),
		Validator:     checker,
		Audit:         sink,
		MaxIterations: 2,
	})
	require.NoError(t, err)

	out := c.Resolve(context.Background(), agent.Query{ID: "q-reinvoke", Text: sealQuestion})

	assert.Equal(t, types.StatusFailed, out.Status)
	assert.True(t, agent.IsBoundExceeded(out.Err))
	assert.Equal(t, int64(1), checker.calls.Load(), "the second draft is never validated")
	assert.Equal(t, int64(1), comp.calls.Load())
	assert.Equal(t, int64(2), ret.calls.Load())
	assert.Len(t, out.Reports, 1)

	assert.Equal(t, []string{
		"PLANNING->ACTING",
		"ACTING->SYNTHESIZING",
		"SYNTHESIZING->VALIDATING",
		"VALIDATING->PLANNING",
		"PLANNING->ACTING",
		"ACTING->SYNTHESIZING",
		"SYNTHESIZING->FAILED",
	}, transitionsOf(sink.snapshot()))
	for _, r := range sink.snapshot() {
		assert.Contains(t, []string{
			audit.PayloadPlan, audit.PayloadResults, audit.PayloadDraft, audit.PayloadReport, audit.PayloadError,
		}, r.PayloadKind)
	}
}

func TestController_CancellationFailsBetweenTransitions(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	block := &fakeCapability{kind: capability.KindCompute, fn: func(ctx context.Context, _ capability.Request) (capability.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return capability.Result{}, ctx.Err()
	}}
	ret := &fakeCapability{kind: capability.KindRetrieve}
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(block))
	require.NoError(t, reg.Register(ret))

	sink := &recordingAudit{}
	c, err := agent.NewController(agent.ControllerConfig{
		Router:      agent.NewRouter(agent.RouterConfig{}),
		Invoker:     agent.NewInvoker(agent.InvokerConfig{Registry: reg, Timeout: 10 * time.Second}),
		Synthesizer: agent.NewSynthesizer(validator.DefaultConfig()),
		Validator:   &rejectingValidator{},
		Audit:       sink,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	out := c.Resolve(ctx, agent.Query{ID: "q-cancel", Text: sealQuestion})

	assert.Equal(t, types.StatusFailed, out.Status)
	assert.True(t, sigilerr.IsCancelled(out.Err), "got %v", out.Err)
	assert.Contains(t, out.Answer, "cancelled")

	records := sink.snapshot()
	require.NotEmpty(t, records)
	assert.Equal(t, "FAILED", records[len(records)-1].To)
	assert.Equal(t, []string{
		"PLANNING->ACTING",
		"ACTING->SYNTHESIZING",
		"SYNTHESIZING->FAILED",
	}, transitionsOf(records))
}

func TestController_AlreadyCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := h.controller.Resolve(ctx, agent.Query{Text: sealQuestion})

	assert.Equal(t, types.StatusFailed, out.Status)
	assert.True(t, sigilerr.IsCancelled(out.Err))
	assert.Equal(t, int64(0), h.router.calls.Load())
	assert.Equal(t, []string{"PLANNING->FAILED"}, transitionsOf(h.audit.snapshot()))
}

func TestController_HooksAndGeneratedID(t *testing.T) {
	var (
		mu    sync.Mutex
		seen  []string
		final *agent.Outcome
	)
	hooks := &agent.Hooks{
		OnTransition: func(from, to agent.State, _ int) {
			mu.Lock()
			seen = append(seen, string(from)+"->"+string(to))
			mu.Unlock()
		},
		OnTerminal: func(out *agent.Outcome) { final = out },
	}
	h := newHarness(t, func(cfg *agent.ControllerConfig) { cfg.Hooks = hooks })

	out := h.controller.Resolve(context.Background(), agent.Query{Text: sealQuestion, UserID: "operator-7"})

	assert.NotEmpty(t, out.QueryID)
	assert.Equal(t, out.QueryID, out.AuditID)
	assert.Same(t, out, final)
	assert.Equal(t, transitionsOf(h.audit.snapshot()), seen)
	for _, r := range h.audit.snapshot() {
		assert.Equal(t, "operator-7", r.Actor)
	}
}

func TestController_ConcurrentQueriesAreIndependent(t *testing.T) {
	h := newHarness(t)

	const n = 8
	var wg sync.WaitGroup
	outs := make([]*agent.Outcome, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i] = h.controller.Resolve(context.Background(), agent.Query{
				ID:   fmt.Sprintf("q-%d", i),
				Text: sealQuestion,
			})
		}()
	}
	wg.Wait()

	for _, out := range outs {
		assert.Equal(t, types.StatusSuccess, out.Status)
	}

	perQuery := map[string][]int64{}
	for _, r := range h.audit.snapshot() {
		perQuery[r.QueryID] = append(perQuery[r.QueryID], r.Seq)
	}
	require.Len(t, perQuery, n)
	for qid, seqs := range perQuery {
		assert.Equal(t, []int64{1, 2, 3, 4}, seqs, "query %s", qid)
	}
}

func TestNewController_Validation(t *testing.T) {
	_, err := agent.NewController(agent.ControllerConfig{})
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeAgentLoopInvalidInput))

	h := newHarness(t)
	assert.Equal(t, agent.DefaultMaxIterations, h.controller.MaxIterations())

	_, err = agent.NewController(agent.ControllerConfig{
		Router:        agent.NewRouter(agent.RouterConfig{}),
		Invoker:       agent.NewInvoker(agent.InvokerConfig{}),
		Synthesizer:   agent.NewSynthesizer(validator.DefaultConfig()),
		Validator:     &rejectingValidator{},
		MaxIterations: -1,
	})
	assert.True(t, sigilerr.IsInvalidInput(err))
}
