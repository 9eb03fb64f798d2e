// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"maps"
	"slices"

	"github.com/sigil-dev/warden/internal/agent"
	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/server"
	"github.com/sigil-dev/warden/internal/store"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Services builds the REST service adapters for the wired application.
func (a *App) Services() (*server.Services, error) {
	return server.NewServices(
		&queryServiceAdapter{app: a},
		&auditServiceAdapter{store: a.AuditStore},
		&statusServiceAdapter{app: a},
		&workflowServiceAdapter{maxIterations: a.Controller.MaxIterations()},
	)
}

// queryServiceAdapter bridges the controller to the server's QueryService.
type queryServiceAdapter struct {
	app *App
}

func (q *queryServiceAdapter) Submit(ctx context.Context, req server.QueryRequest) (*server.QueryResult, error) {
	out := q.app.Resolve(ctx, toQuery(req))
	res := toQueryResult(out)
	return &res, nil
}

func toQuery(req server.QueryRequest) agent.Query {
	return agent.Query{
		Text: req.Text,
		Constraints: agent.Constraints{
			EquipmentID: req.Constraints.EquipmentID,
			Material:    req.Constraints.Material,
			Parameters:  maps.Clone(req.Constraints.Parameters),
		},
		UserID: req.UserID,
	}
}

func toQueryResult(out *agent.Outcome) server.QueryResult {
	res := server.QueryResult{
		Status:     out.Status,
		Answer:     out.Answer,
		Evidence:   out.Evidence,
		AuditID:    out.AuditID,
		RiskLevel:  out.RiskLevel,
		Iterations: out.Iterations,
		Escalated:  out.Escalated,
		Draft:      out.Draft,
	}
	if res.Evidence == nil {
		res.Evidence = []capability.Evidence{}
	}
	if len(out.Reports) > 0 {
		res.Reports = slices.Clone(out.Reports)
	}
	if report := out.Report(); report != nil {
		res.Violations = report.Violations
		res.Redactions = report.RedactionsApplied
	}
	return res
}

// auditServiceAdapter serves audit trails from the audit store.
type auditServiceAdapter struct {
	store store.AuditStore
}

func (a *auditServiceAdapter) Trail(ctx context.Context, auditID string) ([]server.AuditRecord, error) {
	entries, err := a.store.Query(ctx, store.AuditFilter{QueryID: auditID})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeServerEntityNotFound, "audit trail %q not found", auditID)
	}
	out := make([]server.AuditRecord, len(entries))
	for i, e := range entries {
		out[i] = server.AuditRecord{
			ID:          e.ID,
			Seq:         e.Seq,
			Iteration:   e.Iteration,
			From:        e.From,
			To:          e.To,
			PayloadKind: e.PayloadKind,
			Payload:     e.Payload,
			Actor:       e.Actor,
			Timestamp:   e.Timestamp,
		}
	}
	return out, nil
}

// statusServiceAdapter reports capability and provider health.
type statusServiceAdapter struct {
	app *App
}

func (s *statusServiceAdapter) Status(ctx context.Context) (*server.StatusReport, error) {
	report := &server.StatusReport{
		Status:        "ok",
		Router:        s.app.Strategy(),
		MaxIterations: s.app.Controller.MaxIterations(),
		Capabilities:  []server.CapabilityHealth{},
	}

	tracked := s.app.Invoker.Health()
	for _, kind := range s.app.Capabilities.Kinds() {
		h := server.CapabilityHealth{Kind: string(kind), Available: true}
		if m, ok := tracked[kind]; ok {
			h.Available = m.Available
			h.FailureCount = m.FailureCount
			h.LastFailureAt = m.LastFailureAt
			h.CooldownUntil = m.CooldownUntil
		}
		if !h.Available {
			report.Status = "degraded"
		}
		report.Capabilities = append(report.Capabilities, h)
	}

	for _, st := range s.app.Providers.Statuses(ctx) {
		report.Providers = append(report.Providers, server.ProviderHealth{
			Name:      st.Provider,
			Available: st.Available,
			Message:   st.Message,
		})
	}
	return report, nil
}

// workflowServiceAdapter renders the loop's state machine.
type workflowServiceAdapter struct {
	maxIterations int
}

func (w *workflowServiceAdapter) Mermaid() string    { return agent.Mermaid(w.maxIterations) }
func (w *workflowServiceAdapter) MaxIterations() int { return w.maxIterations }
