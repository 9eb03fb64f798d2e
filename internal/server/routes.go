// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "submit-query",
		Method:      http.MethodPost,
		Path:        "/api/v1/query",
		Summary:     "Ask a question",
		Description: "Runs the plan, act, synthesize and validate loop and returns the validated answer, " +
			"or an escalation when no draft passed validation.",
		Tags: []string{"queries"},
	}, s.handleSubmitQuery)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-audit-trail",
		Method:      http.MethodGet,
		Path:        "/api/v1/audit/{auditId}",
		Summary:     "Audit trail of a query",
		Tags:        []string{"audit"},
	}, s.handleGetAuditTrail)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-workflow",
		Method:      http.MethodGet,
		Path:        "/api/v1/workflow",
		Summary:     "Loop state machine as a Mermaid diagram",
		Tags:        []string{"system"},
	}, s.handleWorkflow)

	huma.Register(s.api, huma.Operation{
		OperationID: "service-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Capability and provider health",
		Tags:        []string{"system"},
	}, s.handleStatus)
}

// --- Request/Response types for huma ---

type submitQueryInput struct {
	Body QueryRequest
}
type submitQueryOutput struct {
	Body QueryResult
}

type auditTrailInput struct {
	AuditID string `path:"auditId" doc:"audit_id returned by submit-query"`
}
type auditTrailOutput struct {
	Body struct {
		AuditID string        `json:"audit_id"`
		Records []AuditRecord `json:"records"`
	}
}

type workflowOutput struct {
	Body struct {
		Mermaid       string `json:"mermaid"`
		MaxIterations int    `json:"max_iterations"`
	}
}

type statusOutput struct {
	Body StatusReport
}

// --- Handlers ---

func (s *Server) handleSubmitQuery(ctx context.Context, input *submitQueryInput) (*submitQueryOutput, error) {
	if s.services == nil {
		return nil, huma.Error503ServiceUnavailable("query loop not configured")
	}
	if strings.TrimSpace(input.Body.Text) == "" {
		return nil, huma.Error400BadRequest("query text must not be blank")
	}

	res, err := s.services.Queries().Submit(ctx, input.Body)
	if err != nil {
		return nil, s.toHumaError("submitting query", err)
	}
	return &submitQueryOutput{Body: *res}, nil
}

func (s *Server) handleGetAuditTrail(ctx context.Context, input *auditTrailInput) (*auditTrailOutput, error) {
	if s.services == nil {
		return nil, huma.Error503ServiceUnavailable("audit store not configured")
	}

	records, err := s.services.Audit().Trail(ctx, input.AuditID)
	if err != nil {
		if IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("audit trail %q not found", input.AuditID))
		}
		return nil, s.toHumaError("reading audit trail", err)
	}
	out := &auditTrailOutput{}
	out.Body.AuditID = input.AuditID
	out.Body.Records = records
	return out, nil
}

func (s *Server) handleWorkflow(_ context.Context, _ *struct{}) (*workflowOutput, error) {
	if s.services == nil {
		return nil, huma.Error503ServiceUnavailable("query loop not configured")
	}
	out := &workflowOutput{}
	out.Body.Mermaid = s.services.Workflow().Mermaid()
	out.Body.MaxIterations = s.services.Workflow().MaxIterations()
	return out, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	if s.services == nil {
		return nil, huma.Error503ServiceUnavailable("status not configured")
	}
	report, err := s.services.Status().Status(ctx)
	if err != nil {
		return nil, s.toHumaError("reading status", err)
	}
	return &statusOutput{Body: *report}, nil
}

// toHumaError maps a service error onto an HTTP error by its code. Details
// of internal failures are logged, not returned.
func (s *Server) toHumaError(op string, err error) error {
	status := sigilerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err, "code", sigilerr.CodeOf(err))
		if status == http.StatusInternalServerError {
			return huma.Error500InternalServerError(op + " failed")
		}
	}
	return huma.NewError(status, err.Error())
}
