// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/validator"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/sigil-dev/warden/pkg/types"
)

// IsNotFound reports whether err should be answered with 404.
// Service implementations return sigilerr.Errorf(sigilerr.CodeServerEntityNotFound, ...)
// or any other not_found code.
func IsNotFound(err error) bool {
	return sigilerr.IsNotFound(err)
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
// Use NewServices constructor to ensure all required services are provided.
type Services struct {
	queries  QueryService
	audit    AuditService
	status   StatusService
	workflow WorkflowService
}

// NewServices creates a Services instance with validation.
// Returns an error if any service is nil.
func NewServices(queries QueryService, audit AuditService, status StatusService, workflow WorkflowService) (*Services, error) {
	if queries == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "query service is required")
	}
	if audit == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "audit service is required")
	}
	if status == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "status service is required")
	}
	if workflow == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "workflow service is required")
	}
	return &Services{queries: queries, audit: audit, status: status, workflow: workflow}, nil
}

// Queries returns the query service.
func (s *Services) Queries() QueryService { return s.queries }

// Audit returns the audit trail service.
func (s *Services) Audit() AuditService { return s.audit }

// Status returns the status service.
func (s *Services) Status() StatusService { return s.status }

// Workflow returns the workflow service.
func (s *Services) Workflow() WorkflowService { return s.workflow }

// QueryService resolves a question. A query that ends FAILED is still a
// result; errors are reserved for requests that could not be run at all.
type QueryService interface {
	Submit(ctx context.Context, req QueryRequest) (*QueryResult, error)
}

// AuditService reads the audit trail of one query.
type AuditService interface {
	// Trail returns the records in order. It returns a not_found error when
	// the id has no records.
	Trail(ctx context.Context, auditID string) ([]AuditRecord, error)
}

// StatusService reports component health.
type StatusService interface {
	Status(ctx context.Context) (*StatusReport, error)
}

// WorkflowService renders the loop's state machine.
type WorkflowService interface {
	Mermaid() string
	MaxIterations() int
}

// QueryConstraints are optional structured hints for a query.
type QueryConstraints struct {
	EquipmentID string             `json:"equipment_id,omitempty" doc:"Equipment the question is about, e.g. pump-a"`
	Material    string             `json:"material,omitempty" doc:"Component material, e.g. viton"`
	Parameters  map[string]float64 `json:"parameters,omitempty" doc:"Operating parameters, e.g. flow_rate in m³/h"`
}

// QueryRequest is a question submitted for resolution.
type QueryRequest struct {
	Text        string           `json:"text" minLength:"1" maxLength:"4000" doc:"The question"`
	Constraints QueryConstraints `json:"constraints,omitempty"`
	UserID      string           `json:"user_id,omitempty" doc:"Recorded as the actor in the audit trail"`
}

// QueryResult is the terminal answer to a query.
type QueryResult struct {
	Status     types.Status             `json:"status" enum:"SUCCESS,FAILED"`
	Answer     string                   `json:"answer"`
	Evidence   []capability.Evidence    `json:"evidence"`
	AuditID    string                   `json:"audit_id" doc:"Key of the query's audit trail"`
	RiskLevel  types.RiskLevel          `json:"risk_level,omitempty"`
	Iterations int                      `json:"iterations"`
	Violations []validator.Violation    `json:"violations,omitempty" doc:"Violations of the final report"`
	Redactions []string                 `json:"redactions,omitempty"`
	Reports    []validator.SafetyReport `json:"reports,omitempty" doc:"Every safety report in validation order"`
	Escalated  bool                     `json:"escalated,omitempty" doc:"The answer needs human review"`
	Draft      *validator.Draft         `json:"draft,omitempty" doc:"Approved draft, or the best draft when the query failed"`
}

// AuditRecord is one persisted state transition.
type AuditRecord struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	Iteration   int             `json:"iteration"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	PayloadKind string          `json:"payload_kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// CapabilityHealth is the health of one capability kind.
type CapabilityHealth struct {
	Kind          string     `json:"kind"`
	Available     bool       `json:"available"`
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// ProviderHealth is the health of one LLM provider.
type ProviderHealth struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// StatusReport summarises the running service.
type StatusReport struct {
	Status        string             `json:"status" enum:"ok,degraded"`
	Router        string             `json:"router" doc:"Intent classification strategy"`
	MaxIterations int                `json:"max_iterations"`
	Capabilities  []CapabilityHealth `json:"capabilities"`
	Providers     []ProviderHealth   `json:"providers,omitempty"`
}
