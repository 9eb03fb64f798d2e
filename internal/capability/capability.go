// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package capability

import (
	"context"
	"fmt"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Kind identifies a capability. The set is closed: adding a capability means
// adding a Kind, a request variant, and a router rule.
type Kind string

const (
	KindCompute  Kind = "compute"
	KindRetrieve Kind = "retrieve"
)

// Kinds lists every known capability kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindCompute, KindRetrieve}
}

// Valid reports whether k is a known capability kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCompute, KindRetrieve:
		return true
	default:
		return false
	}
}

// Model names a quantity the compute capability can estimate.
type Model string

const (
	ModelSealTemperature   Model = "seal_temperature"
	ModelDischargePressure Model = "discharge_pressure"
)

// ComputeRequest asks the process simulator for one or more quantities at
// the given operating point.
type ComputeRequest struct {
	Models    []Model `json:"models"`
	FlowRate  float64 `json:"flow_rate"` // m³/h
	Viscosity float64 `json:"viscosity,omitempty"`
	Attempt   int     `json:"attempt"`
}

// RetrieveRequest asks the manual store for passages and documented limits.
type RetrieveRequest struct {
	Query       string   `json:"query"`
	EquipmentID string   `json:"equipment_id,omitempty"`
	Material    string   `json:"material,omitempty"`
	Quantities  []string `json:"quantities,omitempty"`
	TopK        int      `json:"top_k"`
	Broaden     bool     `json:"broaden,omitempty"`
	Attempt     int      `json:"attempt"`
}

// Request is a tagged variant: exactly one field is set.
type Request struct {
	Compute  *ComputeRequest  `json:"compute,omitempty"`
	Retrieve *RetrieveRequest `json:"retrieve,omitempty"`
}

// Kind reports which variant the request carries, or "" if none or both.
func (r Request) Kind() Kind {
	switch {
	case r.Compute != nil && r.Retrieve == nil:
		return KindCompute
	case r.Retrieve != nil && r.Compute == nil:
		return KindRetrieve
	default:
		return ""
	}
}

// EvidenceKind classifies an evidence entry.
type EvidenceKind string

const (
	EvidenceComputed EvidenceKind = "computed"
	EvidenceLimit    EvidenceKind = "limit"
	EvidencePassage  EvidenceKind = "passage"
	EvidenceConflict EvidenceKind = "conflict"
	EvidenceMargin   EvidenceKind = "margin"
)

// Evidence is the common result shape every capability reports: a value
// with its unit and source. Comparison entries (conflict, margin) also
// carry the limit the value was compared to.
type Evidence struct {
	Kind     EvidenceKind `json:"kind" validate:"required,oneof=computed limit passage conflict margin"`
	Quantity string       `json:"quantity,omitempty" validate:"required_unless=Kind passage"`
	Value    float64      `json:"value"`
	Unit     string       `json:"unit,omitempty" validate:"required_unless=Kind passage"`
	Limit    float64      `json:"limit,omitempty"`
	Source   string       `json:"source"`
	Detail   string       `json:"detail,omitempty"`
}

// Passage is a retrieved excerpt from a manual.
type Passage struct {
	Source string  `json:"source"`
	Ref    string  `json:"ref,omitempty"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// FailureKind is the closed set of capability failure types.
type FailureKind string

const (
	FailureTimeout      FailureKind = "timeout"
	FailureInvalidInput FailureKind = "invalid_input"
	FailureUnavailable  FailureKind = "unavailable"
)

// Failure is a typed capability failure. It is carried as data inside a
// Result and never aborts sibling calls.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Message   string      `json:"message"`
	Transient bool        `json:"transient"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Code maps the failure onto the error code taxonomy.
func (f *Failure) Code() sigilerr.Code {
	switch f.Kind {
	case FailureTimeout:
		return sigilerr.CodeCapabilityTimeout
	case FailureInvalidInput:
		return sigilerr.CodeCapabilityInvalidInput
	default:
		return sigilerr.CodeCapabilityUnavailable
	}
}

// Timeout builds a timeout failure. Timeouts are always transient.
func Timeout(format string, args ...any) *Failure {
	return &Failure{Kind: FailureTimeout, Message: fmt.Sprintf(format, args...), Transient: true}
}

// InvalidInput builds a non-transient invalid-input failure.
func InvalidInput(format string, args ...any) *Failure {
	return &Failure{Kind: FailureInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Unavailable builds an unavailable failure.
func Unavailable(transient bool, format string, args ...any) *Failure {
	return &Failure{Kind: FailureUnavailable, Message: fmt.Sprintf(format, args...), Transient: transient}
}

// Result is the tagged outcome of one capability call: a success payload or
// a Failure.
type Result struct {
	Kind     Kind       `json:"kind"`
	Evidence []Evidence `json:"evidence,omitempty"`
	Passages []Passage  `json:"passages,omitempty"`
	Failure  *Failure   `json:"failure,omitempty"`
	Attempts int        `json:"attempts"`
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Failed builds a failure-typed result.
func Failed(kind Kind, f *Failure) Result {
	return Result{Kind: kind, Failure: f}
}

// Capability is the uniform contract every computation or lookup service
// implements. The per-call timeout is carried by ctx; implementations
// return a *Failure for typed failures. Implementations should return once
// ctx is done: the invoker stops waiting at the deadline and discards
// anything returned later.
type Capability interface {
	Kind() Kind
	Invoke(ctx context.Context, req Request) (Result, error)
}
