// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := sigilerr.New(
		sigilerr.CodeAgentRouterNoMatch,
		"no capability matches query",
		sigilerr.FieldQueryID("q-123"),
		sigilerr.FieldIteration(2),
	)

	require.Error(t, err)
	assert.Equal(t, sigilerr.CodeAgentRouterNoMatch, sigilerr.CodeOf(err))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeAgentRouterNoMatch))

	fields := sigilerr.FieldsOf(err)
	assert.Equal(t, "q-123", fields["query_id"])
	assert.Equal(t, 2, fields["iteration"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, sigilerr.CodeStoreDatabaseFailure, sigilerr.CodeOf(err))
	assert.Contains(t, err.Error(), "write failed")
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := sigilerr.Wrap(root, sigilerr.CodeStoreEntityNotFound, "loading manual",
		sigilerr.FieldCapability("retrieve"))

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, sigilerr.IsNotFound(err))
	assert.Equal(t, "retrieve", sigilerr.FieldsOf(err)["capability"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, sigilerr.Wrap(nil, sigilerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, sigilerr.Wrapf(nil, sigilerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, sigilerr.With(nil, sigilerr.FieldQueryID("x")))
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := sigilerr.New(sigilerr.CodeCapabilityTimeout, "deadline exceeded")
	withCtx := sigilerr.With(base, sigilerr.FieldCapability("compute"))

	assert.Equal(t, sigilerr.CodeCapabilityTimeout, sigilerr.CodeOf(withCtx))
	assert.Equal(t, "compute", sigilerr.FieldsOf(withCtx)["capability"])
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := sigilerr.With(stderrors.New("something broke"), sigilerr.FieldQueryID("q-1"))
	assert.Equal(t, sigilerr.CodeServerInternalFailure, sigilerr.CodeOf(enriched))
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name string
		code sigilerr.Code
		is   func(error) bool
	}{
		{"router no match is not found", sigilerr.CodeAgentRouterNoMatch, sigilerr.IsNotFound},
		{"audit records not found", sigilerr.CodeAuditRecordsNotFound, sigilerr.IsNotFound},
		{"capability input invalid", sigilerr.CodeCapabilityInvalidInput, sigilerr.IsInvalidInput},
		{"config invalid value", sigilerr.CodeConfigValidateInvalidValue, sigilerr.IsInvalidInput},
		{"capability timeout", sigilerr.CodeCapabilityTimeout, sigilerr.IsTimeout},
		{"capability unavailable", sigilerr.CodeCapabilityUnavailable, sigilerr.IsUnavailable},
		{"loop cancelled", sigilerr.CodeAgentLoopCancelled, sigilerr.IsCancelled},
		{"provider upstream", sigilerr.CodeProviderUpstreamFailure, sigilerr.IsUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.is(sigilerr.New(tt.code, "x")))
		})
	}
}

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code sigilerr.Code
		want bool
	}{
		{"matching code", sigilerr.New(sigilerr.CodeStoreEntityNotFound, "gone"), sigilerr.CodeStoreEntityNotFound, true},
		{"non-matching code", sigilerr.New(sigilerr.CodeStoreEntityNotFound, "gone"), sigilerr.CodeStoreDatabaseFailure, false},
		{"nil error", nil, sigilerr.CodeStoreEntityNotFound, false},
		{"plain error", stderrors.New("plain"), sigilerr.CodeServerInternalFailure, false},
		{
			"wrapped coded error returns innermost code",
			sigilerr.Wrap(sigilerr.New(sigilerr.CodeStoreDatabaseFailure, "inner"), sigilerr.CodeServerInternalFailure, "outer"),
			sigilerr.CodeStoreDatabaseFailure,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sigilerr.HasCode(tt.err, tt.code))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code sigilerr.Code
		want int
	}{
		{sigilerr.CodeAuditRecordsNotFound, http.StatusNotFound},
		{sigilerr.CodeAgentLoopInvalidInput, http.StatusBadRequest},
		{sigilerr.CodeStoreConflict, http.StatusConflict},
		{sigilerr.CodeCapabilityTimeout, http.StatusGatewayTimeout},
		{sigilerr.CodeAgentLoopCancelled, http.StatusGatewayTimeout},
		{sigilerr.CodeCapabilityUnavailable, http.StatusServiceUnavailable},
		{sigilerr.CodeProviderUpstreamFailure, http.StatusBadGateway},
		{sigilerr.CodeAgentLoopFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, sigilerr.HTTPStatus(sigilerr.New(tt.code, "x")))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, sigilerr.HTTPStatus(stderrors.New("plain")))
}

func TestJoinKeepsAllErrors(t *testing.T) {
	a := stderrors.New("a")
	b := stderrors.New("b")
	err := sigilerr.Join(a, b)
	assert.ErrorIs(t, err, a)
	assert.ErrorIs(t, err, b)
}
