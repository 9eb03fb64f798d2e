// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package capability_test

import (
	"testing"

	"github.com/sigil-dev/warden/internal/capability"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRequest_Kind(t *testing.T) {
	tests := []struct {
		name string
		req  capability.Request
		want capability.Kind
	}{
		{"compute", capability.Request{Compute: &capability.ComputeRequest{FlowRate: 10}}, capability.KindCompute},
		{"retrieve", capability.Request{Retrieve: &capability.RetrieveRequest{Query: "seal"}}, capability.KindRetrieve},
		{"empty", capability.Request{}, ""},
		{
			"both set is not a valid variant",
			capability.Request{Compute: &capability.ComputeRequest{}, Retrieve: &capability.RetrieveRequest{}},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Kind())
		})
	}
}

func TestFailure_TransienceAndCodes(t *testing.T) {
	tests := []struct {
		name          string
		failure       *capability.Failure
		wantTransient bool
		wantCode      sigilerr.Code
	}{
		{"timeout", capability.Timeout("deadline after %s", "5s"), true, sigilerr.CodeCapabilityTimeout},
		{"invalid input", capability.InvalidInput("negative flow"), false, sigilerr.CodeCapabilityInvalidInput},
		{"transient unavailable", capability.Unavailable(true, "db locked"), true, sigilerr.CodeCapabilityUnavailable},
		{"permanent unavailable", capability.Unavailable(false, "not registered"), false, sigilerr.CodeCapabilityUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTransient, tt.failure.Transient)
			assert.Equal(t, tt.wantCode, tt.failure.Code())
			assert.Contains(t, tt.failure.Error(), string(tt.failure.Kind))
		})
	}
}

func TestResult_OK(t *testing.T) {
	assert.True(t, capability.Result{Kind: capability.KindCompute}.OK())
	failed := capability.Failed(capability.KindCompute, capability.Timeout("slow"))
	assert.False(t, failed.OK())
	assert.Equal(t, capability.KindCompute, failed.Kind)
}

func TestKinds_AreValid(t *testing.T) {
	for _, k := range capability.Kinds() {
		assert.True(t, k.Valid(), "kind %q", k)
	}
	assert.False(t, capability.Kind("translate").Valid())
}
