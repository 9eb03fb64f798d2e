// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package validator_test

import (
	"testing"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/validator"
	"github.com/sigil-dev/warden/pkg/types"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	v, err := validator.New(validator.DefaultConfig(), nil)
	require.NoError(t, err)
	return v
}

// sealDraft is the draft for "increase flow to 200 m³/h, will Viton seals
// on Pump A survive?": 205 °C against a 200 °C limit, correctly reported.
func sealDraft() validator.Draft {
	return validator.Draft{
		QueryID:   "q-seal",
		Iteration: 1,
		Answer: "At 200 m³/h the estimated seal temperature is 205 °C, which exceeds " +
			"the 200 °C limit for Viton seals in the Pump A Manual.",
		Recommendation: "Do not increase flow to 200 m³/h with Viton seals installed.",
		Evidence: []capability.Evidence{
			{Kind: capability.EvidenceComputed, Quantity: "seal_temperature", Value: 205, Unit: "°C", Source: "Process Simulator"},
			{Kind: capability.EvidenceLimit, Quantity: "seal_temperature", Value: 200, Limit: 200, Unit: "°C", Source: "Pump A Manual"},
			{Kind: capability.EvidenceConflict, Quantity: "seal_temperature", Value: 205, Limit: 200, Unit: "°C", Source: "Pump A Manual"},
		},
		Passages: []capability.Passage{
			{Source: "Pump A Manual", Ref: "4.2", Text: "The Viton mechanical seal is rated for continuous operation up to 200 °C."},
		},
		ClaimedRisk: types.RiskHigh,
	}
}
