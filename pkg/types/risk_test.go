// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskLevel_Ordering(t *testing.T) {
	ordered := []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank())
		assert.True(t, ordered[i].AtLeast(ordered[i-1]))
		assert.False(t, ordered[i-1].AtLeast(ordered[i]))
	}
}

func TestRiskLevel_Valid_RejectsUnknown(t *testing.T) {
	assert.False(t, RiskLevel("SEVERE").Valid())
	assert.False(t, RiskLevel("").Valid())
}

func TestMaxRisk(t *testing.T) {
	tests := []struct {
		name   string
		levels []RiskLevel
		want   RiskLevel
	}{
		{"empty defaults to low", nil, RiskLow},
		{"single", []RiskLevel{RiskMedium}, RiskMedium},
		{"picks most severe", []RiskLevel{RiskHigh, RiskLow, RiskCritical, RiskMedium}, RiskCritical},
		{"ignores unknown", []RiskLevel{"bogus", RiskMedium}, RiskMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxRisk(tt.levels...))
		})
	}
}

func TestParseRiskLevel(t *testing.T) {
	r, err := ParseRiskLevel(" high ")
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, r)

	_, err = ParseRiskLevel("extreme")
	assert.Error(t, err)
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusSuccess.Valid())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, Status("PENDING").Valid())
}
