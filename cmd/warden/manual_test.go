// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func TestReadManuals(t *testing.T) {
	manuals, err := readManuals([]byte(`
id: pump-a-manual
title: Pump A
equipment_id: pump-a
limits:
  - quantity: seal_temperature
    material: Viton
    max: 200
    unit: °C
---
title: Pump B
equipment_id: pump-b
`))
	require.NoError(t, err)
	require.Len(t, manuals, 2)

	assert.Equal(t, "pump-a-manual", manuals[0].ID)
	require.Len(t, manuals[0].Limits, 1)
	assert.Equal(t, 200.0, manuals[0].Limits[0].Max)

	_, err = uuid.Parse(manuals[1].ID)
	assert.NoError(t, err, "a manual without an id gets a generated one")
}

func TestReadManuals_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"empty", "", "no manuals found"},
		{"unknown field", "title: A\nequipment_id: a\nrating: 5\n", "field rating not found"},
		{"not yaml", "title: [unclosed\n", "decoding manual 1"},
		{"missing title", "equipment_id: a\n", "title is required"},
		{"limit without unit", "title: A\nequipment_id: a\nlimits:\n  - quantity: seal_temperature\n    max: 1\n", "needs quantity and unit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readManuals([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("input errors carry the cli code", func(t *testing.T) {
		_, err := readManuals(nil)
		assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLIInputInvalid))
	})
}
