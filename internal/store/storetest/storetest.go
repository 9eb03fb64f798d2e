// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package storetest holds the behavioural suite every store backend must
// pass, plus the fixtures it uses.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sigil-dev/warden/internal/store"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PumpManual returns the Pump A manual used across the test suites: a
// Viton seal rated to 200 °C and a casing rated to 1200 psi.
func PumpManual() *store.Manual {
	return &store.Manual{
		ID:          "pump-a-manual",
		Title:       "Pump A Manual",
		EquipmentID: "pump-a",
		Sections: []store.Section{
			{Ref: "4.2", Heading: "Mechanical seal", Text: "The Viton mechanical seal is rated for continuous operation up to 200 °C."},
			{Ref: "5.1", Heading: "Discharge pressure", Text: "Maximum allowable casing pressure is 1200 psi. The relief valve opens above this threshold."},
			{Ref: "7.3", Heading: "Lubrication", Text: "Grease bearings every 2000 operating hours."},
		},
		Limits: []store.Limit{
			{Component: "seal", Material: "Viton", Quantity: "seal_temperature", Max: 200, Unit: "°C", Ref: "4.2"},
			{Component: "casing", Quantity: "discharge_pressure", Max: 1200, Unit: "psi", Ref: "5.1"},
		},
	}
}

// CompressorManual is a second manual used to check equipment filtering.
func CompressorManual() *store.Manual {
	return &store.Manual{
		ID:          "comp-b-manual",
		Title:       "Compressor B Manual",
		EquipmentID: "comp-b",
		Sections: []store.Section{
			{Ref: "2.1", Heading: "Seal gas", Text: "Seal gas supply must stay above 3 bar."},
		},
		Limits: []store.Limit{
			{Component: "seal", Material: "PTFE", Quantity: "seal_temperature", Max: 260, Unit: "°C", Ref: "2.1"},
		},
	}
}

// Entry builds a valid audit entry for query qid.
func Entry(qid string, seq int64, from, to string, ts time.Time) *store.AuditEntry {
	payload, _ := json.Marshal(map[string]any{"seq": seq})
	return &store.AuditEntry{
		ID:          fmt.Sprintf("%s-%d", qid, seq),
		QueryID:     qid,
		Seq:         seq,
		Iteration:   1,
		From:        from,
		To:          to,
		PayloadKind: "plan",
		Payload:     payload,
		Actor:       "warden",
		Timestamp:   ts,
	}
}

// RunAuditStore exercises an AuditStore produced by open.
func RunAuditStore(t *testing.T, open func(t *testing.T) store.AuditStore) {
	t.Helper()

	t.Run("append and query by query id in order", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, s.Append(ctx, Entry("q1", 1, "PLANNING", "ACTING", base)))
		require.NoError(t, s.Append(ctx, Entry("q2", 1, "PLANNING", "FAILED", base.Add(time.Millisecond))))
		require.NoError(t, s.Append(ctx, Entry("q1", 2, "ACTING", "SYNTHESIZING", base.Add(2*time.Millisecond))))
		// Same timestamp as the previous q1 record: seq breaks the tie.
		require.NoError(t, s.Append(ctx, Entry("q1", 3, "SYNTHESIZING", "VALIDATING", base.Add(2*time.Millisecond))))

		got, err := s.Query(ctx, store.AuditFilter{QueryID: "q1"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, e := range got {
			assert.Equal(t, int64(i+1), e.Seq)
			assert.Equal(t, "q1", e.QueryID)
		}
		assert.Equal(t, "PLANNING", got[0].From)
		assert.Equal(t, "ACTING", got[0].To)
		assert.Equal(t, "plan", got[0].PayloadKind)
		assert.JSONEq(t, `{"seq":1}`, string(got[0].Payload))
		assert.True(t, got[0].Timestamp.Equal(base))
	})

	t.Run("time window and pagination", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := range 5 {
			require.NoError(t, s.Append(ctx, Entry("qw", int64(i+1), "A", "B", base.Add(time.Duration(i)*time.Second))))
		}

		got, err := s.Query(ctx, store.AuditFilter{From: base.Add(time.Second), To: base.Add(4 * time.Second)})
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = s.Query(ctx, store.AuditFilter{QueryID: "qw", Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].Seq)
		assert.Equal(t, int64(3), got[1].Seq)
	})

	t.Run("unknown query returns empty", func(t *testing.T) {
		s := open(t)
		got, err := s.Query(context.Background(), store.AuditFilter{QueryID: "missing"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("rejects invalid entry", func(t *testing.T) {
		s := open(t)
		err := s.Append(context.Background(), &store.AuditEntry{ID: "x"})
		require.Error(t, err)
		assert.True(t, sigilerr.IsInvalidInput(err))
	})
}

// RunManualStore exercises a ManualStore produced by open.
func RunManualStore(t *testing.T, open func(t *testing.T) store.ManualStore) {
	t.Helper()

	seed := func(t *testing.T) store.ManualStore {
		t.Helper()
		s := open(t)
		require.NoError(t, s.PutManual(context.Background(), PumpManual()))
		require.NoError(t, s.PutManual(context.Background(), CompressorManual()))
		return s
	}

	t.Run("get round trip", func(t *testing.T) {
		s := seed(t)
		m, err := s.GetManual(context.Background(), "pump-a-manual")
		require.NoError(t, err)
		assert.Equal(t, "Pump A Manual", m.Title)
		require.Len(t, m.Sections, 3)
		assert.Equal(t, "4.2", m.Sections[0].Ref)
		require.Len(t, m.Limits, 2)
		assert.Equal(t, "Pump A Manual", m.Limits[0].Source)
		assert.InDelta(t, 200.0, m.Limits[0].Max, 1e-9)
		assert.False(t, m.CreatedAt.IsZero())
	})

	t.Run("get missing is not found", func(t *testing.T) {
		s := open(t)
		_, err := s.GetManual(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, sigilerr.IsNotFound(err))
	})

	t.Run("put replaces existing manual", func(t *testing.T) {
		s := seed(t)
		m := PumpManual()
		m.Sections = m.Sections[:1]
		m.Limits = m.Limits[:1]
		require.NoError(t, s.PutManual(context.Background(), m))

		got, err := s.GetManual(context.Background(), m.ID)
		require.NoError(t, err)
		assert.Len(t, got.Sections, 1)
		assert.Len(t, got.Limits, 1)

		all, err := s.ListManuals(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "comp-b-manual", all[0].ID)
		assert.Equal(t, "pump-a-manual", all[1].ID)
	})

	t.Run("put rejects invalid manual", func(t *testing.T) {
		s := open(t)
		err := s.PutManual(context.Background(), &store.Manual{ID: "x"})
		require.Error(t, err)
		assert.True(t, sigilerr.IsInvalidInput(err))
	})

	t.Run("search ranks by term coverage", func(t *testing.T) {
		s := seed(t)
		got, err := s.SearchSections(context.Background(), store.SectionQuery{
			Terms: []string{"viton", "seal", "rated"},
		})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "4.2", got[0].Ref)
		assert.Equal(t, "Pump A Manual", got[0].Source)
		assert.InDelta(t, 1.0, got[0].Score, 1e-9)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	})

	t.Run("search filters by equipment and limit", func(t *testing.T) {
		s := seed(t)
		got, err := s.SearchSections(context.Background(), store.SectionQuery{
			Terms:       []string{"seal"},
			EquipmentID: "COMP-B",
			Limit:       1,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "comp-b-manual", got[0].ManualID)
	})

	t.Run("search without hits is empty", func(t *testing.T) {
		s := seed(t)
		got, err := s.SearchSections(context.Background(), store.SectionQuery{Terms: []string{"turbine"}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("find limits", func(t *testing.T) {
		s := seed(t)
		tests := []struct {
			name  string
			query store.LimitQuery
			want  []string
		}{
			{"all", store.LimitQuery{}, []string{"comp-b-manual/seal_temperature", "pump-a-manual/discharge_pressure", "pump-a-manual/seal_temperature"}},
			{"by equipment", store.LimitQuery{EquipmentID: "pump-a"}, []string{"pump-a-manual/discharge_pressure", "pump-a-manual/seal_temperature"}},
			{"material matches or is unset", store.LimitQuery{EquipmentID: "pump-a", Material: "viton"}, []string{"pump-a-manual/discharge_pressure", "pump-a-manual/seal_temperature"}},
			{"other material keeps generic limits", store.LimitQuery{EquipmentID: "pump-a", Material: "EPDM"}, []string{"pump-a-manual/discharge_pressure"}},
			{"by quantity", store.LimitQuery{Quantities: []string{"seal_temperature"}}, []string{"comp-b-manual/seal_temperature", "pump-a-manual/seal_temperature"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.FindLimits(context.Background(), tt.query)
				require.NoError(t, err)
				keys := make([]string, 0, len(got))
				for _, l := range got {
					keys = append(keys, l.ManualID+"/"+l.Quantity)
				}
				assert.Equal(t, tt.want, keys)
			})
		}
	})
}
