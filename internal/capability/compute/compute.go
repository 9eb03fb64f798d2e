// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package compute implements the process simulator capability.
package compute

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"github.com/sigil-dev/warden/internal/capability"
)

// Source is the evidence source for every simulated value.
const Source = "Process Simulator"

const paToPSI = 0.000145038

// Config holds the simulator constants.
type Config struct {
	BasePressurePSI    float64 `mapstructure:"base_pressure_psi"`
	FrictionFactor     float64 `mapstructure:"friction_factor"`
	PipeDiameterM      float64 `mapstructure:"pipe_diameter_m"`
	FluidDensity       float64 `mapstructure:"fluid_density"`
	ReliefThresholdPSI float64 `mapstructure:"relief_threshold_psi"`
	AmbientTempC       float64 `mapstructure:"ambient_temp_c"`
	SealHeatPerFlow    float64 `mapstructure:"seal_heat_per_flow"`
}

// DefaultConfig returns the constants of the reference pump loop.
func DefaultConfig() Config {
	return Config{
		BasePressurePSI:    1000,
		FrictionFactor:     0.02,
		PipeDiameterM:      0.1,
		FluidDensity:       850,
		ReliefThresholdPSI: 1200,
		AmbientTempC:       25,
		SealHeatPerFlow:    0.9,
	}
}

var _ capability.Capability = (*Simulator)(nil)

// Simulator estimates discharge pressure and seal-face temperature for a
// flow rate. It is deterministic and holds no mutable state.
type Simulator struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{cfg: cfg, logger: logger}
}

func (s *Simulator) Kind() capability.Kind { return capability.KindCompute }

func (s *Simulator) Invoke(ctx context.Context, req capability.Request) (capability.Result, error) {
	if err := ctx.Err(); err != nil {
		return capability.Result{}, err
	}
	cr := req.Compute
	if cr == nil || req.Kind() != capability.KindCompute {
		return capability.Result{}, capability.InvalidInput("compute request missing")
	}
	if math.IsNaN(cr.FlowRate) || math.IsInf(cr.FlowRate, 0) {
		return capability.Result{}, capability.InvalidInput("flow rate must be finite")
	}
	if cr.FlowRate < 0 {
		return capability.Result{}, capability.InvalidInput("flow rate must not be negative, got %g", cr.FlowRate)
	}
	if cr.Viscosity < 0 || math.IsNaN(cr.Viscosity) {
		return capability.Result{}, capability.InvalidInput("viscosity must not be negative")
	}

	models := cr.Models
	if len(models) == 0 {
		models = []capability.Model{capability.ModelSealTemperature, capability.ModelDischargePressure}
	}

	res := capability.Result{Kind: capability.KindCompute}
	for _, m := range dedupe(models) {
		switch m {
		case capability.ModelSealTemperature:
			res.Evidence = append(res.Evidence, s.sealTemperature(cr.FlowRate))
		case capability.ModelDischargePressure:
			res.Evidence = append(res.Evidence, s.dischargePressure(cr.FlowRate))
		default:
			return capability.Result{}, capability.InvalidInput("unknown model %q", m)
		}
	}

	s.logger.Debug("simulation complete",
		"flow_rate", cr.FlowRate,
		"models", len(res.Evidence),
		"attempt", cr.Attempt,
	)
	return res, nil
}

// SealTemperature is the seal-face temperature in °C at flow q (m³/h).
func (s *Simulator) SealTemperature(q float64) float64 {
	return round2(s.cfg.AmbientTempC + s.cfg.SealHeatPerFlow*q)
}

// DischargePressure is the total discharge pressure in psi at flow q (m³/h):
// the base pressure plus the Darcy-Weisbach friction loss over the pipe.
func (s *Simulator) DischargePressure(q float64) float64 {
	d := s.cfg.PipeDiameterM
	area := math.Pi * (d / 2) * (d / 2)
	velocity := q / (area * 3600)
	lossPa := s.cfg.FrictionFactor * (1 / d) * 0.5 * s.cfg.FluidDensity * velocity * velocity
	return round2(s.cfg.BasePressurePSI + lossPa*paToPSI)
}

func (s *Simulator) sealTemperature(q float64) capability.Evidence {
	return capability.Evidence{
		Kind:     capability.EvidenceComputed,
		Quantity: string(capability.ModelSealTemperature),
		Value:    s.SealTemperature(q),
		Unit:     "°C",
		Source:   Source,
	}
}

func (s *Simulator) dischargePressure(q float64) capability.Evidence {
	ev := capability.Evidence{
		Kind:     capability.EvidenceComputed,
		Quantity: string(capability.ModelDischargePressure),
		Value:    s.DischargePressure(q),
		Unit:     "psi",
		Source:   Source,
	}
	if ev.Value > s.cfg.ReliefThresholdPSI {
		ev.Detail = "approaching relief valve threshold"
	}
	return ev
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func dedupe(models []capability.Model) []capability.Model {
	out := make([]capability.Model, 0, len(models))
	for _, m := range models {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}
