// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package capability

import "strings"

type dimension int

const (
	dimTemperature dimension = iota + 1
	dimPressure
	dimFlow
)

type unitDef struct {
	dim      dimension
	toBase   func(float64) float64
	fromBase func(float64) float64
}

func linear(scale float64) (func(float64) float64, func(float64) float64) {
	return func(v float64) float64 { return v * scale }, func(v float64) float64 { return v / scale }
}

var units = func() map[string]unitDef {
	m := map[string]unitDef{
		"C": {dimTemperature, func(v float64) float64 { return v + 273.15 }, func(v float64) float64 { return v - 273.15 }},
		"F": {dimTemperature, func(v float64) float64 { return (v-32)*5/9 + 273.15 }, func(v float64) float64 { return (v-273.15)*9/5 + 32 }},
		"K": {dimTemperature, func(v float64) float64 { return v }, func(v float64) float64 { return v }},
	}
	for name, scale := range map[string]float64{"Pa": 1, "kPa": 1e3, "MPa": 1e6, "bar": 1e5, "psi": 6894.757293168} {
		to, from := linear(scale)
		m[name] = unitDef{dimPressure, to, from}
	}
	for name, scale := range map[string]float64{"m3/h": 1, "gpm": 0.2271247} {
		to, from := linear(scale)
		m[name] = unitDef{dimFlow, to, from}
	}
	return m
}()

var unitAliases = map[string]string{
	"°c": "C", "c": "C", "degc": "C", "℃": "C", "celsius": "C",
	"°f": "F", "f": "F", "degf": "F", "℉": "F", "fahrenheit": "F",
	"k": "K", "kelvin": "K",
	"pa": "Pa", "kpa": "kPa", "mpa": "MPa", "bar": "bar", "psi": "psi", "psig": "psi",
	"m³/h": "m3/h", "m3/h": "m3/h", "m3/hr": "m3/h", "gpm": "gpm",
}

// CanonicalUnit maps a unit spelling to its canonical symbol, or "" when
// the unit is unknown.
func CanonicalUnit(u string) string {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(u), " ", ""))
	return unitAliases[key]
}

// ConvertUnit converts v from one unit to another. It reports false when
// either unit is unknown or the two measure different dimensions.
func ConvertUnit(v float64, from, to string) (float64, bool) {
	cf, ct := CanonicalUnit(from), CanonicalUnit(to)
	if cf == "" || ct == "" {
		return 0, false
	}
	if cf == ct {
		return v, true
	}
	df, dt := units[cf], units[ct]
	if df.dim != dt.dim {
		return 0, false
	}
	return dt.fromBase(df.toBase(v)), true
}

// UnitsCompatible reports whether values in a and b can be compared.
func UnitsCompatible(a, b string) bool {
	_, ok := ConvertUnit(0, a, b)
	return ok
}
