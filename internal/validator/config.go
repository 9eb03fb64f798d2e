// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package validator

import (
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// Config holds the risk thresholds and policy limits.
type Config struct {
	// MarginRatio is the value/limit ratio from which a value within its
	// limit is reported as MEDIUM risk.
	MarginRatio float64 `mapstructure:"margin_ratio"`
	// CriticalRatio is the value/limit ratio from which an exceedance is
	// CRITICAL rather than HIGH.
	CriticalRatio   float64 `mapstructure:"critical_ratio"`
	MaxAnswerLength int     `mapstructure:"max_answer_length"`
}

func DefaultConfig() Config {
	return Config{MarginRatio: 0.9, CriticalRatio: 1.25, MaxAnswerLength: 4000}
}

// Validate checks that the thresholds are ordered margin <= 1 < critical.
func (c Config) Validate() error {
	if c.MarginRatio <= 0 || c.MarginRatio > 1 {
		return sigilerr.Errorf(sigilerr.CodeValidatorRuleInvalid,
			"validator.margin_ratio must be in (0, 1], got %g", c.MarginRatio)
	}
	if c.CriticalRatio <= 1 {
		return sigilerr.Errorf(sigilerr.CodeValidatorRuleInvalid,
			"validator.critical_ratio must be greater than 1, got %g", c.CriticalRatio)
	}
	if c.MaxAnswerLength <= 0 {
		return sigilerr.Errorf(sigilerr.CodeValidatorRuleInvalid,
			"validator.max_answer_length must be positive, got %d", c.MaxAnswerLength)
	}
	return nil
}
