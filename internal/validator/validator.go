// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package validator gates drafts behind a fixed schema and policy rule
// table and redacts personal data from them.
package validator

import (
	"log/slog"

	playground "github.com/go-playground/validator/v10"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/sigil-dev/warden/pkg/types"
)

// Validator evaluates drafts. It is safe for concurrent use.
type Validator struct {
	cfg    Config
	rules  []Rule
	schema *playground.Validate
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		cfg:    cfg,
		rules:  DefaultRules(),
		schema: playground.New(playground.WithRequiredStructEnabled()),
		logger: logger,
	}, nil
}

// Config returns the thresholds the validator scores risk with.
func (v *Validator) Config() Config { return v.cfg }

// Rules returns a copy of the rule table.
func (v *Validator) Rules() []Rule {
	out := make([]Rule, len(v.rules))
	copy(out, v.rules)
	return out
}

// Validate redacts d and evaluates the rule table against the redacted
// draft. It returns the report and the redacted draft. The same draft
// always yields the same report.
//
// Redaction runs first and records only field names: it never adds a
// violation and never feeds risk. The credential rule reads the draft as
// submitted, so a key that redaction masks is still reported.
func (v *Validator) Validate(d Draft) (SafetyReport, Draft) {
	clean, redactions := redactDraft(d)

	fieldErrs, err := structErrors(v.schema, clean)
	if err != nil {
		// Broken struct tags are a programming error; fail closed.
		v.logger.Error("draft schema evaluation failed", "error", err)
		report := SafetyReport{
			RiskLevel: types.RiskCritical,
			Violations: []Violation{{
				RuleID:   RuleSchemaRequired,
				Detail:   sigilerr.Wrap(err, sigilerr.CodeValidatorRuleInvalid, "evaluating struct tags").Error(),
				Severity: types.RiskCritical,
			}},
			RedactionsApplied: redactions,
		}
		return report, clean
	}

	ev := &evaluation{
		cfg:        v.cfg,
		draft:      clean,
		original:   d,
		fieldErrs:  fieldErrs,
		domainRisk: v.cfg.DomainRisk(clean.Evidence),
	}

	report := SafetyReport{
		Violations:        []Violation{},
		RedactionsApplied: redactions,
	}
	if report.RedactionsApplied == nil {
		report.RedactionsApplied = []string{}
	}

	risk := ev.domainRisk
	for _, rule := range v.rules {
		for _, detail := range rule.check(ev) {
			report.Violations = append(report.Violations, Violation{
				RuleID:   rule.ID,
				Detail:   detail,
				Severity: rule.Severity,
			})
			risk = types.MaxRisk(risk, rule.Severity)
		}
	}
	report.RiskLevel = risk
	report.IsSafe = len(report.Violations) == 0

	v.logger.Debug("draft validated",
		"query_id", d.QueryID,
		"iteration", d.Iteration,
		"is_safe", report.IsSafe,
		"risk_level", report.RiskLevel,
		"violations", len(report.Violations),
		"redactions", len(report.RedactionsApplied),
	)
	return report, clean
}
