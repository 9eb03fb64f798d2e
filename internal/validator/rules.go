// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package validator

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	playground "github.com/go-playground/validator/v10"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/pkg/types"
)

// Rule identifiers. They appear in reports, audit records and router
// feedback, so they are part of the external contract.
const (
	RuleSchemaRequired         = "schema.required"
	RuleSchemaEnum             = "schema.enum"
	RuleSchemaValueFinite      = "schema.value_finite"
	RuleEvidenceUnsourced      = "evidence.unsourced"
	RuleEvidenceUnitMismatch   = "evidence.unit_mismatch"
	RulePolicyLimitUnaddressed = "policy.limit_unaddressed"
	RulePolicyRecommendation   = "policy.recommendation_missing"
	RulePolicyRiskUnderstated  = "policy.risk_understated"
	RulePolicyAnswerTooLong    = "policy.answer_too_long"
	RuleContentCredential      = "content.credential"
)

// Rule is one row of the policy table.
type Rule struct {
	ID          string
	Severity    types.RiskLevel
	Description string
	check       func(*evaluation) []string
}

// evaluation is the per-draft state shared by the rules of one run.
type evaluation struct {
	cfg        Config
	draft      Draft
	// original is the draft before redaction. Credential checks read it
	// because redaction also masks credentials.
	original   Draft
	fieldErrs  playground.ValidationErrors
	domainRisk types.RiskLevel
}

// DefaultRules returns the policy table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{RuleSchemaRequired, types.RiskMedium, "required fields are present", checkRequired},
		{RuleSchemaEnum, types.RiskMedium, "enumerated fields hold known values", checkEnum},
		{RuleSchemaValueFinite, types.RiskHigh, "numeric evidence is finite", checkFinite},
		{RuleEvidenceUnsourced, types.RiskMedium, "every evidence entry names its source", checkSourced},
		{RuleEvidenceUnitMismatch, types.RiskHigh, "computed values and their limits use comparable units", checkUnits},
		{RulePolicyLimitUnaddressed, types.RiskHigh, "every exceeded limit is stated in the answer", checkLimitsAddressed},
		{RulePolicyRecommendation, types.RiskHigh, "HIGH or CRITICAL risk carries a recommendation", checkRecommendation},
		{RulePolicyRiskUnderstated, types.RiskHigh, "claimed risk is not below the risk the data implies", checkRiskClaim},
		{RulePolicyAnswerTooLong, types.RiskLow, "answer fits the configured length", checkLength},
		{RuleContentCredential, types.RiskCritical, "no credentials in answer content", checkCredentials},
	}
}

func fieldErrorsWithTag(ev *evaluation, match func(tag string) bool) []string {
	var out []string
	for _, fe := range ev.fieldErrs {
		if match(fe.Tag()) {
			out = append(out, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	return out
}

func checkRequired(ev *evaluation) []string {
	return fieldErrorsWithTag(ev, func(tag string) bool { return tag != "oneof" })
}

func checkEnum(ev *evaluation) []string {
	return fieldErrorsWithTag(ev, func(tag string) bool { return tag == "oneof" })
}

func checkFinite(ev *evaluation) []string {
	var out []string
	for i, e := range ev.draft.Evidence {
		if !finite(e.Value) || !finite(e.Limit) {
			out = append(out, fmt.Sprintf("evidence[%d] %s is not a finite number", i, e.Quantity))
		}
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkSourced(ev *evaluation) []string {
	var out []string
	for i, e := range ev.draft.Evidence {
		if strings.TrimSpace(e.Source) == "" {
			out = append(out, fmt.Sprintf("evidence[%d] %s %s has no source", i, e.Kind, e.Quantity))
		}
	}
	for i, p := range ev.draft.Passages {
		if strings.TrimSpace(p.Source) == "" {
			out = append(out, fmt.Sprintf("passages[%d] has no source", i))
		}
	}
	return out
}

func checkUnits(ev *evaluation) []string {
	var out []string
	for i, e := range ev.draft.Evidence {
		if e.Kind == capability.EvidencePassage {
			continue
		}
		if e.Unit != "" && capability.CanonicalUnit(e.Unit) == "" {
			out = append(out, fmt.Sprintf("evidence[%d] %s has unknown unit %q", i, e.Quantity, e.Unit))
		}
	}
	for _, e := range ev.draft.Evidence {
		if e.Kind != capability.EvidenceComputed {
			continue
		}
		for _, l := range ev.draft.Evidence {
			if l.Kind != capability.EvidenceLimit || l.Quantity != e.Quantity {
				continue
			}
			if capability.CanonicalUnit(e.Unit) != "" && capability.CanonicalUnit(l.Unit) != "" &&
				!capability.UnitsCompatible(e.Unit, l.Unit) {
				out = append(out, fmt.Sprintf("%s computed in %q cannot be compared to limit in %q from %s",
					e.Quantity, e.Unit, l.Unit, l.Source))
			}
		}
	}
	return out
}

func checkLimitsAddressed(ev *evaluation) []string {
	var out []string
	answer := ev.draft.Answer
	for _, e := range ev.draft.Evidence {
		if e.Kind != capability.EvidenceConflict {
			continue
		}
		if !strings.Contains(answer, FormatNumber(e.Limit)) || !strings.Contains(strings.ToLower(answer), "exceed") {
			out = append(out, fmt.Sprintf("%s %s %s exceeds the %s %s limit but the answer does not say so",
				e.Quantity, FormatNumber(e.Value), e.Unit, FormatNumber(e.Limit), e.Unit))
		}
	}
	return out
}

func checkRecommendation(ev *evaluation) []string {
	if ev.domainRisk.AtLeast(types.RiskHigh) && strings.TrimSpace(ev.draft.Recommendation) == "" {
		return []string{fmt.Sprintf("risk is %s but no recommendation is given", ev.domainRisk)}
	}
	return nil
}

func checkRiskClaim(ev *evaluation) []string {
	claimed := ev.draft.ClaimedRisk
	if !claimed.Valid() {
		return nil
	}
	if claimed.Rank() < ev.domainRisk.Rank() {
		return []string{fmt.Sprintf("claimed %s but the evidence implies %s", claimed, ev.domainRisk)}
	}
	return nil
}

func checkLength(ev *evaluation) []string {
	n := utf8.RuneCountInString(ev.draft.Answer)
	if n > ev.cfg.MaxAnswerLength {
		return []string{fmt.Sprintf("answer has %d characters, limit is %d", n, ev.cfg.MaxAnswerLength)}
	}
	return nil
}

var credentialPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"openai_api_key", regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`)},
	{"anthropic_api_key", regexp.MustCompile(`sk-ant-api\d{2}-[A-Za-z0-9_-]{20,}`)},
	{"google_api_key", regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
	{"github_pat", regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`)},
	{"pem_private_key", regexp.MustCompile(`-----BEGIN\s+(RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	{"database_connection_string", regexp.MustCompile(`(?i)(postgres(?:ql)?|mysql|mongodb|redis)://[^\s:@]+:[^\s@]+@[^\s]+`)},
	{"keyring_uri", regexp.MustCompile(`keyring://[^\s]+`)},
}

func checkCredentials(ev *evaluation) []string {
	fields := []struct{ name, text string }{
		{"answer", ev.original.Answer},
		{"recommendation", ev.original.Recommendation},
	}
	for i, p := range ev.original.Passages {
		fields = append(fields, struct{ name, text string }{fmt.Sprintf("passages[%d].text", i), p.Text})
	}

	var out []string
	for _, f := range fields {
		text := normalize(f.text)
		for _, cp := range credentialPatterns {
			if cp.pattern.MatchString(text) {
				out = append(out, fmt.Sprintf("%s contains a %s", f.name, cp.name))
			}
		}
	}
	return out
}

// structErrors runs the struct tags. A non-field error means the tags
// themselves are broken.
func structErrors(v *playground.Validate, d Draft) (playground.ValidationErrors, error) {
	err := v.Struct(d)
	if err == nil {
		return nil, nil
	}
	var ves playground.ValidationErrors
	if errors.As(err, &ves) {
		return ves, nil
	}
	return nil, err
}
