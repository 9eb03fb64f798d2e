// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package validator

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Redacted replaces every PII or credential token.
const Redacted = "[REDACTED]"

var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // BOM
	"\u00ad", "", // soft hyphen
	"\u2060", "", // word joiner
	"\u2062", "", // invisible times
	"\u2063", "", // invisible separator
)

// normalize strips invisible characters and applies NFKC so that PII and
// credentials cannot hide behind homoglyphs or zero-width joiners.
func normalize(s string) string {
	return norm.NFKC.String(invisibleCharReplacer.Replace(s))
}

type piiPattern struct {
	name    string
	pattern *regexp.Regexp
	// group selects the submatch to redact; 0 redacts the whole match.
	group int
}

var piiPatterns = []piiPattern{
	{name: "bearer_token", pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`)},
	{name: "api_key", pattern: regexp.MustCompile(`\b(?:sk|pk|rk)-[A-Za-z0-9_-]{16,}`)},
	{name: "keyring_uri", pattern: regexp.MustCompile(`keyring://[^\s]+`)},
	{
		name:    "connection_string",
		pattern: regexp.MustCompile(`(?i)(?:postgres(?:ql)?|mysql|mongodb|redis)://[^\s:@]+:[^@\s]+@[^\s/:]+(?:[:/][^\s]*)?`),
	},
	{name: "email", pattern: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{name: "phone", pattern: regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`)},
	{name: "employee_badge", pattern: regexp.MustCompile(`\bEMP-\d{4,}\b`)},
	{
		name:    "person_name",
		pattern: regexp.MustCompile(`\b(?:[Cc]all|[Cc]ontact|[Aa]sk|[Nn]otify|[Pp]age)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
		group:   1,
	},
}

// Words that follow "contact"/"call" but name a team, not a person.
var nonPersonWords = map[string]bool{
	"The": true, "Your": true, "Our": true, "Maintenance": true,
	"Operations": true, "Engineering": true, "Support": true, "Control": true,
	"Pump": true, "Compressor": true, "Valve": true,
}

// RedactText returns text with PII and credentials replaced. When nothing
// is found the original text is returned unchanged, not its normalized form.
func RedactText(text string) (string, bool) {
	n := normalize(text)

	var spans [][2]int
	for _, p := range piiPatterns {
		for _, m := range p.pattern.FindAllStringSubmatchIndex(n, -1) {
			start, end := m[2*p.group], m[2*p.group+1]
			if start < 0 {
				continue
			}
			if p.name == "person_name" && nonPersonWords[strings.Fields(n[start:end])[0]] {
				continue
			}
			spans = append(spans, [2]int{start, end})
		}
	}
	if len(spans) == 0 {
		return text, false
	}

	slices.SortFunc(spans, func(a, b [2]int) int { return a[0] - b[0] })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s[0] <= last[1] {
			last[1] = max(last[1], s[1])
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(n[prev:s[0]])
		b.WriteString(Redacted)
		prev = s[1]
	}
	b.WriteString(n[prev:])
	return b.String(), true
}

// redactDraft returns a copy of d with PII removed from every free-text
// field and the sorted names of the fields that changed.
func redactDraft(d Draft) (Draft, []string) {
	out := d
	fields := map[string]bool{}

	if s, ok := RedactText(d.Answer); ok {
		out.Answer = s
		fields["answer"] = true
	}
	if s, ok := RedactText(d.Recommendation); ok {
		out.Recommendation = s
		fields["recommendation"] = true
	}
	if len(d.Passages) > 0 {
		out.Passages = slices.Clone(d.Passages)
		for i := range out.Passages {
			if s, ok := RedactText(out.Passages[i].Text); ok {
				out.Passages[i].Text = s
				fields["passages.text"] = true
			}
		}
	}
	if len(d.Evidence) > 0 {
		out.Evidence = slices.Clone(d.Evidence)
		for i := range out.Evidence {
			if s, ok := RedactText(out.Evidence[i].Detail); ok {
				out.Evidence[i].Detail = s
				fields["evidence.detail"] = true
			}
		}
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	slices.Sort(names)
	return out, names
}
