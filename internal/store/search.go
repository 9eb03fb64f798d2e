// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "will": true, "with": true,
	"what": true, "are": true, "can": true, "does": true, "this": true,
	"that": true, "from": true, "into": true, "how": true, "our": true,
	"to": true, "on": true, "of": true, "at": true, "is": true, "it": true,
	"if": true, "we": true, "in": true, "a": true, "an": true,
}

// Tokenize lowercases text and splits it into search terms, dropping
// stopwords and single characters. Order of first appearance is kept and
// duplicates are removed.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// ScoreText is the fraction of terms present in text, in [0, 1].
func ScoreText(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
