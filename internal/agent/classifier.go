// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/provider"
	"github.com/sigil-dev/warden/internal/validator"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

const classifierPrompt = `You route questions from industrial plant operators to backend capabilities.
Capabilities:
- "compute": process simulation of seal temperature and discharge pressure for a given flow rate.
- "retrieve": equipment manuals, documented material and operating limits.
Reply with JSON only, in the form {"capabilities": ["compute", "retrieve"]}.
Use an empty list when no capability applies.`

// ProviderClassifier asks an LLM provider which capabilities a query needs.
type ProviderClassifier struct {
	router   provider.Router
	modelRef string
	logger   *slog.Logger
}

// NewProviderClassifier routes each call through r. An empty modelRef
// uses the router default.
func NewProviderClassifier(r provider.Router, modelRef string, logger *slog.Logger) *ProviderClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderClassifier{router: r, modelRef: modelRef, logger: logger}
}

// Classify returns the kinds named by the model. Unknown names are
// ignored; a reply naming none is an error so the router falls back.
// PII and credentials are redacted from the text before it leaves the
// process.
func (c *ProviderClassifier) Classify(ctx context.Context, q Query) ([]capability.Kind, error) {
	p, model, err := c.router.Route(ctx, c.modelRef)
	if err != nil {
		return nil, err
	}

	text, redacted := validator.RedactText(q.Text)
	if redacted {
		c.logger.Debug("redacted query text for classifier", "query_id", q.ID)
	}

	temp := float32(0)
	events, err := p.Chat(ctx, provider.ChatRequest{
		Model:        model,
		SystemPrompt: classifierPrompt,
		Messages: []provider.Message{
			{Role: provider.MessageRoleUser, Content: text},
		},
		Options: provider.ChatOptions{Temperature: &temp, MaxTokens: 64},
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeProviderUpstreamFailure, "classifying with %s", p.Name())
	}

	reply, err := collectText(events)
	if err != nil {
		return nil, err
	}

	kinds, err := parseKinds(reply)
	if err != nil {
		c.logger.Debug("unparseable classifier reply", "query_id", q.ID, "provider", p.Name())
		return nil, err
	}
	return kinds, nil
}

// collectText drains a chat stream. Partial text is discarded on error.
func collectText(events <-chan provider.ChatEvent) (string, error) {
	var buf strings.Builder
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			buf.WriteString(ev.Text)
		case provider.EventTypeError:
			streamErr = sigilerr.New(sigilerr.CodeProviderUpstreamFailure, ev.Error)
		}
	}
	if streamErr != nil {
		return "", streamErr
	}
	return buf.String(), nil
}

func parseKinds(text string) ([]capability.Kind, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, sigilerr.New(sigilerr.CodeAgentRouterProviderInvalid, "classifier reply has no JSON object")
	}

	var reply struct {
		Capabilities []string `json:"capabilities"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeAgentRouterProviderInvalid, "decoding classifier reply")
	}

	var raw []capability.Kind
	for _, name := range reply.Capabilities {
		raw = append(raw, capability.Kind(name))
	}
	kinds := normalizeKinds(raw)
	if len(kinds) == 0 {
		return nil, sigilerr.New(sigilerr.CodeAgentRouterProviderInvalid, "classifier named no known capability")
	}
	return kinds, nil
}
