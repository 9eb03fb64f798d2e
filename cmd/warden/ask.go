// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/server"
	"github.com/sigil-dev/warden/internal/validator"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question in-process",
		Long: "Run one question through the plan, act, synthesize and validate loop without a server.\n" +
			"The audit trail is written to the configured store.",
		Example: `  warden ask "What happens to the seal temperature on pump A if flow rises to 120 m3/h?"
  warden ask "Is a viton seal rated for this?" --equipment pump-a --material viton --flow 120`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().String("equipment", "", "equipment id, e.g. pump-a")
	cmd.Flags().String("material", "", "component material, e.g. viton")
	cmd.Flags().Float64("flow", 0, "flow rate in m3/h")
	cmd.Flags().String("user", "", "user recorded in the audit trail")
	cmd.Flags().Bool("json", false, "print the result as JSON")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "question must not be blank")
	}

	req := server.QueryRequest{Text: text}
	req.Constraints.EquipmentID, _ = cmd.Flags().GetString("equipment")
	req.Constraints.Material, _ = cmd.Flags().GetString("material")
	req.UserID, _ = cmd.Flags().GetString("user")
	if f := cmd.Flags().Lookup("flow"); f.Changed {
		flow, _ := cmd.Flags().GetFloat64("flow")
		if flow <= 0 {
			return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "flow rate must be positive, got %g", flow)
		}
		req.Constraints.Parameters = map[string]float64{"flow_rate": flow}
	}

	app, err := wireFromConfig()
	if err != nil {
		return err
	}

	res := toQueryResult(app.Resolve(cmd.Context(), toQuery(req)))

	// Close before printing so the audit trail is persisted.
	closeApp(app)

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(out, res)
	return nil
}

func printResult(w io.Writer, res server.QueryResult) {
	header := statusStyle(res.Status).Render(string(res.Status))
	if res.RiskLevel != "" {
		header += "  " + riskStyle(res.RiskLevel).Render("risk "+string(res.RiskLevel))
	}
	header += dimStyle.Render(fmt.Sprintf("  iterations %d  audit %s", res.Iterations, res.AuditID))
	_, _ = fmt.Fprintln(w, header)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, res.Answer)

	if len(res.Evidence) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Evidence"))
		for _, e := range res.Evidence {
			_, _ = fmt.Fprintf(w, "  %-9s %s  %s\n", e.Kind, formatEvidence(e), dimStyle.Render(e.Source))
		}
	}

	switch {
	case res.Escalated && len(res.Reports) > 1:
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Violation history"))
		for i, r := range res.Reports {
			_, _ = fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  report %d", i+1)))
			printViolations(w, r.Violations)
		}
	case len(res.Violations) > 0:
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Violations"))
		printViolations(w, res.Violations)
	}

	if res.Escalated {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, warnStyle.Render("Escalated for human review."))
	}
}

func printViolations(w io.Writer, vs []validator.Violation) {
	for _, v := range vs {
		_, _ = fmt.Fprintf(w, "  %s  %s  %s\n", riskStyle(v.Severity).Render(string(v.Severity)), v.RuleID, v.Detail)
	}
}

func formatEvidence(e capability.Evidence) string {
	if e.Kind == capability.EvidencePassage {
		return e.Detail
	}
	s := fmt.Sprintf("%s = %s %s", e.Quantity, strconv.FormatFloat(e.Value, 'f', -1, 64), e.Unit)
	if e.Limit != 0 {
		s += fmt.Sprintf(" (limit %s %s)", strconv.FormatFloat(e.Limit, 'f', -1, 64), e.Unit)
	}
	return s
}
