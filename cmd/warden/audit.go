// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <audit_id>",
		Short: "Show the audit trail of a query",
		Long:  "Print every recorded state transition of one query, in order.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAudit,
	}

	cmd.Flags().Bool("json", false, "print records with payloads as JSON")

	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	app, err := wireFromConfig()
	if err != nil {
		return err
	}
	defer closeApp(app)

	trail := &auditServiceAdapter{store: app.AuditStore}
	records, err := trail.Trail(cmd.Context(), args[0])
	if err != nil {
		if sigilerr.IsNotFound(err) {
			return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "no audit trail for %q", args[0])
		}
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEQ\tITER\tTRANSITION\tPAYLOAD\tACTOR\tTIME")
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s -> %s\t%s\t%s\t%s\n",
			r.Seq, r.Iteration, r.From, r.To, r.PayloadKind, r.Actor, r.Timestamp.Format(time.RFC3339))
	}
	return tw.Flush()
}
