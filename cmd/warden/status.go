// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/warden/internal/server"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  "Query a running server's status endpoint and display capability and provider health.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "", "server address to check (default networking.listen)")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("networking.listen")
	}
	out := cmd.OutOrStdout()

	var report server.StatusReport
	if err := newServerClient(addr).getJSON("/api/v1/status", &report); err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	status := successStyle.Render(report.Status)
	if report.Status != "ok" {
		status = warnStyle.Render(report.Status)
	}
	_, _ = fmt.Fprintf(out, "Server at %s: %s (router: %s, max iterations: %d)\n",
		addr, status, report.Router, report.MaxIterations)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\nCAPABILITY\tAVAILABLE\tFAILURES")
	for _, c := range report.Capabilities {
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%d\n", c.Kind, c.Available, c.FailureCount)
	}
	if len(report.Providers) > 0 {
		_, _ = fmt.Fprintln(tw, "\nPROVIDER\tAVAILABLE\tMESSAGE")
		for _, p := range report.Providers {
			_, _ = fmt.Fprintf(tw, "%s\t%t\t%s\n", p.Name, p.Available, p.Message)
		}
	}
	return tw.Flush()
}
