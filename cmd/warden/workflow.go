// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/warden/internal/agent"
)

func newWorkflowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflow",
		Short: "Print the query loop as a Mermaid state diagram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), agent.Mermaid(cfg.Orchestrator.MaxIterations))
			return err
		},
	}
}
