// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sigil-dev/warden/pkg/types"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

func statusStyle(s types.Status) lipgloss.Style {
	if s == types.StatusSuccess {
		return successStyle
	}
	return errorStyle
}

func riskStyle(r types.RiskLevel) lipgloss.Style {
	switch r {
	case types.RiskCritical:
		return errorStyle
	case types.RiskHigh, types.RiskMedium:
		return warnStyle
	default:
		return dimStyle
	}
}
