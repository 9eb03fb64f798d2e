// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

// Status is the terminal status of a resolved query.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Valid reports whether s is a terminal status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}
