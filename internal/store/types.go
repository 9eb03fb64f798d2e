// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"encoding/json"
	"time"
)

// AuditEntry is one persisted state transition of a query.
type AuditEntry struct {
	ID        string
	QueryID   string
	Seq       int64
	Iteration int
	From      string
	To        string
	// PayloadKind names what Payload holds: plan, results, draft, report or error.
	PayloadKind string
	Payload     json.RawMessage
	Actor       string
	Timestamp   time.Time
}

// AuditFilter specifies criteria for querying audit entries.
type AuditFilter struct {
	QueryID string
	Actor   string
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}

// Manual is an equipment manual.
type Manual struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	EquipmentID string    `yaml:"equipment_id" json:"equipment_id"`
	Sections    []Section `yaml:"sections" json:"sections"`
	Limits      []Limit   `yaml:"limits" json:"limits"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
}

// Section is a passage of a manual. Score is filled by SearchSections.
type Section struct {
	ManualID    string  `yaml:"-" json:"manual_id"`
	Source      string  `yaml:"-" json:"source"`
	EquipmentID string  `yaml:"-" json:"equipment_id"`
	Ref         string  `yaml:"ref" json:"ref"`
	Heading     string  `yaml:"heading" json:"heading"`
	Text        string  `yaml:"text" json:"text"`
	Score       float64 `yaml:"-" json:"score"`
}

// Limit is a documented operating limit, e.g. the maximum seal
// temperature of a Viton seal on Pump A.
type Limit struct {
	ManualID    string  `yaml:"-" json:"manual_id"`
	Source      string  `yaml:"-" json:"source"`
	EquipmentID string  `yaml:"-" json:"equipment_id"`
	Component   string  `yaml:"component" json:"component"`
	Material    string  `yaml:"material" json:"material"`
	Quantity    string  `yaml:"quantity" json:"quantity"`
	Max         float64 `yaml:"max" json:"max"`
	Unit        string  `yaml:"unit" json:"unit"`
	Ref         string  `yaml:"ref" json:"ref"`
}

// SectionQuery selects sections by keyword. Terms are matched
// case-insensitively; an empty EquipmentID searches every manual.
type SectionQuery struct {
	Terms       []string
	EquipmentID string
	Limit       int
}

// LimitQuery selects limits. Empty fields do not filter.
type LimitQuery struct {
	EquipmentID string
	Material    string
	Quantities  []string
}
