// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sigil-dev/warden/internal/store"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

var _ store.ManualStore = (*ManualStore)(nil)

// ManualStore keeps equipment manuals, their sections and documented limits.
type ManualStore struct {
	db *sql.DB
}

// NewManualStore opens (or creates) the manual database at dbPath.
func NewManualStore(dbPath string) (*ManualStore, error) {
	const ddl = `
CREATE TABLE IF NOT EXISTS manuals (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	equipment_id TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS manual_sections (
	manual_id TEXT NOT NULL,
	pos       INTEGER NOT NULL,
	ref       TEXT NOT NULL DEFAULT '',
	heading   TEXT NOT NULL DEFAULT '',
	text      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (manual_id, pos),
	FOREIGN KEY (manual_id) REFERENCES manuals(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS manual_limits (
	manual_id TEXT NOT NULL,
	pos       INTEGER NOT NULL,
	component TEXT NOT NULL DEFAULT '',
	material  TEXT NOT NULL DEFAULT '',
	quantity  TEXT NOT NULL,
	max_value REAL NOT NULL,
	unit      TEXT NOT NULL,
	ref       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (manual_id, pos),
	FOREIGN KEY (manual_id) REFERENCES manuals(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_manuals_equipment ON manuals(equipment_id COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_manual_limits_quantity ON manual_limits(quantity);
`
	db, err := openDB(dbPath, "manual", ddl)
	if err != nil {
		return nil, err
	}
	return &ManualStore{db: db}, nil
}

// PutManual inserts or replaces a manual together with its sections and limits.
func (s *ManualStore) PutManual(ctx context.Context, m *store.Manual) error {
	if m == nil {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "manual must not be nil")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx for manual %s: %w", m.ID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Deleting the parent row cascades to sections and limits.
	if _, err := tx.ExecContext(ctx, `DELETE FROM manuals WHERE id = ?`, m.ID); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "replacing manual %s", m.ID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO manuals (id, title, equipment_id, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.Title, m.EquipmentID, formatTime(createdAt),
	); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "inserting manual %s", m.ID)
	}

	for i, sec := range m.Sections {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manual_sections (manual_id, pos, ref, heading, text) VALUES (?, ?, ?, ?, ?)`,
			m.ID, i, sec.Ref, sec.Heading, sec.Text,
		); err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "inserting section %d of manual %s", i, m.ID)
		}
	}
	for i, l := range m.Limits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manual_limits (manual_id, pos, component, material, quantity, max_value, unit, ref)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, i, l.Component, l.Material, l.Quantity, l.Max, l.Unit, l.Ref,
		); err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "inserting limit %d of manual %s", i, m.ID)
		}
	}

	return tx.Commit()
}

func (s *ManualStore) GetManual(ctx context.Context, id string) (*store.Manual, error) {
	const q = `SELECT id, title, equipment_id, created_at FROM manuals WHERE id = ?`

	var m store.Manual
	var createdAt string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &m.Title, &m.EquipmentID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, sigilerr.Wrapf(store.ErrNotFound, sigilerr.CodeStoreEntityNotFound, "manual %s", id)
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "getting manual %s", id)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing manual %s created_at: %w", id, err)
	}

	if err := s.loadChildren(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *ManualStore) ListManuals(ctx context.Context) ([]*store.Manual, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, equipment_id, created_at FROM manuals ORDER BY id`)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "listing manuals")
	}

	var manuals []*store.Manual
	for rows.Next() {
		var m store.Manual
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Title, &m.EquipmentID, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning manual row: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parsing manual %s created_at: %w", m.ID, err)
		}
		manuals = append(manuals, &m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterating manuals: %w", err)
	}
	_ = rows.Close()

	for _, m := range manuals {
		if err := s.loadChildren(ctx, m); err != nil {
			return nil, err
		}
	}
	return manuals, nil
}

// SearchSections prefilters candidate sections with LIKE and ranks them with
// store.ScoreText so every backend scores the same way.
func (s *ManualStore) SearchSections(ctx context.Context, q store.SectionQuery) ([]*store.Section, error) {
	if len(q.Terms) == 0 {
		return nil, nil
	}

	var qb strings.Builder
	qb.WriteString(`SELECT s.manual_id, m.title, m.equipment_id, s.ref, s.heading, s.text
FROM manual_sections s JOIN manuals m ON m.id = s.manual_id WHERE (`)

	var args []any
	likes := make([]string, 0, len(q.Terms))
	for _, term := range q.Terms {
		likes = append(likes, "lower(s.heading || ' ' || s.text) LIKE ?")
		args = append(args, "%"+strings.ToLower(term)+"%")
	}
	qb.WriteString(strings.Join(likes, " OR "))
	qb.WriteString(")")
	if q.EquipmentID != "" {
		qb.WriteString(" AND m.equipment_id = ? COLLATE NOCASE")
		args = append(args, q.EquipmentID)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "searching manual sections")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.Section
	for rows.Next() {
		var sec store.Section
		if err := rows.Scan(&sec.ManualID, &sec.Source, &sec.EquipmentID, &sec.Ref, &sec.Heading, &sec.Text); err != nil {
			return nil, fmt.Errorf("scanning section row: %w", err)
		}
		sec.Score = store.ScoreText(sec.Heading+" "+sec.Text, q.Terms)
		if sec.Score > 0 {
			out = append(out, &sec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sections: %w", err)
	}

	store.SortSections(out)
	limit := q.Limit
	if limit <= 0 {
		limit = 3
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ManualStore) FindLimits(ctx context.Context, q store.LimitQuery) ([]*store.Limit, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT l.manual_id, m.title, m.equipment_id, l.component, l.material, l.quantity, l.max_value, l.unit, l.ref
FROM manual_limits l JOIN manuals m ON m.id = l.manual_id`)

	var conditions []string
	var args []any
	if q.EquipmentID != "" {
		conditions = append(conditions, "m.equipment_id = ? COLLATE NOCASE")
		args = append(args, q.EquipmentID)
	}
	if q.Material != "" {
		conditions = append(conditions, "(l.material = '' OR l.material = ? COLLATE NOCASE)")
		args = append(args, q.Material)
	}
	if len(q.Quantities) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(q.Quantities)), ",")
		conditions = append(conditions, "l.quantity IN ("+marks+")")
		for _, qty := range q.Quantities {
			args = append(args, qty)
		}
	}
	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "finding limits")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.Limit
	for rows.Next() {
		var l store.Limit
		if err := rows.Scan(&l.ManualID, &l.Source, &l.EquipmentID, &l.Component,
			&l.Material, &l.Quantity, &l.Max, &l.Unit, &l.Ref); err != nil {
			return nil, fmt.Errorf("scanning limit row: %w", err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating limits: %w", err)
	}
	store.SortLimits(out)
	return out, nil
}

// Close closes the underlying database connection.
func (s *ManualStore) Close() error { return s.db.Close() }

func (s *ManualStore) loadChildren(ctx context.Context, m *store.Manual) error {
	secRows, err := s.db.QueryContext(ctx,
		`SELECT ref, heading, text FROM manual_sections WHERE manual_id = ? ORDER BY pos`, m.ID)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "loading sections of manual %s", m.ID)
	}
	defer secRows.Close() //nolint:errcheck

	m.Sections = nil
	for secRows.Next() {
		sec := store.Section{ManualID: m.ID, Source: m.Title, EquipmentID: m.EquipmentID}
		if err := secRows.Scan(&sec.Ref, &sec.Heading, &sec.Text); err != nil {
			return fmt.Errorf("scanning section of manual %s: %w", m.ID, err)
		}
		m.Sections = append(m.Sections, sec)
	}
	if err := secRows.Err(); err != nil {
		return err
	}

	limRows, err := s.db.QueryContext(ctx,
		`SELECT component, material, quantity, max_value, unit, ref FROM manual_limits WHERE manual_id = ? ORDER BY pos`, m.ID)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "loading limits of manual %s", m.ID)
	}
	defer limRows.Close() //nolint:errcheck

	m.Limits = nil
	for limRows.Next() {
		l := store.Limit{ManualID: m.ID, Source: m.Title, EquipmentID: m.EquipmentID}
		if err := limRows.Scan(&l.Component, &l.Material, &l.Quantity, &l.Max, &l.Unit, &l.Ref); err != nil {
			return fmt.Errorf("scanning limit of manual %s: %w", m.ID, err)
		}
		m.Limits = append(m.Limits, l)
	}
	return limRows.Err()
}
