// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sigil-dev/warden/internal/store"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

var _ store.AuditStore = (*AuditStore)(nil)

// AuditStore persists state-transition records in an append-only table.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore opens (or creates) the audit database at dbPath.
func NewAuditStore(dbPath string) (*AuditStore, error) {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_log (
	id           TEXT PRIMARY KEY,
	query_id     TEXT NOT NULL,
	seq          INTEGER NOT NULL DEFAULT 0,
	iteration    INTEGER NOT NULL DEFAULT 0,
	from_state   TEXT NOT NULL DEFAULT '',
	to_state     TEXT NOT NULL,
	payload_kind TEXT NOT NULL DEFAULT '',
	payload      TEXT NOT NULL DEFAULT '',
	actor        TEXT NOT NULL DEFAULT '',
	timestamp    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_query     ON audit_log(query_id, seq);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_actor     ON audit_log(actor);
`
	db, err := openDB(dbPath, "audit", ddl)
	if err != nil {
		return nil, err
	}
	return &AuditStore{db: db}, nil
}

func (s *AuditStore) Append(ctx context.Context, entry *store.AuditEntry) error {
	if entry == nil {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "audit entry must not be nil")
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO audit_log (id, query_id, seq, iteration, from_state, to_state, payload_kind, payload, actor, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		entry.ID, entry.QueryID, entry.Seq, entry.Iteration, entry.From, entry.To,
		entry.PayloadKind, string(entry.Payload), entry.Actor, formatTime(entry.Timestamp),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return sigilerr.Wrapf(store.ErrConflict, sigilerr.CodeStoreConflict, "audit entry %s already exists", entry.ID)
		}
		return sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "appending audit entry %s", entry.ID)
	}
	return nil
}

func (s *AuditStore) Query(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, query_id, seq, iteration, from_state, to_state, payload_kind, payload, actor, timestamp FROM audit_log`)

	var conditions []string
	var args []any

	if filter.QueryID != "" {
		conditions = append(conditions, "query_id = ?")
		args = append(args, filter.QueryID)
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = ?")
		args = append(args, filter.Actor)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY timestamp ASC, seq ASC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeStoreDatabaseFailure, "querying audit log")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var entries []*store.AuditEntry
	for rows.Next() {
		var e store.AuditEntry
		var ts, payload string
		if err := rows.Scan(
			&e.ID, &e.QueryID, &e.Seq, &e.Iteration, &e.From, &e.To,
			&e.PayloadKind, &payload, &e.Actor, &ts,
		); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing audit entry %s timestamp: %w", e.ID, err)
		}
		if payload != "" {
			e.Payload = []byte(payload)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database connection.
func (s *AuditStore) Close() error { return s.db.Close() }
