// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package jsonl writes audit entries as JSON lines to a size-rotated file.
// It is meant as a mirror next to a queryable store; Query only reads the
// active file, not rotated backups.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sigil-dev/warden/internal/store"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

var _ store.AuditStore = (*AuditStore)(nil)

// Config controls file location and rotation.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// line is the on-disk shape of an audit entry.
type line struct {
	ID          string          `json:"id"`
	QueryID     string          `json:"query_id"`
	Seq         int64           `json:"seq"`
	Iteration   int             `json:"iteration"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	PayloadKind string          `json:"payload_kind,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// AuditStore appends entries to a lumberjack-rotated file.
type AuditStore struct {
	mu     sync.Mutex
	path   string
	writer *lumberjack.Logger
}

func New(cfg Config) (*AuditStore, error) {
	if cfg.Path == "" {
		return nil, sigilerr.New(sigilerr.CodeStoreInvalidInput, "jsonl audit sink: path is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	return &AuditStore{
		path: cfg.Path,
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}, nil
}

func (s *AuditStore) Append(_ context.Context, entry *store.AuditEntry) error {
	if entry == nil {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "audit entry must not be nil")
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	b, err := json.Marshal(line{
		ID: entry.ID, QueryID: entry.QueryID, Seq: entry.Seq, Iteration: entry.Iteration,
		From: entry.From, To: entry.To, PayloadKind: entry.PayloadKind,
		Payload: entry.Payload, Actor: entry.Actor, Timestamp: entry.Timestamp.UTC(),
	})
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeAuditPersistFailure, "marshalling audit entry %s", entry.ID)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(b); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeAuditPersistFailure, "writing audit entry %s", entry.ID)
	}
	return nil
}

// Query scans the active file. Lines that fail to decode are skipped.
func (s *AuditStore) Query(_ context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "opening %s", s.path)
	}
	defer f.Close() //nolint:errcheck // read-only

	var entries []*store.AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			continue
		}
		entries = append(entries, &store.AuditEntry{
			ID: l.ID, QueryID: l.QueryID, Seq: l.Seq, Iteration: l.Iteration,
			From: l.From, To: l.To, PayloadKind: l.PayloadKind,
			Payload: l.Payload, Actor: l.Actor, Timestamp: l.Timestamp,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "reading %s", s.path)
	}
	return store.FilterAudit(entries, filter), nil
}

func (s *AuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}
