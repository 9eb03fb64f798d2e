// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package audit persists state-transition records off the control path.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/warden/internal/metrics"
	"github.com/sigil-dev/warden/internal/store"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// LogEscalationThreshold is the number of consecutive persistence failures
// from which they are logged at Error instead of Warn.
const LogEscalationThreshold = 3

const (
	DefaultBufferSize   = 1024
	DefaultWriteTimeout = 5 * time.Second
)

// Config sizes the emitter.
type Config struct {
	BufferSize   int
	WriteTimeout time.Duration
}

// Emitter queues records and persists them from a single writer goroutine,
// so records are written in the order they were emitted. Emit never blocks
// and never fails; records that cannot be queued are dropped and counted.
type Emitter struct {
	sink   store.AuditStore
	queue  chan Record
	done   chan struct{}
	logger *slog.Logger

	writeTimeout time.Duration

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool

	dropped     atomic.Int64
	failed      atomic.Int64
	consecutive int64 // writer goroutine only
}

func NewEmitter(sink store.AuditStore, cfg Config, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	e := &Emitter{
		sink:         sink,
		queue:        make(chan Record, cfg.BufferSize),
		done:         make(chan struct{}),
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
	}
	go e.run()
	return e
}

// Emit queues r for persistence.
func (e *Emitter) Emit(r Record) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.drop(r, "closed")
		return
	}
	select {
	case e.queue <- r:
		metrics.SetAuditQueueDepth(len(e.queue))
	default:
		e.drop(r, "full")
	}
}

func (e *Emitter) drop(r Record, reason string) {
	n := e.dropped.Add(1)
	metrics.RecordAuditDropped(reason)
	e.logger.Warn("audit record dropped",
		"query_id", r.QueryID,
		"seq", r.Seq,
		"to", r.To,
		"reason", reason,
		"dropped_total", n,
		"code", sigilerr.CodeAuditEmitDropped,
	)
}

func (e *Emitter) run() {
	defer close(e.done)
	for r := range e.queue {
		e.persist(r)
		metrics.SetAuditQueueDepth(len(e.queue))
	}
}

func (e *Emitter) persist(r Record) {
	ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
	defer cancel()

	entry := r.entry()
	if err := e.sink.Append(ctx, entry); err != nil {
		e.consecutive++
		e.failed.Add(1)
		metrics.RecordAuditPersistFailure()
		logAuditFailure(ctx, e.logger, e.consecutive, "audit record not persisted",
			slog.String("query_id", r.QueryID),
			slog.Int64("seq", r.Seq),
			slog.String("to", r.To),
			slog.Int64("consecutive_failures", e.consecutive),
			slog.Any("error", sigilerr.Wrap(err, sigilerr.CodeAuditPersistFailure, "appending audit entry")),
		)
		return
	}
	e.consecutive = 0
}

// Close stops accepting records and waits until the queued ones are
// written or ctx ends. Safe to call more than once.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return sigilerr.Wrapf(ctx.Err(), sigilerr.CodeAuditPersistFailure,
			"audit drain interrupted with %d records queued", len(e.queue))
	}
}

// Dropped is the number of records never queued.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Failed is the number of records the sink rejected.
func (e *Emitter) Failed() int64 { return e.failed.Load() }

// logAuditFailure logs at Warn below LogEscalationThreshold consecutive
// failures and at Error from then on.
func logAuditFailure(ctx context.Context, log *slog.Logger, consecutive int64, msg string, attrs ...slog.Attr) {
	level := slog.LevelWarn
	if consecutive >= LogEscalationThreshold {
		level = slog.LevelError
	}
	log.LogAttrs(ctx, level, msg, attrs...)
}
