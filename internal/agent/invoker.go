// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/warden/internal/capability"
	"github.com/sigil-dev/warden/internal/metrics"
	"github.com/sigil-dev/warden/pkg/health"
)

var tracer = otel.Tracer("warden.agent")

const (
	DefaultCapabilityTimeout = 10 * time.Second
	DefaultRetryBackoff      = 200 * time.Millisecond
)

// InvokerConfig holds dependencies for Invoker.
type InvokerConfig struct {
	Registry *capability.Registry
	// Timeout bounds every single call attempt.
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// HealthCooldown keeps a capability marked unavailable after a
	// non-transient failure. Zero uses health.DefaultCooldown.
	HealthCooldown time.Duration
	Logger         *slog.Logger
}

// Invoker dispatches a plan's capability calls. Each stage is a barrier:
// every call of the stage returns before the next stage starts or Invoke
// returns.
type Invoker struct {
	registry   *capability.Registry
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	cooldown   time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	health map[capability.Kind]*health.Tracker
}

func NewInvoker(cfg InvokerConfig) *Invoker {
	if cfg.Registry == nil {
		cfg.Registry = capability.NewRegistry()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCapabilityTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.HealthCooldown <= 0 {
		cfg.HealthCooldown = health.DefaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Invoker{
		registry:   cfg.Registry,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		cooldown:   cfg.HealthCooldown,
		logger:     cfg.Logger,
		health:     make(map[capability.Kind]*health.Tracker),
	}
}

// Invoke runs every non-reused step of the plan and returns one result per
// invoked kind. It never returns an error: failures are results.
func (inv *Invoker) Invoke(ctx context.Context, plan Plan) map[capability.Kind]capability.Result {
	results := make(map[capability.Kind]capability.Result)

	for _, stage := range plan.Stages {
		var steps []Step
		for _, s := range stage {
			if !s.Reused {
				steps = append(steps, s)
			}
		}
		if len(steps) == 0 {
			continue
		}

		// Each goroutine owns one slot; the map is filled after Wait.
		slots := make([]capability.Result, len(steps))
		var g errgroup.Group
		for i, step := range steps {
			g.Go(func() error {
				slots[i] = inv.call(ctx, step)
				return nil
			})
		}
		_ = g.Wait()

		for i, step := range steps {
			results[step.Kind] = slots[i]
		}
	}
	return results
}

// call runs one step with retries. Transient failures are retried up to
// maxRetries times; anything else returns immediately.
func (inv *Invoker) call(ctx context.Context, step Step) capability.Result {
	ctx, span := tracer.Start(ctx, "capability."+string(step.Kind))
	defer span.End()

	tracker := inv.tracker(step.Kind)
	if !tracker.IsHealthy() {
		metrics.RecordCapabilityCall(string(step.Kind), string(capability.FailureUnavailable), 0)
		span.SetStatus(codes.Error, "cooling down")
		return capability.Failed(step.Kind, capability.Unavailable(false, "capability %q is cooling down after a failure", step.Kind))
	}

	var res capability.Result
	attempts := 0
	for {
		attempts++
		start := time.Now()
		res = inv.attempt(ctx, step)
		elapsed := time.Since(start).Seconds()

		outcome := "ok"
		if !res.OK() {
			outcome = string(res.Failure.Kind)
		}
		metrics.RecordCapabilityCall(string(step.Kind), outcome, elapsed)

		if res.OK() || !res.Failure.Transient || attempts > inv.maxRetries || ctx.Err() != nil {
			break
		}

		metrics.RecordCapabilityRetry(string(step.Kind))
		inv.logger.Debug("retrying capability",
			"capability", step.Kind,
			"attempt", attempts,
			"failure", res.Failure.Kind,
		)
		if !sleepCtx(ctx, inv.backoff*time.Duration(attempts)) {
			break
		}
	}
	res.Kind = step.Kind
	res.Attempts = attempts

	switch {
	case res.OK():
		tracker.RecordSuccess()
		span.SetStatus(codes.Ok, "")
	default:
		if !res.Failure.Transient {
			tracker.RecordFailure()
		}
		span.SetStatus(codes.Error, res.Failure.Error())
	}
	span.SetAttributes(
		attribute.String("capability.kind", string(step.Kind)),
		attribute.Int("capability.attempts", attempts),
		attribute.Bool("capability.ok", res.OK()),
	)
	return res
}

// attempt performs a single call under the per-call timeout and converts
// whatever happens into a result. A capability that ignores its context is
// abandoned when the deadline passes; its late answer is discarded.
func (inv *Invoker) attempt(ctx context.Context, step Step) capability.Result {
	c, err := inv.registry.Lookup(step.Kind)
	if err != nil {
		return capability.Failed(step.Kind, capability.Unavailable(false, "capability %q is not registered", step.Kind))
	}
	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	done := make(chan capability.Result, 1)
	go func() {
		done <- inv.invokeRecovered(callCtx, c, step)
	}()

	select {
	case res := <-done:
		return res
	case <-callCtx.Done():
	}
	// A result that raced the deadline still wins.
	select {
	case res := <-done:
		return res
	default:
	}
	inv.logger.Warn("abandoning capability call past its deadline",
		"capability", step.Kind,
		"timeout", inv.timeout,
	)
	return capability.Failed(step.Kind, toFailure(callCtx, callCtx.Err()))
}

// invokeRecovered calls c and turns a panic into an unavailable failure.
func (inv *Invoker) invokeRecovered(callCtx context.Context, c capability.Capability, step Step) (res capability.Result) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("capability panicked",
				"capability", step.Kind,
				"panic", fmt.Sprint(r),
			)
			res = capability.Failed(step.Kind, capability.Unavailable(false, "capability %q panicked: %v", step.Kind, r))
		}
	}()

	out, err := c.Invoke(callCtx, step.Request)
	if err != nil {
		return capability.Failed(step.Kind, toFailure(callCtx, err))
	}
	if !out.OK() {
		return capability.Failed(step.Kind, out.Failure)
	}
	if callCtx.Err() != nil {
		// Finished, but after the deadline; the answer is not trusted.
		return capability.Failed(step.Kind, toFailure(callCtx, callCtx.Err()))
	}
	return out
}

// toFailure classifies a returned error.
func toFailure(ctx context.Context, err error) *capability.Failure {
	var f *capability.Failure
	switch {
	case errors.As(err, &f):
		return f
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return capability.Timeout("call exceeded its deadline")
	case errors.Is(err, context.Canceled):
		return capability.Unavailable(true, "call cancelled")
	default:
		return capability.Unavailable(true, "%v", err)
	}
}

func (inv *Invoker) tracker(kind capability.Kind) *health.Tracker {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	t, ok := inv.health[kind]
	if !ok {
		// cooldown is validated positive in NewInvoker.
		t, _ = health.NewTracker(inv.cooldown)
		inv.health[kind] = t
	}
	return t
}

// Health reports availability per registered capability.
func (inv *Invoker) Health() map[capability.Kind]health.Metrics {
	out := make(map[capability.Kind]health.Metrics)
	for _, k := range inv.registry.Kinds() {
		out[k] = inv.tracker(k).Metrics()
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
