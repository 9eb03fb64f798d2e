// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/warden/internal/agent"
	"github.com/sigil-dev/warden/internal/capability"
)

func computeStep() agent.Step {
	return agent.Step{Kind: capability.KindCompute, Request: capability.Request{
		Compute: &capability.ComputeRequest{Models: []capability.Model{capability.ModelSealTemperature}, FlowRate: 200, Attempt: 1},
	}}
}

func retrieveStep() agent.Step {
	return agent.Step{Kind: capability.KindRetrieve, Request: capability.Request{
		Retrieve: &capability.RetrieveRequest{Query: "seal limits", TopK: 3, Attempt: 1},
	}}
}

func newInvoker(t *testing.T, cfg agent.InvokerConfig, caps ...capability.Capability) *agent.Invoker {
	t.Helper()
	reg := capability.NewRegistry()
	for _, c := range caps {
		require.NoError(t, reg.Register(c))
	}
	cfg.Registry = reg
	return agent.NewInvoker(cfg)
}

func singleStage(steps ...agent.Step) agent.Plan {
	return agent.Plan{Stages: [][]agent.Step{steps}}
}

func TestInvoker_RetriesTransientFailures(t *testing.T) {
	fc := &fakeCapability{kind: capability.KindCompute}
	fc.fn = func(_ context.Context, _ capability.Request) (capability.Result, error) {
		if fc.calls.Load() == 1 {
			return capability.Result{}, capability.Unavailable(true, "simulator busy")
		}
		return capability.Result{Kind: capability.KindCompute}, nil
	}
	inv := newInvoker(t, agent.InvokerConfig{MaxRetries: 2}, fc)

	results := inv.Invoke(context.Background(), singleStage(computeStep()))

	res := results[capability.KindCompute]
	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int64(2), fc.calls.Load())
}

func TestInvoker_RetryBudgetExhausted(t *testing.T) {
	fc := &fakeCapability{kind: capability.KindCompute, fn: func(_ context.Context, _ capability.Request) (capability.Result, error) {
		return capability.Result{}, errors.New("connection reset")
	}}
	inv := newInvoker(t, agent.InvokerConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}, fc)

	res := inv.Invoke(context.Background(), singleStage(computeStep()))[capability.KindCompute]
	require.False(t, res.OK())
	assert.Equal(t, capability.FailureUnavailable, res.Failure.Kind)
	assert.True(t, res.Failure.Transient)
	assert.Equal(t, 3, res.Attempts)

	health := inv.Health()[capability.KindCompute]
	assert.True(t, health.Available, "transient failures do not mark a capability unhealthy")
}

func TestInvoker_InvalidInputIsNotRetried(t *testing.T) {
	fc := &fakeCapability{kind: capability.KindCompute, fn: func(_ context.Context, _ capability.Request) (capability.Result, error) {
		return capability.Failed(capability.KindCompute, capability.InvalidInput("flow rate must be positive")), nil
	}}
	inv := newInvoker(t, agent.InvokerConfig{MaxRetries: 3}, fc)

	res := inv.Invoke(context.Background(), singleStage(computeStep()))[capability.KindCompute]
	require.False(t, res.OK())
	assert.Equal(t, capability.FailureInvalidInput, res.Failure.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int64(1), fc.calls.Load())
}

func TestInvoker_Timeout(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, _ capability.Request) (capability.Result, error)
	}{
		{
			name: "honours context",
			fn: func(ctx context.Context, _ capability.Request) (capability.Result, error) {
				<-ctx.Done()
				return capability.Result{}, ctx.Err()
			},
		},
		{
			name: "ignores context and answers late",
			fn: func(_ context.Context, _ capability.Request) (capability.Result, error) {
				time.Sleep(60 * time.Millisecond)
				return capability.Result{Kind: capability.KindCompute}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCapability{kind: capability.KindCompute, fn: tt.fn}
			inv := newInvoker(t, agent.InvokerConfig{Timeout: 20 * time.Millisecond}, fc)

			res := inv.Invoke(context.Background(), singleStage(computeStep()))[capability.KindCompute]
			require.False(t, res.OK())
			assert.Equal(t, capability.FailureTimeout, res.Failure.Kind)
			assert.True(t, res.Failure.Transient)
		})
	}
}

func TestInvoker_AbandonsCallThatIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	fc := &fakeCapability{kind: capability.KindCompute, fn: func(_ context.Context, _ capability.Request) (capability.Result, error) {
		<-release
		return capability.Result{Kind: capability.KindCompute}, nil
	}}
	inv := newInvoker(t, agent.InvokerConfig{Timeout: 20 * time.Millisecond}, fc)

	done := make(chan capability.Result, 1)
	go func() {
		done <- inv.Invoke(context.Background(), singleStage(computeStep()))[capability.KindCompute]
	}()

	select {
	case res := <-done:
		require.False(t, res.OK())
		assert.Equal(t, capability.FailureTimeout, res.Failure.Kind)
		assert.Equal(t, 1, res.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("invoker blocked on a capability that ignores its context")
	}
}

func TestInvoker_PanicMarksCapabilityUnhealthy(t *testing.T) {
	fc := &fakeCapability{kind: capability.KindCompute, fn: func(_ context.Context, _ capability.Request) (capability.Result, error) {
		panic("divide by zero")
	}}
	inv := newInvoker(t, agent.InvokerConfig{MaxRetries: 2}, fc)

	res := inv.Invoke(context.Background(), singleStage(computeStep()))[capability.KindCompute]
	require.False(t, res.OK())
	assert.Equal(t, capability.FailureUnavailable, res.Failure.Kind)
	assert.False(t, res.Failure.Transient)
	assert.Contains(t, res.Failure.Message, "panicked")
	assert.Equal(t, int64(1), fc.calls.Load())

	// Cooling down: the next call is rejected without invoking.
	res = inv.Invoke(context.Background(), singleStage(computeStep()))[capability.KindCompute]
	require.False(t, res.OK())
	assert.Equal(t, capability.FailureUnavailable, res.Failure.Kind)
	assert.Equal(t, int64(1), fc.calls.Load())

	h := inv.Health()[capability.KindCompute]
	assert.False(t, h.Available)
	assert.Equal(t, int64(1), h.FailureCount)
	assert.NotNil(t, h.CooldownUntil)
}

func TestInvoker_UnregisteredKind(t *testing.T) {
	inv := newInvoker(t, agent.InvokerConfig{}, &fakeCapability{kind: capability.KindCompute})

	res := inv.Invoke(context.Background(), singleStage(retrieveStep()))[capability.KindRetrieve]
	require.False(t, res.OK())
	assert.Equal(t, capability.FailureUnavailable, res.Failure.Kind)
	assert.Equal(t, capability.KindRetrieve, res.Kind)
}

func TestInvoker_ReusedStepsAreSkipped(t *testing.T) {
	fc := &fakeCapability{kind: capability.KindCompute}
	fr := &fakeCapability{kind: capability.KindRetrieve}
	inv := newInvoker(t, agent.InvokerConfig{}, fc, fr)

	reused := computeStep()
	reused.Reused = true
	results := inv.Invoke(context.Background(), singleStage(reused, retrieveStep()))

	assert.Len(t, results, 1)
	assert.Contains(t, results, capability.KindRetrieve)
	assert.Equal(t, int64(0), fc.calls.Load())
	assert.Equal(t, int64(1), fr.calls.Load())
}

func TestInvoker_StepsInStageRunConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	rendezvous := func(ctx context.Context, kind capability.Kind) (capability.Result, error) {
		started.Done()
		done := make(chan struct{})
		go func() {
			started.Wait()
			close(done)
		}()
		select {
		case <-done:
			return capability.Result{Kind: kind}, nil
		case <-ctx.Done():
			return capability.Result{}, ctx.Err()
		}
	}

	fc := &fakeCapability{kind: capability.KindCompute, fn: func(ctx context.Context, _ capability.Request) (capability.Result, error) {
		return rendezvous(ctx, capability.KindCompute)
	}}
	fr := &fakeCapability{kind: capability.KindRetrieve, fn: func(ctx context.Context, _ capability.Request) (capability.Result, error) {
		return rendezvous(ctx, capability.KindRetrieve)
	}}
	inv := newInvoker(t, agent.InvokerConfig{Timeout: 2 * time.Second}, fc, fr)

	results := inv.Invoke(context.Background(), singleStage(computeStep(), retrieveStep()))
	assert.True(t, results[capability.KindCompute].OK())
	assert.True(t, results[capability.KindRetrieve].OK())
}

func TestInvoker_StagesAreBarriers(t *testing.T) {
	var firstDone atomic.Bool
	fr := &fakeCapability{kind: capability.KindRetrieve, fn: func(_ context.Context, _ capability.Request) (capability.Result, error) {
		time.Sleep(20 * time.Millisecond)
		firstDone.Store(true)
		return capability.Result{Kind: capability.KindRetrieve}, nil
	}}
	var sawFirst atomic.Bool
	fc := &fakeCapability{kind: capability.KindCompute, fn: func(_ context.Context, _ capability.Request) (capability.Result, error) {
		sawFirst.Store(firstDone.Load())
		return capability.Result{Kind: capability.KindCompute}, nil
	}}
	inv := newInvoker(t, agent.InvokerConfig{}, fc, fr)

	plan := agent.Plan{Stages: [][]agent.Step{{retrieveStep()}, {computeStep()}}}
	results := inv.Invoke(context.Background(), plan)

	assert.Len(t, results, 2)
	assert.True(t, sawFirst.Load(), "second stage started before the first finished")
}

func TestInvoker_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeCapability{kind: capability.KindCompute}
	fc.fn = func(_ context.Context, _ capability.Request) (capability.Result, error) {
		cancel()
		return capability.Result{}, capability.Unavailable(true, "busy")
	}
	inv := newInvoker(t, agent.InvokerConfig{MaxRetries: 5, RetryBackoff: time.Second}, fc)

	res := inv.Invoke(ctx, singleStage(computeStep()))[capability.KindCompute]
	require.False(t, res.OK())
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, inv.Health()[capability.KindCompute].Available)
}
