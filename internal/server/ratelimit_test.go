// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr string
	}{
		{"disabled", RateLimitConfig{}, ""},
		{"valid", RateLimitConfig{RequestsPerSecond: 2, Burst: 5}, ""},
		{"zero burst with positive rate", RateLimitConfig{RequestsPerSecond: 1}, "burst must be positive"},
		{"negative rate", RateLimitConfig{RequestsPerSecond: -1, Burst: 1}, "must not be negative"},
		{"negative max visitors", RateLimitConfig{MaxVisitors: -1}, "max visitors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, 10000, cfg.MaxVisitors)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIPLimiter_TokenBucket(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2, MaxVisitors: 10})
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.allow("10.0.0.2"), "buckets are per IP")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.allow("10.0.0.1"), "one token refilled")
	assert.False(t, l.allow("10.0.0.1"))

	now = now.Add(time.Hour)
	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"), "refill is capped at burst")
}

func TestIPLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: 2})
	l.now = func() time.Time { return now }

	l.allow("stale")
	now = now.Add(rateLimitStaleAfter + time.Minute)
	for i := range 3 {
		l.allow(fmt.Sprintf("10.0.0.%d", i))
		now = now.Add(time.Second)
	}

	evicted := l.sweep()
	assert.Equal(t, 1, evicted)
	assert.Len(t, l.visitors, 2)
	assert.NotContains(t, l.visitors, "stale")
	assert.NotContains(t, l.visitors, "10.0.0.0", "least recently seen goes first")
}

func TestRateLimitMiddleware(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, MaxVisitors: 10}, done)(ok)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
		req.RemoteAddr = "192.0.2.1:51234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.RemoteAddr = "192.0.2.1:51235"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "reads are not limited")
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := rateLimitMiddleware(RateLimitConfig{}, nil)(ok)

	for range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/query", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
