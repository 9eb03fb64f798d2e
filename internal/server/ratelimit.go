// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/sigil-dev/warden/internal/metrics"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

const (
	rateLimitSweepInterval = 5 * time.Minute
	rateLimitStaleAfter    = 10 * time.Minute
)

// RateLimitConfig configures per-IP rate limiting of query submissions.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size per IP.
	Burst int
	// MaxVisitors caps the number of IPs tracked at once; the least recently
	// seen are evicted on each sweep. Zero means 10000.
	MaxVisitors int
}

// Validate checks that the RateLimitConfig is valid and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = 10000
	}
	return nil
}

type visitor struct {
	tokens     float64
	lastSeen   time.Time
	lastRefill time.Time
}

// ipLimiter is a token bucket per client IP.
type ipLimiter struct {
	cfg      RateLimitConfig
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

func newIPLimiter(cfg RateLimitConfig) *ipLimiter {
	return &ipLimiter{cfg: cfg, now: time.Now, visitors: make(map[string]*visitor)}
}

// allow takes one token from ip's bucket.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	v.tokens = min(float64(l.cfg.Burst), v.tokens+now.Sub(v.lastRefill).Seconds()*l.cfg.RequestsPerSecond)
	v.lastRefill = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// sweep drops stale visitors and enforces MaxVisitors. It returns how many
// were evicted for the cap.
func (l *ipLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	type seen struct {
		ip   string
		last time.Time
	}
	live := make([]seen, 0, len(l.visitors))
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > rateLimitStaleAfter {
			delete(l.visitors, ip)
			continue
		}
		live = append(live, seen{ip, v.lastSeen})
	}

	excess := len(live) - l.cfg.MaxVisitors
	if l.cfg.MaxVisitors <= 0 || excess <= 0 {
		return 0
	}
	slices.SortFunc(live, func(a, b seen) int { return a.last.Compare(b.last) })
	for _, s := range live[:excess] {
		delete(l.visitors, s.ip)
	}
	return excess
}

func (l *ipLimiter) run(done <-chan struct{}) {
	ticker := time.NewTicker(rateLimitSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.sweep(); n > 0 {
				slog.Warn("rate limiter visitor cap enforced", "evicted", n, "max_visitors", l.cfg.MaxVisitors)
			}
		case <-done:
			return
		}
	}
}

// rateLimitMiddleware limits POST requests per client IP. Reads are not
// limited. It is a pass-through when cfg.RequestsPerSecond is zero. The
// sweeper goroutine exits when done is closed.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	l := newIPLimiter(cfg)
	go l.run(done)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			// Limit by IP, not by connection.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !l.allow(ip) {
				metrics.RecordRateLimited()
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
