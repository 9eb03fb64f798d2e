// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package metrics holds the process-wide Prometheus collectors. They
// register on the default registry, which the server exposes at /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warden"

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "queries_total",
		Help:      "Queries resolved, by terminal status.",
	}, []string{"status"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "query_duration_seconds",
		Help:      "Wall time from query submission to terminal state.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"status"})

	queryIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "iterations",
		Help:      "PLANNING entries per query.",
		Buckets:   []float64{1, 2, 3, 4, 5, 8},
	})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "transitions_total",
		Help:      "State transitions, by source and target state.",
	}, []string{"from", "to"})

	capabilityCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capability",
		Name:      "calls_total",
		Help:      "Capability calls, by kind and outcome (success, timeout, invalid_input, unavailable).",
	}, []string{"kind", "outcome"})

	capabilityLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "capability",
		Name:      "call_duration_seconds",
		Help:      "Capability call latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	capabilityRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capability",
		Name:      "retries_total",
		Help:      "Retries of transient capability failures.",
	}, []string{"kind"})

	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validator",
		Name:      "reports_total",
		Help:      "Safety reports, by verdict and risk level.",
	}, []string{"is_safe", "risk_level"})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validator",
		Name:      "violations_total",
		Help:      "Rule violations, by rule id.",
	}, []string{"rule_id"})

	routerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "fallbacks_total",
		Help:      "LLM classifications that fell back to the rule classifier.",
	}, []string{"reason"})

	auditDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "dropped_total",
		Help:      "Audit records dropped before persistence, by reason (full, closed).",
	}, []string{"reason"})

	auditPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "persist_failures_total",
		Help:      "Audit records the sink failed to persist.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests, by route pattern and status code.",
	}, []string{"route", "code"})

	httpRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-IP rate limiter.",
	})

	auditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "queue_depth",
		Help:      "Audit records waiting for the writer.",
	})
)

func RecordQuery(status string, iterations int, seconds float64) {
	queriesTotal.WithLabelValues(status).Inc()
	queryDuration.WithLabelValues(status).Observe(seconds)
	queryIterations.Observe(float64(iterations))
}

func RecordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordCapabilityCall records one logical call; outcome is "success" or a
// failure kind.
func RecordCapabilityCall(kind, outcome string, seconds float64) {
	capabilityCalls.WithLabelValues(kind, outcome).Inc()
	capabilityLatency.WithLabelValues(kind).Observe(seconds)
}

func RecordCapabilityRetry(kind string) {
	capabilityRetries.WithLabelValues(kind).Inc()
}

func RecordValidation(isSafe bool, riskLevel string, ruleIDs []string) {
	validationsTotal.WithLabelValues(strconv.FormatBool(isSafe), riskLevel).Inc()
	for _, id := range ruleIDs {
		violationsTotal.WithLabelValues(id).Inc()
	}
}

func RecordRouterFallback(reason string) {
	routerFallbacks.WithLabelValues(reason).Inc()
}

func RecordAuditDropped(reason string) {
	auditDropped.WithLabelValues(reason).Inc()
}

func RecordAuditPersistFailure() {
	auditPersistFailures.Inc()
}

func SetAuditQueueDepth(n int) {
	auditQueueDepth.Set(float64(n))
}

// RecordHTTPRequest counts a served request. route is the router pattern,
// not the raw path, to keep label cardinality bounded.
func RecordHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func RecordRateLimited() {
	httpRateLimited.Inc()
}
