// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the phase-diagram
// service.
//
// # Description
//
// Metrics include:
//   - Request counters by operation and outcome
//   - Hull computation latency and input size
//   - Cache hits, misses and invalidated keys
//
// # Integration
//
// Metrics are exposed on /metrics. Create them once per registry with
// NewMetrics; tests pass a fresh prometheus.NewRegistry().
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "materials"
	metricsSubsystem = "phase_diagram"
)

// Operation labels a service call.
type Operation string

const (
	OpPhaseDiagram Operation = "phase_diagram"
	OpHull         Operation = "hull"
	OpListSystems  Operation = "list_systems"
	OpInvalidate   Operation = "invalidate"
	OpUpsert       Operation = "upsert"
)

// Outcome labels how a call ended.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeInconsistent Outcome = "inconsistent"
	OutcomeCanceled     Outcome = "canceled"
	OutcomeError        Outcome = "error"
)

// Metrics holds the service's collectors.
type Metrics struct {
	// RequestsTotal counts calls.
	// Labels: operation, outcome
	RequestsTotal *prometheus.CounterVec

	// ComputeSeconds measures hull construction plus stability
	// evaluation, excluding the store fetch.
	// Labels: elements (system size)
	ComputeSeconds *prometheus.HistogramVec

	// PhasesPerDiagram observes how many points entered a hull.
	PhasesPerDiagram prometheus.Histogram

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// CacheInvalidatedTotal counts cache keys removed by invalidation.
	CacheInvalidatedTotal prometheus.Counter

	// InvariantViolationsTotal counts hull invariant failures. Any
	// non-zero value is a bug.
	InvariantViolationsTotal prometheus.Counter
}

// NewMetrics creates and registers the collectors with reg.
// Registering twice on one registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Phase diagram service calls by operation and outcome",
		}, []string{"operation", "outcome"}),

		ComputeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "compute_seconds",
			Help:      "Hull construction and stability evaluation time",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"elements"}),

		PhasesPerDiagram: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "phases",
			Help:      "Points per hull, elemental references included",
			Buckets:   prometheus.ExponentialBuckets(2, 2, 10),
		}),

		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "cache_hits_total",
			Help:      "Diagrams served from cache",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "cache_misses_total",
			Help:      "Diagram cache misses",
		}),
		CacheInvalidatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "cache_invalidated_keys_total",
			Help:      "Cache keys removed by invalidation",
		}),
		InvariantViolationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "invariant_violations_total",
			Help:      "Phases found below the computed hull",
		}),
	}
}

// RecordRequest counts one call. Safe on a nil receiver.
func (m *Metrics) RecordRequest(op Operation, outcome Outcome) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(op), string(outcome)).Inc()
}

// RecordCompute observes one hull computation.
func (m *Metrics) RecordCompute(elements int, points int, seconds float64) {
	if m == nil {
		return
	}
	m.ComputeSeconds.WithLabelValues(elementsLabel(elements)).Observe(seconds)
	m.PhasesPerDiagram.Observe(float64(points))
}

// RecordInvariantViolation counts one hull invariant failure.
func (m *Metrics) RecordInvariantViolation() {
	if m == nil {
		return
	}
	m.InvariantViolationsTotal.Inc()
}

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

// CacheInvalidated implements cache.Observer.
func (m *Metrics) CacheInvalidated(keys int) {
	if m != nil {
		m.CacheInvalidatedTotal.Add(float64(keys))
	}
}

func elementsLabel(n int) string {
	if n < 0 || n > 9 {
		return "other"
	}
	return string(rune('0' + n))
}
