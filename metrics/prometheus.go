// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name unless the caller picks another.
const DefaultNamespace = "annotate"

// PrometheusCollector implements Collector backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	assignments     *prometheus.CounterVec
	commitConflicts prometheus.Counter
	completions     prometheus.Counter
	expired         prometheus.Counter
	assignLatency   prometheus.Histogram
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a Prometheus-backed collector.
// A nil reg means prometheus.DefaultRegisterer; an empty namespace means "annotate".
// Metrics are registered on first use.
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "requests_total",
			Help:      "Assignment requests by outcome (assigned, resumed, or the screen-out reason).",
		}, []string{"outcome"})

		p.commitConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "commit_conflicts_total",
			Help:      "Commits rolled back because a slot was taken by a concurrent session.",
		})

		p.completions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "completions_total",
			Help:      "Sessions that completed their annotation.",
		})

		p.expired = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "session",
			Name:      "expired_total",
			Help:      "Sessions expired by the inactivity sweep.",
		})

		p.assignLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "assignment",
			Name:      "duration_seconds",
			Help:      "Latency of assignment requests in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		})

		p.reg.MustRegister(p.assignments)
		p.reg.MustRegister(p.commitConflicts)
		p.reg.MustRegister(p.completions)
		p.reg.MustRegister(p.expired)
		p.reg.MustRegister(p.assignLatency)
	})
}

// RecordAssignment counts one assignment request by outcome.
func (p *PrometheusCollector) RecordAssignment(outcome string) {
	p.ensureRegistered()
	p.assignments.WithLabelValues(outcome).Inc()
}

// RecordCommitConflict counts a rolled back commit.
func (p *PrometheusCollector) RecordCommitConflict() {
	p.ensureRegistered()
	p.commitConflicts.Inc()
}

// RecordCompletion counts a completed session.
func (p *PrometheusCollector) RecordCompletion() {
	p.ensureRegistered()
	p.completions.Inc()
}

// RecordExpired adds count expired sessions.
func (p *PrometheusCollector) RecordExpired(count int) {
	p.ensureRegistered()
	if count > 0 {
		p.expired.Add(float64(count))
	}
}

// ObserveAssignDuration observes assignment latency.
func (p *PrometheusCollector) ObserveAssignDuration(seconds float64) {
	p.ensureRegistered()
	p.assignLatency.Observe(seconds)
}
