// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutate

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "federate"
	metricsSubsystem = "mutate"
)

// Metrics counts engine outcomes on its own registry.
//
// The CLI is short-lived, so nothing is served over HTTP. WriteTextfile
// dumps the registry in the node-exporter textfile format instead.
//
// # Thread Safety
//
// Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	// OperationsTotal counts operations by kind (write, delete) and
	// outcome (applied, failed).
	OperationsTotal *prometheus.CounterVec

	// StagedTotal counts temp files written during staging.
	StagedTotal prometheus.Counter

	// CommitStrategyTotal counts successful commits by strategy name.
	CommitStrategyTotal *prometheus.CounterVec

	// AbortsTotal counts batches aborted at staging.
	AbortsTotal prometheus.Counter

	// ApplyDuration observes Apply wall time in seconds.
	ApplyDuration prometheus.Histogram
}

// NewMetrics creates and registers the engine metrics on a fresh registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "operations_total",
				Help:      "File operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		StagedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "staged_total",
			Help:      "Temp files written during staging",
		}),
		CommitStrategyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "commit_strategy_total",
				Help:      "Successful commits by strategy",
			},
			[]string{"strategy"},
		),
		AbortsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "aborts_total",
			Help:      "Batches aborted during staging",
		}),
		ApplyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "apply_duration_seconds",
			Help:      "Wall time of Apply calls in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.OperationsTotal, m.StagedTotal, m.CommitStrategyTotal, m.AbortsTotal, m.ApplyDuration,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry holding the engine metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to path in the textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (m *Metrics) applied(kind string) {
	if m != nil {
		m.OperationsTotal.WithLabelValues(kind, "applied").Inc()
	}
}

func (m *Metrics) failed(kind string) {
	if m != nil {
		m.OperationsTotal.WithLabelValues(kind, "failed").Inc()
	}
}

func (m *Metrics) staged() {
	if m != nil {
		m.StagedTotal.Inc()
	}
}

func (m *Metrics) committed(strategy string) {
	if m != nil {
		m.CommitStrategyTotal.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) aborted() {
	if m != nil {
		m.AbortsTotal.Inc()
	}
}

func (m *Metrics) observeDuration(seconds float64) {
	if m != nil {
		m.ApplyDuration.Observe(seconds)
	}
}
