// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package metrics records indexing activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sigil-dev/semdex/internal/indexer"
)

const (
	namespace = "semdex"
	subsystem = "indexer"
)

// Sync results used as the "result" label.
const (
	ResultCompleted = "completed"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

// Record outcomes used as the "outcome" label.
const (
	OutcomeIndexed        = "indexed"
	OutcomeMissing        = "missing"
	OutcomeWithheld       = "withheld"
	OutcomeOrphansRemoved = "orphans_removed"
)

var _ indexer.SyncObserver = (*Metrics)(nil)

// Metrics owns a private registry so tests and multiple runtimes in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	syncs         *prometheus.CounterVec
	records       *prometheus.CounterVec
	failedBatches *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	indexedItems  *prometheus.GaugeVec
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "syncs_total",
			Help:      "Sync runs by index and result.",
		}, []string{"index", "result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_total",
			Help:      "Records handled by sync runs, by outcome.",
		}, []string{"index", "outcome"}),
		failedBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failed_batches_total",
			Help:      "Batches whose embed or bookkeeping step failed.",
		}, []string{"index"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of completed sync runs.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"index"}),
		indexedItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "indexed_items",
			Help:      "INDEXED items after the last completed sync.",
		}, []string{"index"}),
	}

	m.registry.MustRegister(
		m.syncs,
		m.records,
		m.failedBatches,
		m.duration,
		m.indexedItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSync implements indexer.SyncObserver. Partial results of a failed
// run still count the records and batches they got through.
func (m *Metrics) ObserveSync(indexID string, res *indexer.SyncResult, err error) {
	switch {
	case err != nil:
		m.syncs.WithLabelValues(indexID, ResultFailed).Inc()
	case res != nil && res.Skipped:
		m.syncs.WithLabelValues(indexID, ResultSkipped).Inc()
		return
	default:
		m.syncs.WithLabelValues(indexID, ResultCompleted).Inc()
	}
	if res == nil {
		return
	}

	m.records.WithLabelValues(indexID, OutcomeIndexed).Add(float64(res.Indexed))
	m.records.WithLabelValues(indexID, OutcomeMissing).Add(float64(res.Missing))
	m.records.WithLabelValues(indexID, OutcomeWithheld).Add(float64(res.Withheld))
	m.records.WithLabelValues(indexID, OutcomeOrphansRemoved).Add(float64(res.OrphansRemoved))
	m.failedBatches.WithLabelValues(indexID).Add(float64(res.FailedBatches))

	if err == nil {
		m.duration.WithLabelValues(indexID).Observe(res.Duration.Seconds())
		m.indexedItems.WithLabelValues(indexID).Set(float64(res.IndexedCount))
	}
}
