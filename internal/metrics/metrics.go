// Package metrics registers the Prometheus series exposed by the
// reconciler, mirroring the ambient metrics convention of the batch
// collectors this repo's stack is drawn from.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	KeysProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollvalidate_reconciler_keys_processed_total",
		Help: "Total number of (course, user) keys reconciled",
	})

	RecordsDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollvalidate_reconciler_records_discarded_total",
		Help: "Total number of raw records discarded during ingestion, by reason",
	}, []string{"reason"})

	SyntheticEventsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollvalidate_reconciler_synthetic_events_emitted_total",
		Help: "Total number of synthetic events emitted, by kind",
	}, []string{"kind"})

	ReconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrollvalidate_reconciler_reconcile_duration_seconds",
		Help:    "Time spent reconciling a single (course, user) key",
		Buckets: prometheus.DefBuckets,
	})
)
