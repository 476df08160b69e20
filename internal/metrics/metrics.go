// Package metrics defines the Prometheus collectors used by the indexer and
// the reconciler.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var RecognitionCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "face_indexer",
	Subsystem: "indexer",
	Name:      "recognition_calls",
}, []string{"result"})

var FacesIndexed = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "face_indexer",
	Subsystem: "indexer",
	Name:      "faces_indexed",
})

var FacesUnindexed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "face_indexer",
	Subsystem: "indexer",
	Name:      "faces_unindexed",
}, []string{"reason"})

var BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "face_indexer",
	Subsystem: "indexer",
	Name:      "micro_batch_seconds",
	Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
})

var Invocations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "face_indexer",
	Subsystem: "indexer",
	Name:      "invocations",
}, []string{"status"})

var CleanupFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "face_indexer",
	Subsystem: "aggregate",
	Name:      "cleanup_failures",
})

var ArtifactUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "face_indexer",
	Subsystem: "reconcile",
	Name:      "artifact_updates",
}, []string{"artifact", "result"})

var ReconciledContents = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "face_indexer",
	Subsystem: "reconcile",
	Name:      "contents",
})

var HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "face_indexer",
	Subsystem: "http",
	Name:      "request_seconds",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method", "code"})

var registerOnce sync.Once

// Register adds all collectors to the given registerer. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			RecognitionCalls,
			FacesIndexed,
			FacesUnindexed,
			BatchDuration,
			Invocations,
			CleanupFailures,
			ArtifactUpdates,
			ReconciledContents,
			HTTPRequestDuration,
		)
	})
}
