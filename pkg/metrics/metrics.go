// Package metrics exposes Prometheus collectors for the sync subsystem.
// They are served by the dashboard's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPasses counts completed reconciliation passes by result
	// (complete/error).
	SyncPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinisync_passes_total",
		Help: "Total number of sync passes by result",
	}, []string{"result"})

	// PassDuration measures end-to-end pass latency. Pushes are serialized
	// per document, so a slow backend shows up here first.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clinisync_pass_duration_seconds",
		Help:    "Duration of a full sync pass in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// DocumentsPushed counts push attempts by entity and outcome
	// (synced/skipped/failed).
	DocumentsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinisync_documents_pushed_total",
		Help: "Push-phase document outcomes by entity type",
	}, []string{"entity", "outcome"})

	// DocumentsPulled counts documents inserted locally from the backend.
	DocumentsPulled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinisync_documents_pulled_total",
		Help: "Pull-phase documents inserted locally by entity type",
	}, []string{"entity"})

	// PendingBacklog tracks documents awaiting remote confirmation. This is
	// the primary indicator of how far behind the backend the clinic is.
	PendingBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinisync_pending_backlog",
		Help: "Current number of documents with pending sync status",
	})

	// Online is 1 when the backend is reachable, 0 otherwise.
	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinisync_online",
		Help: "Backend reachability (1 online, 0 offline)",
	})
)
