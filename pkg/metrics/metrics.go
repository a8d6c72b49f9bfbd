package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts cache synchronisation attempts by component (cache|account|stream) and result (new|empty|error).
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nestfeed_sync_runs_total",
			Help: "Total number of notification sync attempts",
		},
		[]string{"component", "result"},
	)

	// EventsClassified counts classifier outcomes per event kind (kept|dropped).
	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nestfeed_events_classified_total",
			Help: "Total number of raw events processed by the classifier",
		},
		[]string{"kind", "outcome"},
	)

	// NotificationsDelivered counts notifications handed to account views and streams.
	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nestfeed_notifications_delivered_total",
			Help: "Total number of notifications delivered after account filtering",
		},
		[]string{"mode"},
	)

	// ActiveStreams tracks running per-account push streams.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nestfeed_active_streams",
			Help: "Number of active notification streams",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nestfeed_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
