// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Metadata cache metrics
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	NegativeHits   prometheus.Counter
	CoalescedWaits prometheus.Counter
	OutboundCalls  *prometheus.CounterVec

	// Mindmap metrics
	SnapshotsProcessed prometheus.Counter
	SnapshotsRejected  prometheus.Counter
	FilterPassDuration prometheus.Histogram
	NodesRetained      prometheus.Gauge
	LinksRetained      prometheus.Gauge
	TokensFiltered     prometheus.Gauge
	KOLsFiltered       prometheus.Gauge

	// Stream metrics
	StreamMessages   prometheus.Counter
	StreamReconnects prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kol_play_core"
	}

	return &Metrics{
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "cache_hits_total",
			Help:      "Total number of live cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses requiring resolution",
		}),
		NegativeHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "negative_hits_total",
			Help:      "Total number of cached negative (not-found) hits",
		}),
		CoalescedWaits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "coalesced_waits_total",
			Help:      "Total number of lookups that piggybacked on an in-flight resolution",
		}),
		OutboundCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "outbound_calls_total",
			Help:      "Total number of outbound source calls by source and status",
		}, []string{"source", "status"}),

		SnapshotsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mindmap",
			Name:      "snapshots_processed_total",
			Help:      "Total number of connection snapshots filtered and projected",
		}),
		SnapshotsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mindmap",
			Name:      "snapshots_rejected_total",
			Help:      "Total number of snapshots rejected by validation",
		}),
		FilterPassDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mindmap",
			Name:      "filter_pass_duration_seconds",
			Help:      "Duration of one filter and projection pass",
			Buckets:   prometheus.DefBuckets,
		}),
		NodesRetained: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mindmap",
			Name:      "nodes_retained",
			Help:      "Nodes in the most recent projected graph",
		}),
		LinksRetained: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mindmap",
			Name:      "links_retained",
			Help:      "Links in the most recent projected graph",
		}),
		TokensFiltered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mindmap",
			Name:      "tokens_filtered",
			Help:      "Tokens dropped by truncation in the most recent pass",
		}),
		KOLsFiltered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mindmap",
			Name:      "kols_filtered",
			Help:      "KOLs dropped by truncation in the most recent pass",
		}),

		StreamMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Total number of snapshot messages received",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of websocket reconnects",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCacheHit increments the live cache hit counter.
func RecordCacheHit() {
	DefaultMetrics.CacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	DefaultMetrics.CacheMisses.Inc()
}

// RecordNegativeHit increments the cached negative hit counter.
func RecordNegativeHit() {
	DefaultMetrics.NegativeHits.Inc()
}

// RecordCoalescedWait increments the coalesced wait counter.
func RecordCoalescedWait() {
	DefaultMetrics.CoalescedWaits.Inc()
}

// RecordOutboundCall records an outbound metadata source call.
func RecordOutboundCall(source, status string) {
	DefaultMetrics.OutboundCalls.WithLabelValues(source, status).Inc()
}

// RecordSnapshotProcessed records one completed filter/projection pass.
func RecordSnapshotProcessed(durationSeconds float64, nodes, links, filteredTokens, filteredKOLs int) {
	DefaultMetrics.SnapshotsProcessed.Inc()
	DefaultMetrics.FilterPassDuration.Observe(durationSeconds)
	DefaultMetrics.NodesRetained.Set(float64(nodes))
	DefaultMetrics.LinksRetained.Set(float64(links))
	DefaultMetrics.TokensFiltered.Set(float64(filteredTokens))
	DefaultMetrics.KOLsFiltered.Set(float64(filteredKOLs))
}

// RecordSnapshotRejected increments the rejected snapshot counter.
func RecordSnapshotRejected() {
	DefaultMetrics.SnapshotsRejected.Inc()
}

// RecordStreamMessage increments the snapshot message counter.
func RecordStreamMessage() {
	DefaultMetrics.StreamMessages.Inc()
}

// RecordStreamReconnect increments the reconnect counter.
func RecordStreamReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
