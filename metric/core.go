package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the core platform metrics shared across components.
// Component-specific metrics are registered separately via the registry.
type Metrics struct {
	// RecordsIngested counts raw records received per projector class,
	// before any validation or projection outcome is known.
	RecordsIngested *prometheus.CounterVec

	// IngestOutcomes counts projection results by projector and outcome
	// (ok, skipped, failed). Failures never propagate upstream, so this is
	// the only place they are visible.
	IngestOutcomes *prometheus.CounterVec

	// QueriesTotal counts store queries by path (snapshot, raw, copilot)
	// and query source (template, llm, client).
	QueriesTotal *prometheus.CounterVec

	// QueryRejections counts queries rejected by the safety validator.
	QueryRejections *prometheus.CounterVec

	// QueryDuration observes store round-trip latency by path.
	QueryDuration *prometheus.HistogramVec

	// NATSConnected reports NATS connection state (1 connected, 0 not).
	NATSConnected prometheus.Gauge
}

// NewMetrics creates the core platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgraph_records_ingested_total",
				Help: "Raw records received per projector class",
			},
			[]string{"projector"},
		),
		IngestOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgraph_ingest_outcomes_total",
				Help: "Projection results by projector and outcome",
			},
			[]string{"projector", "outcome"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgraph_queries_total",
				Help: "Store queries by path and query source",
			},
			[]string{"path", "source"},
		),
		QueryRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgraph_query_rejections_total",
				Help: "Queries rejected by the safety validator, by path",
			},
			[]string{"path"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsgraph_query_duration_seconds",
				Help:    "Store round-trip latency by path",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "opsgraph_nats_connected",
				Help: "NATS connection state (1 connected, 0 disconnected)",
			},
		),
	}
}
