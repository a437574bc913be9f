package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdb_session_queries_total",
			Help: "Total number of settled chat session queries by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)
	sessionQueryLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdb_session_query_latency_ms",
			Help:    "Round trip latency of chat session queries in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"backend"},
	)
	sessionResultRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdb_session_result_rows",
			Help:    "Rows or documents returned to the chat session per successful query.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"backend"},
	)
	backendQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdb_backend_queries_total",
			Help: "Total number of queries served by the reference backend by database and status.",
		},
		[]string{"database", "status"},
	)
	backendTranslationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdb_backend_translations_total",
			Help: "Total number of natural-language translations by provider.",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		sessionQueriesTotal,
		sessionQueryLatencyMs,
		sessionResultRows,
		backendQueriesTotal,
		backendTranslationsTotal,
	)
}

func ObserveSessionQuery(backend, outcome string, elapsed time.Duration) {
	sessionQueriesTotal.WithLabelValues(backend, outcome).Inc()
	sessionQueryLatencyMs.WithLabelValues(backend).Observe(float64(elapsed.Milliseconds()))
}

func ObserveSessionResultRows(backend string, rows int) {
	if rows < 0 {
		rows = 0
	}
	sessionResultRows.WithLabelValues(backend).Observe(float64(rows))
}

func ObserveBackendQuery(database, status string) {
	backendQueriesTotal.WithLabelValues(database, status).Inc()
}

func ObserveTranslation(provider string) {
	backendTranslationsTotal.WithLabelValues(provider).Inc()
}
