package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydash_query_executions_total",
			Help: "Total number of widget query executions by connection kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	queryDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querydash_query_duration_ms",
			Help:    "Query execution latency in milliseconds, connect through close.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"kind"},
	)
	queryRowsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querydash_query_rows_returned",
			Help:    "Rows returned per successful query execution.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
		},
		[]string{"kind"},
	)
	connectionProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydash_connection_probes_total",
			Help: "Total number of connection probes by connection kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	syntheticResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydash_synthetic_results_total",
			Help: "Total number of sample results served for widgets without a query.",
		},
		[]string{"widget_type"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydash_exports_total",
			Help: "Total number of widget result exports by outcome.",
		},
		[]string{"outcome"},
	)
	exportBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydash_export_bytes_total",
			Help: "Total parquet bytes written by widget result exports.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queryExecutionsTotal,
		queryDurationMs,
		queryRowsReturned,
		connectionProbesTotal,
		syntheticResultsTotal,
		exportsTotal,
		exportBytesTotal,
	)
}

func ObserveQueryExecution(kind, outcome string, rows int64, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(kind, outcome).Inc()
	queryDurationMs.WithLabelValues(kind).Observe(float64(elapsed.Milliseconds()))
	if outcome == "ok" {
		queryRowsReturned.WithLabelValues(kind).Observe(float64(rows))
	}
}

func ObserveConnectionProbe(kind string, success bool) {
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	connectionProbesTotal.WithLabelValues(kind, outcome).Inc()
}

func IncrementSyntheticResult(widgetType string) {
	syntheticResultsTotal.WithLabelValues(widgetType).Inc()
}

func ObserveExport(sizeBytes int64, err error) {
	if err != nil {
		exportsTotal.WithLabelValues("failed").Inc()
		return
	}
	exportsTotal.WithLabelValues("ok").Inc()
	if sizeBytes > 0 {
		exportBytesTotal.Add(float64(sizeBytes))
	}
}
