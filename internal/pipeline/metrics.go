// internal/pipeline/metrics.go
package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marvinous_runs_total",
			Help: "Guarded pipeline runs by kind and outcome",
		},
		[]string{"kind", "outcome"}, // hourly|daily, success|failed|no_reports|skipped
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marvinous_run_duration_seconds",
			Help:    "Wall time of a guarded run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	collectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marvinous_collector_duration_seconds",
			Help:    "Time taken by individual collectors",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"collector"},
	)

	lastSeverity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marvinous_last_severity",
			Help: "Severity rank of the latest hourly report (0 unknown .. 4 critical)",
		},
	)
)
