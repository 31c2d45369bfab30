// internal/llm/metrics.go
package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marvinous_generation_attempts_total",
			Help: "Generation requests sent to the model backend",
		},
		[]string{"outcome"}, // success, retryable, terminal
	)

	generationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marvinous_generation_duration_seconds",
			Help:    "Time from first attempt to finished text, including retry waits",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)
