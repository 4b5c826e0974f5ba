package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(turnsTotal, turnDuration, workflowSkipped) }

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_total",
			Help: "Chat turns by outcome (accepted, done, error, rejected, superseded).",
		},
		[]string{"status"},
	)

	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "Wall time of a background turn, labeled by terminal status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	workflowSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_skipped_total",
			Help: "Turns where the workflow enrichment produced no handle, by reason.",
		},
		[]string{"reason"}, // 'no_intent', 'not_configured', 'status', 'no_handle', 'failed'
	)
)

func IncTurn(status string) {
	turnsTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveTurn(status string, d time.Duration) {
	turnsTotal.WithLabelValues(norm(status)).Inc()
	turnDuration.WithLabelValues(norm(status)).Observe(d.Seconds())
}

func IncWorkflowSkipped(reason string) {
	workflowSkipped.WithLabelValues(norm(reason)).Inc()
}
