package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(upstreamCalls, upstreamLatencyMs, upstreamRetries) }

var (
	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_calls_total",
			Help: "Upstream HTTP calls per operation and outcome (ok, status, network, mock).",
		},
		[]string{"op", "outcome"},
	)

	upstreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_ms",
			Help:    "Upstream call latency distribution in milliseconds, retries included.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"op"},
	)

	upstreamRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Transport-level retries per upstream operation.",
		},
		[]string{"op"},
	)
)

func ObserveUpstream(op, outcome string, latency time.Duration) {
	upstreamCalls.WithLabelValues(norm(op), norm(outcome)).Inc()
	upstreamLatencyMs.WithLabelValues(norm(op)).Observe(float64(latency / time.Millisecond))
}

func IncUpstream(op, outcome string) {
	upstreamCalls.WithLabelValues(norm(op), norm(outcome)).Inc()
}

func IncRetry(op string) {
	upstreamRetries.WithLabelValues(norm(op)).Inc()
}
