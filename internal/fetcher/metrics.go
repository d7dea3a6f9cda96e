package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aeroingest_fetch_outcomes_total",
		Help: "Remote API fetch outcomes by endpoint template",
	}, []string{"endpoint", "outcome"})
	fetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aeroingest_fetch_request_seconds",
		Help:    "Latency of individual remote API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
