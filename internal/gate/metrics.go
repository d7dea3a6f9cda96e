package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "aeroingest_gate_wait_seconds",
	Help:    "Time callers waited for the sliding request window to open",
	Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
})
