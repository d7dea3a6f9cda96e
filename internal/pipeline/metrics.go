package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aeroingest_pipeline_rows_total",
		Help: "Records fetched and stored per pipeline stage",
	}, []string{"stage", "result"})
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aeroingest_pipeline_runs_total",
		Help: "Completed pipeline runs by result",
	}, []string{"result"})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aeroingest_pipeline_run_seconds",
		Help:    "Duration of full pipeline runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aeroingest_pipeline_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	})
)
