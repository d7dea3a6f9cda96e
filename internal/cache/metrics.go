package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aeroingest_response_cache_lookups_total",
		Help: "Response cache lookups by result (hit or miss)",
	}, []string{"result"})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aeroingest_response_cache_evictions_total",
		Help: "Expired response cache entries removed",
	})
)
