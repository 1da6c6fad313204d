package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goupdate_cache_hits_total",
			Help: "Total number of reads served from a fresh cache entry",
		},
		[]string{"cache"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goupdate_cache_misses_total",
			Help: "Total number of reads that found no fresh entry and joined or started a refresh",
		},
		[]string{"cache"},
	)

	cacheShared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goupdate_cache_shared_total",
			Help: "Total number of reads that received the result of a refresh shared with other readers",
		},
		[]string{"cache"},
	)

	producerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goupdate_cache_producer_failures_total",
			Help: "Total number of refreshes whose producer failed or returned an invalid value",
		},
		[]string{"cache"},
	)

	staleServes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goupdate_cache_stale_total",
			Help: "Total number of reads answered with an expired value",
		},
		[]string{"cache"},
	)

	snapshotFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goupdate_cache_snapshot_failures_total",
			Help: "Total number of snapshot writes that failed",
		},
		[]string{"cache"},
	)
)
