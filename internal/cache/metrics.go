package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedule_note_sync",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache reads served from the local store.",
	}, []string{"kind"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedule_note_sync",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache reads that found no local entry.",
	}, []string{"kind"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedule_note_sync",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries removed by the eviction engine.",
	}, []string{"kind", "reason"})
)
