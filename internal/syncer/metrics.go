package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedule_note_sync",
		Subsystem: "sync",
		Name:      "batch_total",
		Help:      "Sync batches run, by entity kind.",
	}, []string{"kind"})

	itemTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedule_note_sync",
		Subsystem: "sync",
		Name:      "item_total",
		Help:      "Entries processed by sync batches, by entity kind and final state.",
	}, []string{"kind", "state"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "schedule_note_sync",
		Subsystem: "sync",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of sync batches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)
