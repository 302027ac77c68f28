package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	casConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedule_note_sync",
		Subsystem: "server",
		Name:      "cas_conflicts_total",
		Help:      "Versioned writes rejected because the stored version moved on.",
	}, []string{"kind"})

	contentWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "schedule_note_sync",
		Subsystem: "server",
		Name:      "content_writes_total",
		Help:      "Accepted note and drawing writes by operation.",
	}, []string{"kind", "op"})
)
