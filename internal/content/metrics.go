package content

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pushOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "schedule_note_sync",
	Subsystem: "content",
	Name:      "push_total",
	Help:      "Push attempts by entity kind and resulting state.",
}, []string{"kind", "state"})

var remoteFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "schedule_note_sync",
	Subsystem: "content",
	Name:      "remote_fallback_total",
	Help:      "Reads answered from the cache after a remote failure.",
}, []string{"kind"})
