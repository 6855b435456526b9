package scheduling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scheduling_conflicts_total",
	Help: "Overlap searches that found at least one conflicting booking, by scope.",
}, []string{"scope"})
