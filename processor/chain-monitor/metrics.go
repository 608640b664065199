package chainmonitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agora_monitor_cycles_total",
		Help: "Completed discovery cycles.",
	})

	metricCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agora_monitor_cycle_seconds",
		Help:    "Duration of one discovery cycle.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	metricProposalsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_proposals_discovered_total",
		Help: "Proposals observed for the first time.",
	}, []string{"dao"})

	metricDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_decisions_total",
		Help: "Automation decisions recorded, by classification.",
	}, []string{"dao", "classification"})

	metricAnalysisFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_analysis_failures_total",
		Help: "Proposal processing attempts that did not produce a decision.",
	}, []string{"dao"})
)
