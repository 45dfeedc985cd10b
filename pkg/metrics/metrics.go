package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics exported on /metrics.
var (
	// ItemsExecuted counts work item executions by outcome and kind.
	// Labels:
	//   - outcome: "success" or "failure"
	//   - kind: work item kind (e.g., "payment", "reminder")
	ItemsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentplane_items_executed_total",
		Help: "The total number of executed work items",
	}, []string{"outcome", "kind"})

	// ExecutionDuration tracks handler latency in seconds per kind.
	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentplane_execution_duration_seconds",
		Help:    "Duration of work item handler execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ClaimConflicts counts claims lost to a concurrent scheduler instance.
	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentplane_claim_conflicts_total",
		Help: "The total number of claim attempts lost to a concurrent claimer",
	})

	// ItemsReconciled counts stuck-running items reconciled by the maintenance sweep.
	ItemsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentplane_items_reconciled_total",
		Help: "The total number of stalled work items reconciled",
	})

	// LastDiscoveryTick records the unix time of the last completed discovery tick.
	LastDiscoveryTick = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentplane_last_discovery_tick_timestamp",
		Help: "Unix timestamp of the last completed discovery tick",
	})
)
