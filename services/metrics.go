package services

import "github.com/prometheus/client_golang/prometheus"

var (
	snapshotsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_snapshots_accepted_total",
			Help: "Health snapshots accepted by the idempotency coordinator",
		},
	)
	snapshotsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_snapshots_rejected_total",
			Help: "Health snapshots rejected before reconciliation",
		},
		[]string{"reason"},
	)
	deltasCapped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_deltas_capped_total",
			Help: "Raw deltas corrected by the anomaly capper",
		},
	)
	rolloverResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_rollover_resets_total",
			Help: "Baselines reset across a day boundary",
		},
	)
	completionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "race_completions_total",
			Help: "Participants crossing the finish line",
		},
	)
	rankRecomputes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rank_recomputes_total",
			Help: "Full rank recomputations per race trigger",
		},
	)
)

// InitMetrics registers the engine counters. Call this from main.go next to
// middleware.InitPrometheus.
func InitMetrics() {
	prometheus.MustRegister(snapshotsAccepted)
	prometheus.MustRegister(snapshotsRejected)
	prometheus.MustRegister(deltasCapped)
	prometheus.MustRegister(rolloverResets)
	prometheus.MustRegister(completionsTotal)
	prometheus.MustRegister(rankRecomputes)
}
