// Package metrics exposes Prometheus collectors for the commitments
// service. Collectors register on the default registry; the API server
// serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommitmentOps counts lifecycle operations by kind and result.
	CommitmentOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duebook_commitment_operations_total",
		Help: "Lifecycle operations on commitments.",
	}, []string{"op", "result"})

	// OccurrencesSpawned counts successor occurrences created by the spawner.
	OccurrencesSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duebook_occurrences_spawned_total",
		Help: "Successor occurrences created for recurring commitments.",
	})

	// StaleSiblingsPruned counts pending duplicates removed during spawning.
	StaleSiblingsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duebook_stale_siblings_pruned_total",
		Help: "Stale pending occurrences removed by the spawn dedupe step.",
	})

	// BalanceAdjustments counts debit/credit calls issued to accounts.
	BalanceAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duebook_balance_adjustments_total",
		Help: "Account balance adjustments applied.",
	}, []string{"direction"})
)

// ObserveOp records one lifecycle operation outcome.
func ObserveOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CommitmentOps.WithLabelValues(op, result).Inc()
}
