package store

import (
	"context"
	"fmt"

	"arbiter/metrics"
)

// UpdateMetrics refreshes store-derived gauges. Callers decide the cadence
// and the recency window.
func UpdateMetrics(ctx context.Context, s Store, lastAuctionsCount uint32, currentBlock uint64) error {
	solvers, err := s.ListNonSettlingSolvers(ctx, lastAuctionsCount, currentBlock)
	if err != nil {
		return fmt.Errorf("list non-settling solvers: %w", err)
	}

	metrics.NonSettlingSolverInfo.Reset()
	for _, solver := range solvers {
		metrics.NonSettlingSolverInfo.WithLabelValues(solver).Set(1)
	}

	return nil
}
