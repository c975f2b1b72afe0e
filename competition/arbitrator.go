package competition

import (
	"fmt"

	"arbiter/auction"
	"arbiter/eth"
	"arbiter/metrics"
)

// Arbitrator ranks the scored solutions of one auction round. Ranking is
// a pure in-memory pass: deterministic, no I/O, and never across auctions.
type Arbitrator struct {
	// FairnessThreshold is how much more surplus (in native token wei)
	// another solution may provide for a shared order before this one is
	// filtered out as unfair.
	FairnessThreshold *eth.U256
}

// Rank classifies every solution as Winner, NonWinner, or FilteredOut and
// returns the solutions in input order, all in the Ranked state. Every
// input must be Scored. The winner is the non-filtered solution with the
// highest score; ties break to the lowest solution id.
func (a *Arbitrator) Rank(prices auction.Prices, solutions []*Solution) (_ []*Solution, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		metrics.SolutionsRankedTotal.WithLabelValues(result).Add(float64(len(solutions)))
	}()

	for _, s := range solutions {
		if s.State() != StateScored {
			return nil, fmt.Errorf("solution %d: rank in state %s", s.ID(), s.State())
		}
	}

	filtered := a.filterUnfair(prices, solutions)

	var winner *Solution
	for _, s := range solutions {
		if filtered[s.ID()] {
			continue
		}
		if winner == nil {
			winner = s
			continue
		}
		switch s.score.Cmp(winner.score) {
		case 1:
			winner = s
		case 0:
			if s.ID() < winner.ID() {
				winner = s
			}
		}
	}

	ranked := make([]*Solution, 0, len(solutions))
	for _, s := range solutions {
		rank := RankNonWinner
		switch {
		case filtered[s.ID()]:
			rank = RankFilteredOut
		case winner != nil && s.ID() == winner.ID():
			rank = RankWinner
		}

		r, err := s.WithRank(rank)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, r)
	}

	return ranked, nil
}

// filterUnfair finds the solutions beaten on some individual order by
// another solver, by more than the fairness threshold in native token
// terms. The comparison is per order uid, never aggregate.
func (a *Arbitrator) filterUnfair(prices auction.Prices, solutions []*Solution) map[uint64]bool {
	type surplusEntry struct {
		solver  eth.Address
		surplus *eth.U256 // native token
	}

	best := map[auction.OrderUid]surplusEntry{}
	for _, s := range solutions {
		for _, o := range s.orders {
			surplus, ok := s.orderSurplus(o)
			if !ok {
				continue
			}
			price, ok := prices[surplus.Token]
			if !ok {
				continue
			}
			native := price.InEth(surplus.Amount)
			if e, ok := best[o.Uid]; !ok || native.Cmp(e.surplus) > 0 {
				best[o.Uid] = surplusEntry{solver: s.Solver(), surplus: native}
			}
		}
	}

	threshold := a.FairnessThreshold
	if threshold == nil {
		threshold = new(eth.U256)
	}

	filtered := map[uint64]bool{}
	for _, s := range solutions {
		for _, o := range s.orders {
			e, ok := best[o.Uid]
			if !ok || e.solver == s.Solver() {
				continue
			}

			var native *eth.U256
			if surplus, ok := s.orderSurplus(o); ok {
				if price, ok := prices[surplus.Token]; ok {
					native = price.InEth(surplus.Amount)
				}
			}
			if native == nil {
				// This solution can't demonstrate any surplus for an
				// order someone else settles profitably.
				native = new(eth.U256)
			}

			gap := eth.SaturatingSub(e.surplus, native)
			if gap.Cmp(threshold) > 0 {
				filtered[s.ID()] = true
				break
			}
		}
	}

	return filtered
}

// ReferenceScore is the best score achieved by a non-filtered solution
// from a solver other than the winner, i.e. what the competition would
// have settled for without the winner. Zero when there is no runner-up.
func (a *Arbitrator) ReferenceScore(ranked []*Solution) (*eth.U256, error) {
	var winner *Solution
	for _, s := range ranked {
		if s.State() != StateRanked {
			return nil, fmt.Errorf("solution %d: reference score in state %s", s.ID(), s.State())
		}
		if s.IsWinner() {
			winner = s
		}
	}

	reference := new(eth.U256)
	for _, s := range ranked {
		if s.IsFilteredOut() {
			continue
		}
		if winner != nil && s.Solver() == winner.Solver() {
			continue
		}
		if s.score.Cmp(reference) > 0 {
			reference = s.score.Clone()
		}
	}

	return reference, nil
}
