package competition

import (
	"fmt"

	"arbiter/auction"
	"arbiter/eth"
)

// Solutions move strictly forward through Unscored, Scored, Ranked. The
// transitions are checked at runtime: calling an accessor or transition in
// the wrong state is a bug in the caller and returns an error rather than
// a garbage value.

type State string

const (
	StateUnscored State = "unscored"
	StateScored   State = "scored"
	StateRanked   State = "ranked"
)

type RankType string

const (
	RankWinner      RankType = "winner"
	RankNonWinner   RankType = "non-winner"
	RankFilteredOut RankType = "filtered-out"
)

// Order is the lightweight projection of an order inside a solver's
// solution, carrying just enough to score it and compare it for fairness.
type Order struct {
	Uid          auction.OrderUid
	SellToken    eth.TokenAddress
	BuyToken     eth.TokenAddress
	SellAmount   *eth.U256 // limit amounts
	BuyAmount    *eth.U256
	ExecutedSell *eth.U256
	ExecutedBuy  *eth.U256
	Side         auction.Side
}

// Solution is one solver's proposed settlement for an auction.
type Solution struct {
	id     uint64
	solver eth.Address
	orders []Order
	prices map[eth.TokenAddress]*eth.U256 // clearing prices

	state State
	score *eth.U256
	rank  RankType
}

func NewSolution(id uint64, solver eth.Address, orders []Order, prices map[eth.TokenAddress]*eth.U256) *Solution {
	return &Solution{
		id:     id,
		solver: solver,
		orders: orders,
		prices: prices,
		state:  StateUnscored,
	}
}

func (s *Solution) ID() uint64          { return s.id }
func (s *Solution) Solver() eth.Address { return s.solver }
func (s *Solution) Orders() []Order     { return s.orders }
func (s *Solution) State() State        { return s.state }

// WithScore moves an unscored solution to Scored. The receiver is
// consumed: callers must use the returned value and drop the old one.
func (s *Solution) WithScore(score *eth.U256) (*Solution, error) {
	if s.state != StateUnscored {
		return nil, fmt.Errorf("solution %d: with score in state %s", s.id, s.state)
	}

	next := *s
	next.state = StateScored
	next.score = score.Clone()
	return &next, nil
}

// WithRank moves a scored solution to Ranked, carrying the score forward
// unchanged.
func (s *Solution) WithRank(rank RankType) (*Solution, error) {
	if s.state != StateScored {
		return nil, fmt.Errorf("solution %d: with rank in state %s", s.id, s.state)
	}

	next := *s
	next.state = StateRanked
	next.rank = rank
	return &next, nil
}

func (s *Solution) Score() (*eth.U256, error) {
	if s.state == StateUnscored {
		return nil, fmt.Errorf("solution %d: score in state %s", s.id, s.state)
	}
	return s.score.Clone(), nil
}

func (s *Solution) Rank() (RankType, error) {
	if s.state != StateRanked {
		return "", fmt.Errorf("solution %d: rank in state %s", s.id, s.state)
	}
	return s.rank, nil
}

// IsWinner reports whether this solution won its auction. Only Ranked
// solutions can win; in any other state the answer is false.
func (s *Solution) IsWinner() bool {
	return s.state == StateRanked && s.rank == RankWinner
}

func (s *Solution) IsFilteredOut() bool {
	return s.state == StateRanked && s.rank == RankFilteredOut
}

// orderSurplus computes the surplus this solution provides for one of its
// orders, denominated in the order's surplus token (buy token for sell
// orders, sell token for buy orders). Not computable results are ok=false.
func (s *Solution) orderSurplus(o Order) (eth.Asset, bool) {
	sellPrice, ok := s.prices[o.SellToken]
	if !ok {
		return eth.Asset{}, false
	}
	buyPrice, ok := s.prices[o.BuyToken]
	if !ok {
		return eth.Asset{}, false
	}

	switch o.Side {
	case auction.SideBuy:
		// Surplus is how much less was sold than the limit allows.
		scaledLimitSell, ok := mulDiv(o.SellAmount, o.ExecutedBuy, o.BuyAmount)
		if !ok {
			return eth.Asset{}, false
		}
		sold, ok := mulDiv(o.ExecutedBuy, buyPrice, sellPrice)
		if !ok {
			return eth.Asset{}, false
		}
		surplus, ok := eth.CheckedSub(scaledLimitSell, sold)
		if !ok {
			return eth.Asset{}, false
		}
		return eth.Asset{Token: o.SellToken, Amount: surplus}, true

	default: // sell
		// Surplus is how much more was bought than the limit requires.
		scaledLimitBuy, ok := mulCeilDiv(o.ExecutedSell, o.BuyAmount, o.SellAmount)
		if !ok {
			return eth.Asset{}, false
		}
		bought, ok := mulCeilDiv(o.ExecutedSell, sellPrice, buyPrice)
		if !ok {
			return eth.Asset{}, false
		}
		surplus, ok := eth.CheckedSub(bought, scaledLimitBuy)
		if !ok {
			return eth.Asset{}, false
		}
		return eth.Asset{Token: o.BuyToken, Amount: surplus}, true
	}
}

func mulDiv(a, b, c *eth.U256) (*eth.U256, bool) {
	product, ok := eth.CheckedMul(a, b)
	if !ok {
		return nil, false
	}
	return eth.CheckedDiv(product, c)
}

func mulCeilDiv(a, b, c *eth.U256) (*eth.U256, bool) {
	product, ok := eth.CheckedMul(a, b)
	if !ok {
		return nil, false
	}
	return eth.CheckedCeilDiv(product, c)
}
