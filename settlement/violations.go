package settlement

import (
	"arbiter/auction"
	"arbiter/eth"
)

type ViolationKind string

const (
	// The on-chain settlement was submitted by someone other than the
	// auction winner.
	ViolationWinnerSettled ViolationKind = "winner-settled"
	// The settlement landed after the auction deadline.
	ViolationDeadline ViolationKind = "deadline"
	// The promised solution's calldata could not be decoded, so the
	// comparison rules below could not run.
	ViolationRecoverablePromisedSettlement ViolationKind = "recoverable-promised-settlement"
	// Delivered and promised settlements carry different auction ids.
	ViolationEqualAuctionIds ViolationKind = "equal-auction-ids"
	// Delivered and promised settlements trade different sets of orders.
	ViolationEqualOrders ViolationKind = "equal-orders"
	// The delivered settlement's score could not be computed.
	ViolationRecoverableDeliveredScore ViolationKind = "recoverable-delivered-score"
	// The promised settlement's score could not be computed.
	ViolationRecoverablePromisedScore ViolationKind = "recoverable-promised-score"
	// Delivered and promised scores differ.
	ViolationEqualScores ViolationKind = "equal-scores"
	// An order traded in both settlements executed different amounts.
	ViolationEqualAmounts ViolationKind = "equal-amounts"
	// An order traded in both settlements cleared at different prices.
	ViolationEqualPrices ViolationKind = "equal-prices"
)

type Violation struct {
	Kind ViolationKind
	Err  error // set for the recoverable kinds
}

// Auction is the promised solution and the delivered settlement for one
// auction, assembled by the observer from the competition record and the
// decoded on-chain transaction. Read-only.
type Auction struct {
	Delivered        *Settlement
	Winner           eth.Address
	Deadline         uint64
	PromisedCalldata []byte
	DomainSeparator  eth.DomainSeparator
	Prices           auction.Prices
	FeePolicies      map[auction.OrderUid][]auction.Policy
}

// Violations compares the delivered settlement against the promised one
// and returns the detected discrepancies, in rule order. It is a pure,
// total function over its input: it never mutates the auction and is safe
// to call concurrently for different auctions.
func Violations(a *Auction) []Violation {
	var violations []Violation

	if a.Delivered.Solver != a.Winner {
		violations = append(violations, Violation{Kind: ViolationWinnerSettled})
	}

	if a.Delivered.BlockNumber > a.Deadline {
		violations = append(violations, Violation{Kind: ViolationDeadline})
	}

	// Without a decodable promised settlement none of the comparison
	// rules can run, so stop here.
	promised, err := Decode(a.PromisedCalldata, a.DomainSeparator)
	if err != nil {
		return append(violations, Violation{Kind: ViolationRecoverablePromisedSettlement, Err: err})
	}

	// Fast accept: a structurally identical settlement cannot trip any of
	// the equality rules.
	if structurallyEqual(a.Delivered, promised) {
		return violations
	}

	if a.Delivered.AuctionID != promised.AuctionID {
		violations = append(violations, Violation{Kind: ViolationEqualAuctionIds})
	}

	deliveredUids, promisedUids := a.Delivered.OrderUids(), promised.OrderUids()
	if !uidSetsEqual(deliveredUids, promisedUids) {
		violations = append(violations, Violation{Kind: ViolationEqualOrders})
	}

	violations = append(violations, scoreViolations(a, promised)...)
	violations = append(violations, tradeViolations(a.Delivered, promised)...)

	return violations
}

func scoreViolations(a *Auction, promised *Settlement) []Violation {
	var violations []Violation

	deliveredScore, deliveredErr := a.Delivered.Score(a.Prices, a.FeePolicies)
	if deliveredErr != nil {
		violations = append(violations, Violation{Kind: ViolationRecoverableDeliveredScore, Err: deliveredErr})
	}

	promisedScore, promisedErr := promised.Score(a.Prices, a.FeePolicies)
	if promisedErr != nil {
		violations = append(violations, Violation{Kind: ViolationRecoverablePromisedScore, Err: promisedErr})
	}

	if deliveredErr == nil && promisedErr == nil && !deliveredScore.Eq(promisedScore) {
		violations = append(violations, Violation{Kind: ViolationEqualScores})
	}

	return violations
}

// tradeViolations compares executed amounts and clearing prices for every
// order traded in both settlements. Comparison is exact equality; whether
// price comparison should allow rounding slack is an open product
// question.
func tradeViolations(delivered, promised *Settlement) []Violation {
	promisedTrades := make(map[auction.OrderUid]*Trade, len(promised.Trades))
	for _, t := range promised.Trades {
		promisedTrades[t.OrderUid] = t
	}

	var amountsDiffer, pricesDiffer bool
	for _, dt := range delivered.Trades {
		pt, ok := promisedTrades[dt.OrderUid]
		if !ok {
			continue
		}
		if !dt.Executed.Eq(pt.Executed) {
			amountsDiffer = true
		}
		if !dt.Prices.Uniform.equal(pt.Prices.Uniform) || !dt.Prices.Custom.equal(pt.Prices.Custom) {
			pricesDiffer = true
		}
	}

	var violations []Violation
	if amountsDiffer {
		violations = append(violations, Violation{Kind: ViolationEqualAmounts})
	}
	if pricesDiffer {
		violations = append(violations, Violation{Kind: ViolationEqualPrices})
	}
	return violations
}

func structurallyEqual(a, b *Settlement) bool {
	if a.AuctionID != b.AuctionID || len(a.Trades) != len(b.Trades) {
		return false
	}
	for i := range a.Trades {
		at, bt := a.Trades[i], b.Trades[i]
		switch {
		case at.OrderUid != bt.OrderUid,
			!at.Executed.Eq(bt.Executed),
			!at.Sell.Amount.Eq(bt.Sell.Amount) || at.Sell.Token != bt.Sell.Token,
			!at.Buy.Amount.Eq(bt.Buy.Amount) || at.Buy.Token != bt.Buy.Token,
			at.Side != bt.Side,
			!at.Prices.Uniform.equal(bt.Prices.Uniform),
			!at.Prices.Custom.equal(bt.Prices.Custom):
			return false
		}
	}
	return true
}

func uidSetsEqual(a, b map[auction.OrderUid]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for uid := range a {
		if !b[uid] {
			return false
		}
	}
	return true
}
