package settlement

import (
	"arbiter/auction"
	"arbiter/chain"
	"arbiter/eth"
)

// Settlement is a decoded on-chain settlement transaction. Constructed
// once by Decode or FromTransaction and never mutated after; any update
// requires re-decoding.
type Settlement struct {
	AuctionID         int64
	Solver            eth.Address
	BlockNumber       uint64
	Gas               uint64
	EffectiveGasPrice *eth.U256
	Trades            []*Trade
}

// FromTransaction decodes a mined transaction into a Settlement,
// attaching the submitter and block context from the transaction itself.
func FromTransaction(tx *chain.Transaction, sep eth.DomainSeparator) (*Settlement, error) {
	s, err := Decode(tx.Input, sep)
	if err != nil {
		return nil, err
	}

	s.Solver = tx.From
	s.BlockNumber = tx.BlockNumber
	s.Gas = tx.Gas
	s.EffectiveGasPrice = tx.EffectiveGasPrice
	return s, nil
}

// OrderUids returns the set of order uids traded in this settlement.
func (s *Settlement) OrderUids() map[auction.OrderUid]bool {
	uids := make(map[auction.OrderUid]bool, len(s.Trades))
	for _, t := range s.Trades {
		uids[t.OrderUid] = true
	}
	return uids
}

// Score sums the per-trade scores, denominated in the native token.
func (s *Settlement) Score(prices auction.Prices, policies map[auction.OrderUid][]auction.Policy) (*eth.U256, error) {
	total := new(eth.U256)
	for _, t := range s.Trades {
		score, err := t.Score(prices, policies[t.OrderUid])
		if err != nil {
			return nil, err
		}
		total = eth.SaturatingAdd(total, score)
	}
	return total, nil
}

//
//
//

// Trade is one order execution inside a settlement.
type Trade struct {
	OrderUid auction.OrderUid
	Owner    eth.Address

	Sell     eth.Asset // limit amounts from the signed order
	Buy      eth.Asset
	Side     auction.Side
	Receiver eth.Address
	ValidTo  uint32
	AppData  eth.Hash
	FeeAmnt  *eth.U256

	PartiallyFillable bool
	SellTokenBalance  auction.SellTokenBalance
	BuyTokenBalance   auction.BuyTokenDestination
	Scheme            auction.SigningScheme

	// Executed is the target amount: sold amount for sell orders, bought
	// amount for buy orders.
	Executed *eth.U256
	Prices   TradePrices
}

type TradePrices struct {
	// Uniform clearing prices apply to every trade of a token in the
	// settlement. Custom prices are the uniform prices adjusted for fees.
	Uniform ClearingPrices
	Custom  ClearingPrices
}

type ClearingPrices struct {
	Sell *eth.U256
	Buy  *eth.U256
}

func (p ClearingPrices) equal(o ClearingPrices) bool {
	return p.Sell.Eq(o.Sell) && p.Buy.Eq(o.Buy)
}
