package settlement

import (
	"errors"
	"testing"

	"arbiter/auction"
	"arbiter/eth"

	"github.com/holiman/uint256"
)

func newTestTrade(side auction.Side, executed, limitSell, limitBuy uint64, prices TradePrices) *Trade {
	return &Trade{
		Sell:     eth.Asset{Token: testWETH, Amount: uint256.NewInt(limitSell)},
		Buy:      eth.Asset{Token: testCOW, Amount: uint256.NewInt(limitBuy)},
		Side:     side,
		Executed: uint256.NewInt(executed),
		Prices:   prices,
	}
}

func clearing(sell, buy uint64) ClearingPrices {
	return ClearingPrices{Sell: uint256.NewInt(sell), Buy: uint256.NewInt(buy)}
}

func TestSurplusSellOrder(t *testing.T) {
	// Limit: sell 100 for at least 200. Clearing at 3:1 buys 300.
	prices := TradePrices{Uniform: clearing(3, 1), Custom: clearing(3, 1)}

	t.Run("FullFill", func(t *testing.T) {
		trade := newTestTrade(auction.SideSell, 100, 100, 200, prices)

		surplus, ok := trade.Surplus()
		if !ok {
			t.Fatal("surplus should be computable")
		}
		if want, have := uint256.NewInt(100), surplus.Amount; !want.Eq(have) {
			t.Errorf("surplus: want %s, have %s", want, have)
		}
		if want, have := testCOW, surplus.Token; want != have {
			t.Errorf("surplus token: want %s, have %s", want, have)
		}
	})

	t.Run("PartialFill", func(t *testing.T) {
		// Half the sell amount executed: the limit scales down with it.
		trade := newTestTrade(auction.SideSell, 50, 100, 200, prices)

		surplus, ok := trade.Surplus()
		if !ok {
			t.Fatal("surplus should be computable")
		}
		if want, have := uint256.NewInt(50), surplus.Amount; !want.Eq(have) {
			t.Errorf("surplus: want %s, have %s", want, have)
		}
	})
}

func TestSurplusBuyOrder(t *testing.T) {
	// Limit: buy 100 for at most 200. Clearing at par sells only 100.
	prices := TradePrices{Uniform: clearing(1, 1), Custom: clearing(1, 1)}
	trade := newTestTrade(auction.SideBuy, 100, 200, 100, prices)

	surplus, ok := trade.Surplus()
	if !ok {
		t.Fatal("surplus should be computable")
	}
	if want, have := uint256.NewInt(100), surplus.Amount; !want.Eq(have) {
		t.Errorf("surplus: want %s, have %s", want, have)
	}
	if want, have := testWETH, surplus.Token; want != have {
		t.Errorf("surplus token: want %s, have %s", want, have)
	}
}

func TestSurplusNegativeNotComputable(t *testing.T) {
	// Clearing at par buys 100, but the limit demands 200: the order
	// executed outside its limit price. That has no defined surplus.
	prices := TradePrices{Uniform: clearing(1, 1), Custom: clearing(1, 1)}
	trade := newTestTrade(auction.SideSell, 100, 100, 200, prices)

	if _, ok := trade.Surplus(); ok {
		t.Error("negative surplus should not be computable")
	}
}

func TestFee(t *testing.T) {
	t.Run("CustomPricesCarryTheFee", func(t *testing.T) {
		// Uniform 3:1 buys 300, custom 2:1 buys only 200: the missing 100
		// buy tokens are the fee.
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(2, 1),
		})

		fee, ok := trade.Fee()
		if !ok {
			t.Fatal("fee should be computable")
		}
		if want, have := uint256.NewInt(100), fee.Amount; !want.Eq(have) {
			t.Errorf("fee: want %s, have %s", want, have)
		}
		if want, have := testCOW, fee.Token; want != have {
			t.Errorf("fee token: want %s, have %s", want, have)
		}
	})

	t.Run("NoFee", func(t *testing.T) {
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(3, 1),
		})

		fee, ok := trade.Fee()
		if !ok {
			t.Fatal("fee should be computable")
		}
		if !fee.Amount.IsZero() {
			t.Errorf("fee: want 0, have %s", fee.Amount)
		}
	})
}

func TestFeeInSellToken(t *testing.T) {
	t.Run("SellOrderRescales", func(t *testing.T) {
		// 100 buy tokens of fee at uniform prices 3:1 is 33 sell tokens.
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(2, 1),
		})

		fee, ok := trade.FeeInSellToken()
		if !ok {
			t.Fatal("fee should be computable")
		}
		if want, have := uint256.NewInt(33), fee.Amount; !want.Eq(have) {
			t.Errorf("fee: want %s, have %s", want, have)
		}
		if want, have := testWETH, fee.Token; want != have {
			t.Errorf("fee token: want %s, have %s", want, have)
		}
	})

	t.Run("BuyOrderPassesThrough", func(t *testing.T) {
		// For buy orders the surplus token already is the sell token.
		trade := newTestTrade(auction.SideBuy, 100, 300, 100, TradePrices{
			Uniform: clearing(1, 1),
			Custom:  clearing(2, 3),
		})

		fee, ok := trade.FeeInSellToken()
		if !ok {
			t.Fatal("fee should be computable")
		}
		// Uniform sells 100, custom sells 150: fee is 50 sell tokens.
		if want, have := uint256.NewInt(50), fee.Amount; !want.Eq(have) {
			t.Errorf("fee: want %s, have %s", want, have)
		}
		if want, have := testWETH, fee.Token; want != have {
			t.Errorf("fee token: want %s, have %s", want, have)
		}
	})
}

func TestProtocolFee(t *testing.T) {
	t.Run("NoPolicy", func(t *testing.T) {
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(3, 1),
		})

		fee, err := trade.ProtocolFee(nil)
		if err != nil {
			t.Fatal(err)
		}
		if !fee.Amount.IsZero() {
			t.Errorf("fee: want 0, have %s", fee.Amount)
		}
	})

	t.Run("SurplusPolicy", func(t *testing.T) {
		// Surplus is 100 after a 0.5 surplus cut, so the fee taken was
		// 100 * 0.5/(1-0.5) = 100. The volume cap is far above.
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(3, 1),
		})

		fee, err := trade.ProtocolFee([]auction.Policy{{
			Kind:            auction.PolicySurplus,
			Factor:          0.5,
			MaxVolumeFactor: 0.9,
		}})
		if err != nil {
			t.Fatal(err)
		}
		if want, have := uint256.NewInt(100), fee.Amount; !want.Eq(have) {
			t.Errorf("fee: want %s, have %s", want, have)
		}
		if want, have := testCOW, fee.Token; want != have {
			t.Errorf("fee token: want %s, have %s", want, have)
		}
	})

	t.Run("VolumeCap", func(t *testing.T) {
		// Surplus 50 would allow a fee of 25, but 1% of the executed
		// volume of 100 caps it at 1.
		trade := newTestTrade(auction.SideSell, 100, 100, 50, TradePrices{
			Uniform: clearing(1, 1),
			Custom:  clearing(1, 1),
		})

		fee, err := trade.ProtocolFee([]auction.Policy{{
			Kind:            auction.PolicySurplus,
			Factor:          0.5,
			MaxVolumeFactor: 0.01,
		}})
		if err != nil {
			t.Fatal(err)
		}
		if want, have := uint256.NewInt(1), fee.Amount; !want.Eq(have) {
			t.Errorf("fee: want %s, have %s", want, have)
		}
	})

	t.Run("MultiplePolicies", func(t *testing.T) {
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(3, 1),
		})

		policy := auction.Policy{Kind: auction.PolicySurplus, Factor: 0.5, MaxVolumeFactor: 0.9}
		_, err := trade.ProtocolFee([]auction.Policy{policy, policy})
		if want, have := ErrMultiplePolicies, err; !errors.Is(have, want) {
			t.Errorf("error: want %v, have %v", want, have)
		}
	})

	t.Run("UnsupportedKinds", func(t *testing.T) {
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(3, 1),
		})

		for _, kind := range []auction.PolicyKind{
			auction.PolicyPriceImprovement,
			auction.PolicyVolume,
			auction.PolicyKind("bogus"),
		} {
			_, err := trade.ProtocolFee([]auction.Policy{{Kind: kind}})
			if want, have := ErrUnsupportedPolicy, err; !errors.Is(have, want) {
				t.Errorf("kind %s: want %v, have %v", kind, want, have)
			}
		}
	})
}

func TestTradeScore(t *testing.T) {
	// 1 buy token = 1 wei keeps the native normalization transparent.
	prices := auction.Prices{
		testCOW: eth.MustPrice(eth.Exp10(18)),
	}

	t.Run("SurplusOnly", func(t *testing.T) {
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(3, 1),
		})

		score, err := trade.Score(prices, nil)
		if err != nil {
			t.Fatal(err)
		}
		if want, have := uint256.NewInt(100), score; !want.Eq(have) {
			t.Errorf("score: want %s, have %s", want, have)
		}
	})

	t.Run("SurplusPlusProtocolFee", func(t *testing.T) {
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(3, 1),
		})

		score, err := trade.Score(prices, []auction.Policy{{
			Kind:            auction.PolicySurplus,
			Factor:          0.5,
			MaxVolumeFactor: 0.9,
		}})
		if err != nil {
			t.Fatal(err)
		}
		if want, have := uint256.NewInt(200), score; !want.Eq(have) {
			t.Errorf("score: want %s, have %s", want, have)
		}
	})

	t.Run("MissingPrice", func(t *testing.T) {
		trade := newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
			Uniform: clearing(3, 1),
			Custom:  clearing(3, 1),
		})

		_, err := trade.Score(auction.Prices{}, nil)
		if want, have := ErrMissingPrice, err; !errors.Is(have, want) {
			t.Errorf("error: want %v, have %v", want, have)
		}
	})
}

func TestSettlementScoreSumsTrades(t *testing.T) {
	s := &Settlement{
		Trades: []*Trade{
			newTestTrade(auction.SideSell, 100, 100, 200, TradePrices{
				Uniform: clearing(3, 1),
				Custom:  clearing(3, 1),
			}),
			newTestTrade(auction.SideSell, 50, 100, 200, TradePrices{
				Uniform: clearing(3, 1),
				Custom:  clearing(3, 1),
			}),
		},
	}

	prices := auction.Prices{
		testCOW: eth.MustPrice(eth.Exp10(18)),
	}

	score, err := s.Score(prices, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := uint256.NewInt(150), score; !want.Eq(have) {
		t.Errorf("score: want %s, have %s", want, have)
	}
}
