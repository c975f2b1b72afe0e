package settlement

import (
	"fmt"

	"arbiter/auction"
	"arbiter/eth"
)

// Economic outcomes of a single trade. All functions operate on U256 with
// checked arithmetic; an undefined result (overflow, zero price, negative
// surplus) is reported as ok=false, which callers must treat as "not
// computable" rather than a failure.

// SurplusBeforeFee is the surplus under uniform clearing prices, before
// any fees are taken. Denominated in the surplus token.
func (t *Trade) SurplusBeforeFee() (eth.Asset, bool) {
	return t.surplusOver(t.Prices.Uniform)
}

// Surplus is the surplus under custom clearing prices, after all fees.
// Denominated in the surplus token.
func (t *Trade) Surplus() (eth.Asset, bool) {
	return t.surplusOver(t.Prices.Custom)
}

func (t *Trade) surplusOver(prices ClearingPrices) (eth.Asset, bool) {
	surplus, ok := surplusOver(t.Side, t.Executed, t.Sell.Amount, t.Buy.Amount, prices)
	if !ok {
		return eth.Asset{}, false
	}
	return eth.Asset{Token: t.SurplusToken(), Amount: surplus}, true
}

// surplusOver compares what the trade actually moved at the given
// clearing prices against the order's limit. The executed amount is the
// sell amount for sell orders and the buy amount for buy orders; limits
// are scaled by the executed amount to support partial fills.
func surplusOver(side auction.Side, executed, limitSell, limitBuy *eth.U256, prices ClearingPrices) (*eth.U256, bool) {
	switch side {
	case auction.SideBuy:
		// Surplus is how much less was sold than the limit allows.
		scaledLimitSell, ok := checkedMulDiv(limitSell, executed, limitBuy)
		if !ok {
			return nil, false
		}
		sold, ok := checkedMulDiv(executed, prices.Buy, prices.Sell)
		if !ok {
			return nil, false
		}
		return eth.CheckedSub(scaledLimitSell, sold)

	default: // sell
		// Surplus is how much more was bought than the limit requires.
		// Ceiling division matches how the settlement contract computes
		// minimum buy amounts.
		scaledLimitBuy, ok := checkedMulCeilDiv(executed, limitBuy, limitSell)
		if !ok {
			return nil, false
		}
		bought, ok := checkedMulCeilDiv(executed, prices.Sell, prices.Buy)
		if !ok {
			return nil, false
		}
		return eth.CheckedSub(bought, scaledLimitBuy)
	}
}

// Fee is the difference between the surplus before and after fees,
// clamped at zero. Denominated in the surplus token.
func (t *Trade) Fee() (eth.Asset, bool) {
	before, ok := t.SurplusBeforeFee()
	if !ok {
		return eth.Asset{}, false
	}
	after, ok := t.Surplus()
	if !ok {
		return eth.Asset{}, false
	}
	return eth.Asset{
		Token:  before.Token,
		Amount: eth.SaturatingSub(before.Amount, after.Amount),
	}, true
}

// FeeInSellToken converts the fee into sell token units. For buy orders
// the surplus token already is the sell token; for sell orders the fee is
// rescaled by the uniform buy/sell price ratio, since solvers express fees
// in terms of uniform clearing prices.
func (t *Trade) FeeInSellToken() (eth.Asset, bool) {
	fee, ok := t.Fee()
	if !ok {
		return eth.Asset{}, false
	}

	switch t.Side {
	case auction.SideBuy:
		return fee, true
	default:
		ratio, err := eth.NewRatio(t.Prices.Uniform.Buy, t.Prices.Uniform.Sell)
		if err != nil {
			return eth.Asset{}, false
		}
		amount, ok := ratio.Apply(fee.Amount)
		if !ok {
			return eth.Asset{}, false
		}
		return eth.Asset{Token: t.Sell.Token, Amount: amount}, true
	}
}

// ProtocolFee is the share of the surplus captured by the protocol, as
// defined by the fee policies attached to the order for this auction.
// Exactly one policy per order is supported. Denominated in the surplus
// token.
func (t *Trade) ProtocolFee(policies []auction.Policy) (eth.Asset, error) {
	if len(policies) > 1 {
		return eth.Asset{}, ErrMultiplePolicies
	}
	if len(policies) == 0 {
		return eth.Asset{Token: t.SurplusToken(), Amount: new(eth.U256)}, nil
	}

	policy := policies[0]
	switch policy.Kind {
	case auction.PolicySurplus:
		amount, err := t.surplusPolicyFee(policy)
		if err != nil {
			return eth.Asset{}, err
		}
		return eth.Asset{Token: t.SurplusToken(), Amount: amount}, nil

	case auction.PolicyPriceImprovement, auction.PolicyVolume:
		// Pending a specified formula; an explicit error beats a wrong
		// number for anything touching money.
		return eth.Asset{}, fmt.Errorf("%w: %s", ErrUnsupportedPolicy, policy.Kind)

	default:
		return eth.Asset{}, fmt.Errorf("%w: unknown kind %q", ErrUnsupportedPolicy, policy.Kind)
	}
}

// surplusPolicyFee bounds the protocol fee both by a fraction of the
// surplus and by a fraction of the executed volume.
func (t *Trade) surplusPolicyFee(policy auction.Policy) (*eth.U256, error) {
	surplus, ok := t.Surplus()
	if !ok {
		return nil, fmt.Errorf("%w: surplus for sell %s buy %s", ErrNotComputable, t.Sell.Token, t.Buy.Token)
	}

	// The observed surplus already has the protocol fee taken out of it:
	// if the remaining surplus is X, the fee is X * factor / (1 - factor).
	fromSurplus, ok := eth.ApplyFactor(surplus.Amount, policy.Factor/(1-policy.Factor))
	if !ok {
		return nil, fmt.Errorf("%w: factor %v on surplus", ErrNotComputable, policy.Factor)
	}

	executed, ok := t.executedInSurplusToken()
	if !ok {
		return nil, fmt.Errorf("%w: executed amount in surplus token", ErrNotComputable)
	}

	// The volume cap is expressed against the pre-fee volume, so the
	// factor needs the same kind of adjustment, with the sign depending on
	// which side the fee was taken from.
	var volumeFactor float64
	switch t.Side {
	case auction.SideSell:
		volumeFactor = policy.MaxVolumeFactor / (1 - policy.MaxVolumeFactor)
	default:
		volumeFactor = policy.MaxVolumeFactor / (1 + policy.MaxVolumeFactor)
	}
	fromVolume, ok := eth.ApplyFactor(executed, volumeFactor)
	if !ok {
		return nil, fmt.Errorf("%w: max volume factor %v", ErrNotComputable, policy.MaxVolumeFactor)
	}

	if fromSurplus.Cmp(fromVolume) < 0 {
		return fromSurplus, nil
	}
	return fromVolume, nil
}

func (t *Trade) executedInSurplusToken() (*eth.U256, bool) {
	switch t.Side {
	case auction.SideSell:
		return checkedMulDiv(t.Executed, t.Prices.Custom.Sell, t.Prices.Custom.Buy)
	default:
		return checkedMulDiv(t.Executed, t.Prices.Custom.Buy, t.Prices.Custom.Sell)
	}
}

// SurplusToken is the token surplus is denominated in: the buy token for
// sell orders, the sell token for buy orders.
func (t *Trade) SurplusToken() eth.TokenAddress {
	switch t.Side {
	case auction.SideBuy:
		return t.Sell.Token
	default:
		return t.Buy.Token
	}
}

// Score is the trade's contribution to the settlement score: surplus plus
// protocol fee, both normalized to the native token via the auction's
// external prices.
func (t *Trade) Score(prices auction.Prices, policies []auction.Policy) (*eth.U256, error) {
	price, ok := prices[t.SurplusToken()]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", ErrMissingPrice, t.SurplusToken())
	}

	surplus, sok := t.Surplus()
	if !sok {
		return nil, fmt.Errorf("%w: surplus for sell %s buy %s", ErrNotComputable, t.Sell.Token, t.Buy.Token)
	}

	protocolFee, err := t.ProtocolFee(policies)
	if err != nil {
		return nil, err
	}

	return eth.SaturatingAdd(
		price.InEth(surplus.Amount),
		price.InEth(protocolFee.Amount),
	), nil
}

//
//
//

func checkedMulDiv(a, b, c *eth.U256) (*eth.U256, bool) {
	product, ok := eth.CheckedMul(a, b)
	if !ok {
		return nil, false
	}
	return eth.CheckedDiv(product, c)
}

func checkedMulCeilDiv(a, b, c *eth.U256) (*eth.U256, bool) {
	product, ok := eth.CheckedMul(a, b)
	if !ok {
		return nil, false
	}
	return eth.CheckedCeilDiv(product, c)
}
