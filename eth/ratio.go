package eth

import "errors"

var (
	ErrZeroDenominator = errors.New("zero denominator")
	ErrRatioOverflow   = errors.New("ratio overflow")
)

// ratioScale is the precision headroom a ratio's numerator must leave for
// intermediate products.
var ratioScale = Exp10(18)

// Ratio is a validated numerator/denominator scaling parameter.
// Degenerate values are rejected at construction, with distinct errors
// for a zero denominator and a numerator too large to multiply under.
type Ratio struct {
	num *U256
	den *U256
}

func NewRatio(num, den *U256) (Ratio, error) {
	if den == nil || den.IsZero() {
		return Ratio{}, ErrZeroDenominator
	}
	if _, ok := CheckedMul(num, ratioScale); !ok {
		return Ratio{}, ErrRatioOverflow
	}
	return Ratio{num: num.Clone(), den: den.Clone()}, nil
}

// Apply scales the amount by the ratio, carrying the intermediate product
// at full width. Overflow reports ok=false.
func (r Ratio) Apply(amount *U256) (*U256, bool) {
	product, ok := CheckedMul(amount, r.num)
	if !ok {
		return nil, false
	}
	return CheckedDiv(product, r.den)
}
