package eth

import (
	"math"

	"github.com/holiman/uint256"
)

// Checked arithmetic over U256 amounts. Every operation that could
// overflow, underflow, or divide by zero reports ok=false instead of
// wrapping. Callers must treat ok=false as "not computable", not a bug.

func CheckedAdd(a, b *U256) (*U256, bool) {
	sum, overflow := new(U256).AddOverflow(a, b)
	if overflow {
		return nil, false
	}
	return sum, true
}

func CheckedSub(a, b *U256) (*U256, bool) {
	diff, underflow := new(U256).SubOverflow(a, b)
	if underflow {
		return nil, false
	}
	return diff, true
}

func CheckedMul(a, b *U256) (*U256, bool) {
	product, overflow := new(U256).MulOverflow(a, b)
	if overflow {
		return nil, false
	}
	return product, true
}

func CheckedDiv(a, b *U256) (*U256, bool) {
	if b.IsZero() {
		return nil, false
	}
	return new(U256).Div(a, b), true
}

// CheckedCeilDiv rounds the quotient up. The settlement contract computes
// minimum buy amounts this way, so sell-side surplus must match.
func CheckedCeilDiv(a, b *U256) (*U256, bool) {
	if b.IsZero() {
		return nil, false
	}
	var q, r U256
	q.DivMod(a, b, &r)
	if !r.IsZero() {
		q.AddUint64(&q, 1)
	}
	return &q, true
}

func SaturatingAdd(a, b *U256) *U256 {
	sum, overflow := new(U256).AddOverflow(a, b)
	if overflow {
		sum.SetAllOne()
	}
	return sum
}

func SaturatingSub(a, b *U256) *U256 {
	diff, underflow := new(U256).SubOverflow(a, b)
	if underflow {
		diff.Clear()
	}
	return diff
}

// applyFactorScale is the fixed-point scale used when multiplying an
// amount by a float factor: 10 decimal digits keeps enough precision for
// fee fractions without pushing typical token amounts near 2^256.
const applyFactorScale = 1e10

// ApplyFactor scales amount by a float factor using 10-digit fixed-point
// arithmetic: amount * round(factor * 1e10) / 1e10.
func ApplyFactor(amount *U256, factor float64) (*U256, bool) {
	if factor < 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, false
	}
	scaled := uint256.NewInt(uint64(factor * applyFactorScale))
	product, ok := CheckedMul(amount, scaled)
	if !ok {
		return nil, false
	}
	return product.Div(product, uint256.NewInt(uint64(applyFactorScale))), true
}
