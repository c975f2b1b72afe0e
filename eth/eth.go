package eth

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type (
	Address      = common.Address
	TokenAddress = common.Address
	Hash         = common.Hash
	U256         = uint256.Int
)

// DomainSeparator is the EIP-712 domain separator of the settlement
// contract, mixed into every order digest.
type DomainSeparator [32]byte

func ParseDomainSeparator(s string) (DomainSeparator, error) {
	b, err := parseHex32(s)
	if err != nil {
		return DomainSeparator{}, fmt.Errorf("domain separator: %w", err)
	}
	return DomainSeparator(b), nil
}

func (d DomainSeparator) String() string {
	return fmt.Sprintf("%x", d[:])
}

func parseHex32(s string) ([32]byte, error) {
	var b [32]byte
	h := common.FromHex(s)
	if len(h) != 32 {
		return b, fmt.Errorf("want 32 bytes, have %d", len(h))
	}
	copy(b[:], h)
	return b, nil
}

// Asset is an amount of a specific ERC-20 token.
type Asset struct {
	Token  TokenAddress
	Amount *U256
}

//
//
//

var ErrZeroPrice = errors.New("zero price")

// Price converts amounts of some token into amounts of the native token.
// The conversion is amount * price / 1e18.
type Price struct {
	val *U256
}

func NewPrice(val *U256) (Price, error) {
	if val == nil || val.IsZero() {
		return Price{}, ErrZeroPrice
	}
	return Price{val: val.Clone()}, nil
}

func MustPrice(val *U256) Price {
	p, err := NewPrice(val)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Price) Get() *U256 {
	return p.val.Clone()
}

// InEth converts a token amount to its native token value. The multiply
// saturates rather than failing, matching how scores are accumulated.
func (p Price) InEth(amount *U256) *U256 {
	product, overflow := new(U256).MulOverflow(amount, p.val)
	if overflow {
		product.SetAllOne()
	}
	return product.Div(product, Exp10(18))
}

// Exp10 returns 10^n.
func Exp10(n int) *U256 {
	x := uint256.NewInt(10)
	return x.Exp(x, uint256.NewInt(uint64(n)))
}
