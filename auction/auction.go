package auction

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"arbiter/eth"
)

// OrderUid uniquely identifies an order: the 32-byte EIP-712 order digest,
// followed by the 20-byte owner address, followed by the 4-byte big-endian
// valid-to timestamp.
type OrderUid [56]byte

func MakeOrderUid(digest eth.Hash, owner eth.Address, validTo uint32) OrderUid {
	var uid OrderUid
	copy(uid[0:32], digest[:])
	copy(uid[32:52], owner[:])
	binary.BigEndian.PutUint32(uid[52:56], validTo)
	return uid
}

func ParseOrderUid(s string) (OrderUid, error) {
	var uid OrderUid
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return uid, fmt.Errorf("order uid: %w", err)
	}
	if len(b) != len(uid) {
		return uid, fmt.Errorf("order uid: want %d bytes, have %d", len(uid), len(b))
	}
	copy(uid[:], b)
	return uid, nil
}

func (u OrderUid) Digest() eth.Hash {
	return eth.Hash(u[0:32])
}

func (u OrderUid) Owner() eth.Address {
	return eth.Address(u[32:52])
}

func (u OrderUid) ValidTo() uint32 {
	return binary.BigEndian.Uint32(u[52:56])
}

func (u OrderUid) String() string {
	return "0x" + hex.EncodeToString(u[:])
}

//
//
//

type Side string

const (
	SideSell Side = "sell"
	SideBuy  Side = "buy"
)

func ParseSide(s string) Side {
	switch strings.ToLower(s) {
	case string(SideBuy):
		return SideBuy
	default:
		return SideSell
	}
}

type SigningScheme string

const (
	SchemeEip712  SigningScheme = "eip712"
	SchemeEthSign SigningScheme = "ethsign"
	SchemeEip1271 SigningScheme = "eip1271"
	SchemePreSign SigningScheme = "presign"
)

type SellTokenBalance string

const (
	SellBalanceErc20    SellTokenBalance = "erc20"
	SellBalanceExternal SellTokenBalance = "external"
	SellBalanceInternal SellTokenBalance = "internal"
)

type BuyTokenDestination string

const (
	BuyDestinationErc20    BuyTokenDestination = "erc20"
	BuyDestinationInternal BuyTokenDestination = "internal"
)

//
//
//

type PolicyKind string

const (
	PolicySurplus          PolicyKind = "surplus"
	PolicyPriceImprovement PolicyKind = "priceimprovement"
	PolicyVolume           PolicyKind = "volume"
)

func ParsePolicyKind(s string) PolicyKind {
	switch strings.ToLower(s) {
	case string(PolicyPriceImprovement):
		return PolicyPriceImprovement
	case string(PolicyVolume):
		return PolicyVolume
	default:
		return PolicySurplus
	}
}

// Policy is a protocol fee policy attached to an order for one auction.
// Factors are fractions in [0, 1). Quote is only set for price improvement
// policies.
type Policy struct {
	Kind            PolicyKind
	Factor          float64
	MaxVolumeFactor float64
	Quote           *Quote
}

// Quote is the amounts quoted to the user before order placement, used as
// the baseline for price improvement fees.
type Quote struct {
	SellAmount *eth.U256
	BuyAmount  *eth.U256
	Fee        *eth.U256
	Solver     eth.Address
}

//
//
//

// Order is the immutable identity of a user order as signed by its owner.
type Order struct {
	Uid               OrderUid
	Sell              eth.Asset
	Buy               eth.Asset
	Side              Side
	Receiver          eth.Address
	ValidTo           uint32
	AppData           eth.Hash
	PartiallyFillable bool
	Signature         Signature
}

type Signature struct {
	Scheme SigningScheme
	Data   []byte
}

// Prices are externally-determined native token prices per token, used to
// normalize surplus and fees into a common unit.
type Prices map[eth.TokenAddress]eth.Price
