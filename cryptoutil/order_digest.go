package cryptoutil

import (
	"arbiter/auction"
	"arbiter/eth"

	"github.com/ethereum/go-ethereum/crypto"
)

// EIP-712 type hashes for the settlement contract's order struct. Computed
// from the canonical type strings rather than hardcoded so they can't
// silently drift.
var (
	orderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(" +
			"address sellToken," +
			"address buyToken," +
			"address receiver," +
			"uint256 sellAmount," +
			"uint256 buyAmount," +
			"uint32 validTo," +
			"bytes32 appData," +
			"uint256 feeAmount," +
			"string kind," +
			"bool partiallyFillable," +
			"string sellTokenBalance," +
			"string buyTokenBalance)",
	))

	kindSellHash = crypto.Keccak256Hash([]byte("sell"))
	kindBuyHash  = crypto.Keccak256Hash([]byte("buy"))

	balanceErc20Hash    = crypto.Keccak256Hash([]byte("erc20"))
	balanceExternalHash = crypto.Keccak256Hash([]byte("external"))
	balanceInternalHash = crypto.Keccak256Hash([]byte("internal"))
)

// GPv2Order is the raw order data as encoded in settlement calldata, the
// exact fields that go into the EIP-712 struct hash.
type GPv2Order struct {
	SellToken         eth.Address
	BuyToken          eth.Address
	Receiver          eth.Address
	SellAmount        *eth.U256
	BuyAmount         *eth.U256
	ValidTo           uint32
	AppData           eth.Hash
	FeeAmount         *eth.U256
	Kind              auction.Side
	PartiallyFillable bool
	SellTokenBalance  auction.SellTokenBalance
	BuyTokenBalance   auction.BuyTokenDestination
}

// OrderDigest computes the EIP-712 signing digest of an order under the
// given domain separator: keccak256(0x19 0x01 ‖ separator ‖ structHash).
func OrderDigest(sep eth.DomainSeparator, o GPv2Order) eth.Hash {
	// abi.encode of a struct with only static members is a flat sequence
	// of 32-byte words.
	enc := make([]byte, 0, 13*32)
	enc = append(enc, orderTypeHash[:]...)
	enc = appendAddress(enc, o.SellToken)
	enc = appendAddress(enc, o.BuyToken)
	enc = appendAddress(enc, o.Receiver)
	enc = appendU256(enc, o.SellAmount)
	enc = appendU256(enc, o.BuyAmount)
	enc = appendUint32(enc, o.ValidTo)
	enc = append(enc, o.AppData[:]...)
	enc = appendU256(enc, o.FeeAmount)
	enc = append(enc, kindHash(o.Kind)...)
	enc = appendBool(enc, o.PartiallyFillable)
	enc = append(enc, sellBalanceHash(o.SellTokenBalance)...)
	enc = append(enc, buyBalanceHash(o.BuyTokenBalance)...)

	structHash := crypto.Keccak256(enc)

	msg := make([]byte, 0, 2+32+32)
	msg = append(msg, 0x19, 0x01)
	msg = append(msg, sep[:]...)
	msg = append(msg, structHash...)
	return crypto.Keccak256Hash(msg)
}

func kindHash(side auction.Side) []byte {
	switch side {
	case auction.SideBuy:
		return kindBuyHash[:]
	default:
		return kindSellHash[:]
	}
}

func sellBalanceHash(b auction.SellTokenBalance) []byte {
	switch b {
	case auction.SellBalanceExternal:
		return balanceExternalHash[:]
	case auction.SellBalanceInternal:
		return balanceInternalHash[:]
	default:
		return balanceErc20Hash[:]
	}
}

func buyBalanceHash(b auction.BuyTokenDestination) []byte {
	switch b {
	case auction.BuyDestinationInternal:
		return balanceInternalHash[:]
	default:
		return balanceErc20Hash[:]
	}
}

func appendAddress(b []byte, a eth.Address) []byte {
	var word [32]byte
	copy(word[12:], a[:])
	return append(b, word[:]...)
}

func appendU256(b []byte, v *eth.U256) []byte {
	word := v.Bytes32()
	return append(b, word[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var word [32]byte
	word[28] = byte(v >> 24)
	word[29] = byte(v >> 16)
	word[30] = byte(v >> 8)
	word[31] = byte(v)
	return append(b, word[:]...)
}

func appendBool(b []byte, v bool) []byte {
	var word [32]byte
	if v {
		word[31] = 1
	}
	return append(b, word[:]...)
}
