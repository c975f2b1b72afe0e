package settlement

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"strings"

	"arbiter/auction"
	"arbiter/cryptoutil"
	"arbiter/eth"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// settleABI is the settlement contract's settle function. The canonical
// signature hashes to the 0x13d79a0b selector.
var settleABI = func() abi.ABI {
	const def = `[{
		"name": "settle",
		"type": "function",
		"inputs": [
			{"name": "tokens", "type": "address[]"},
			{"name": "clearingPrices", "type": "uint256[]"},
			{"name": "trades", "type": "tuple[]", "components": [
				{"name": "sellTokenIndex", "type": "uint256"},
				{"name": "buyTokenIndex", "type": "uint256"},
				{"name": "receiver", "type": "address"},
				{"name": "sellAmount", "type": "uint256"},
				{"name": "buyAmount", "type": "uint256"},
				{"name": "validTo", "type": "uint32"},
				{"name": "appData", "type": "bytes32"},
				{"name": "feeAmount", "type": "uint256"},
				{"name": "flags", "type": "uint256"},
				{"name": "executedAmount", "type": "uint256"},
				{"name": "signature", "type": "bytes"}
			]},
			{"name": "interactions", "type": "tuple[][3]", "components": [
				{"name": "target", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "callData", "type": "bytes"}
			]}
		]
	}]`
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// tradeData mirrors the trades tuple layout for abi.ConvertType.
type tradeData struct {
	SellTokenIndex *big.Int
	BuyTokenIndex  *big.Int
	Receiver       common.Address
	SellAmount     *big.Int
	BuyAmount      *big.Int
	ValidTo        uint32
	AppData        [32]byte
	FeeAmount      *big.Int
	Flags          *big.Int
	ExecutedAmount *big.Int
	Signature      []byte
}

// metadataLen is the number of bytes appended to settle calldata carrying
// the auction id, big-endian.
const metadataLen = 8

// Decode parses settle calldata into a Settlement. It is a pure function:
// no RPC, no side effects. Calldata with the wrong selector is a
// wrong-environment error; structurally broken calldata is inconsistent
// data.
func Decode(input []byte, sep eth.DomainSeparator) (*Settlement, error) {
	method := settleABI.Methods["settle"]

	if len(input) < len(method.ID) || !bytes.Equal(input[:len(method.ID)], method.ID) {
		return nil, wrongEnvErr("calldata does not call settle")
	}
	data := input[len(method.ID):]

	if len(data) < metadataLen {
		return nil, inconsistentErr("calldata too short for auction id")
	}
	data, metadata := data[:len(data)-metadataLen], data[len(data)-metadataLen:]
	auctionID := int64(binary.BigEndian.Uint64(metadata))

	out, err := method.Inputs.Unpack(data)
	if err != nil {
		return nil, inconsistentErr("unpack settle calldata: %w", err)
	}

	var (
		tokens = *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
		prices = *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int)
		raw    = *abi.ConvertType(out[2], new([]tradeData)).(*[]tradeData)
	)

	if len(tokens) != len(prices) {
		return nil, inconsistentErr("tokens/prices length mismatch: %d != %d", len(tokens), len(prices))
	}

	trades := make([]*Trade, 0, len(raw))
	for i, td := range raw {
		trade, err := decodeTrade(td, tokens, prices, sep)
		if err != nil {
			return nil, inconsistentErr("trade %d: %w", i, err)
		}
		trades = append(trades, trade)
	}

	return &Settlement{
		AuctionID: auctionID,
		Trades:    trades,
	}, nil
}

func decodeTrade(td tradeData, tokens []common.Address, prices []*big.Int, sep eth.DomainSeparator) (*Trade, error) {
	sellIndex, buyIndex := int(td.SellTokenIndex.Int64()), int(td.BuyTokenIndex.Int64())
	if sellIndex < 0 || sellIndex >= len(tokens) || buyIndex < 0 || buyIndex >= len(tokens) {
		return nil, inconsistentErr("token index out of range: sell %d, buy %d, tokens %d", sellIndex, buyIndex, len(tokens))
	}

	var (
		sellToken = tokens[sellIndex]
		buyToken  = tokens[buyIndex]
		flags     = parseTradeFlags(td.Flags)
	)

	// The uniform clearing price of a token is the price at its first
	// occurrence in the tokens vector. The trade's own indices may point
	// at later, fee-adjusted duplicates: those are the custom prices.
	uniformSellIndex := firstIndex(tokens, sellToken)
	uniformBuyIndex := firstIndex(tokens, buyToken)

	order := cryptoutil.GPv2Order{
		SellToken:         sellToken,
		BuyToken:          buyToken,
		Receiver:          td.Receiver,
		SellAmount:        mustU256(td.SellAmount),
		BuyAmount:         mustU256(td.BuyAmount),
		ValidTo:           td.ValidTo,
		AppData:           td.AppData,
		FeeAmount:         mustU256(td.FeeAmount),
		Kind:              flags.side,
		PartiallyFillable: flags.partiallyFillable,
		SellTokenBalance:  flags.sellTokenBalance,
		BuyTokenBalance:   flags.buyTokenBalance,
	}

	digest := cryptoutil.OrderDigest(sep, order)

	owner, err := recoverOwner(digest, flags.scheme, td.Signature)
	if err != nil {
		return nil, err
	}

	return &Trade{
		OrderUid: auction.MakeOrderUid(digest, owner, td.ValidTo),
		Owner:    owner,

		Sell:     eth.Asset{Token: sellToken, Amount: mustU256(td.SellAmount)},
		Buy:      eth.Asset{Token: buyToken, Amount: mustU256(td.BuyAmount)},
		Side:     flags.side,
		Receiver: td.Receiver,
		ValidTo:  td.ValidTo,
		AppData:  td.AppData,
		FeeAmnt:  mustU256(td.FeeAmount),

		PartiallyFillable: flags.partiallyFillable,
		SellTokenBalance:  flags.sellTokenBalance,
		BuyTokenBalance:   flags.buyTokenBalance,
		Scheme:            flags.scheme,

		Executed: mustU256(td.ExecutedAmount),
		Prices: TradePrices{
			Uniform: ClearingPrices{
				Sell: mustU256(prices[uniformSellIndex]),
				Buy:  mustU256(prices[uniformBuyIndex]),
			},
			Custom: ClearingPrices{
				Sell: mustU256(prices[sellIndex]),
				Buy:  mustU256(prices[buyIndex]),
			},
		},
	}, nil
}

// recoverOwner derives the order owner from its signature. ECDSA schemes
// recover it cryptographically; eip1271 and presign encode the owner
// directly in the signature bytes.
func recoverOwner(digest eth.Hash, scheme auction.SigningScheme, sig []byte) (eth.Address, error) {
	switch scheme {
	case auction.SchemeEip712:
		owner, err := cryptoutil.RecoverSigner(digest, sig)
		if err != nil {
			return eth.Address{}, inconsistentErr("recover eip712 signer: %w", err)
		}
		return owner, nil
	case auction.SchemeEthSign:
		owner, err := cryptoutil.RecoverSigner(cryptoutil.EthSignDigest(digest), sig)
		if err != nil {
			return eth.Address{}, inconsistentErr("recover ethsign signer: %w", err)
		}
		return owner, nil
	case auction.SchemeEip1271, auction.SchemePreSign:
		if len(sig) < common.AddressLength {
			return eth.Address{}, inconsistentErr("%s signature too short for owner: %d bytes", scheme, len(sig))
		}
		return common.BytesToAddress(sig[:common.AddressLength]), nil
	default:
		return eth.Address{}, inconsistentErr("unknown signing scheme %q", scheme)
	}
}

//
//
//

// tradeFlags unpacks the flags word of an encoded trade. Bit 0 is the
// order kind, bit 1 partial fillability, bits 2-3 the sell token balance,
// bit 4 the buy token destination, and bits 5-6 the signing scheme.
type tradeFlags struct {
	side              auction.Side
	partiallyFillable bool
	sellTokenBalance  auction.SellTokenBalance
	buyTokenBalance   auction.BuyTokenDestination
	scheme            auction.SigningScheme
}

func parseTradeFlags(flags *big.Int) tradeFlags {
	var f tradeFlags
	b := byte(flags.Uint64())

	if b&0b1 == 0 {
		f.side = auction.SideSell
	} else {
		f.side = auction.SideBuy
	}

	f.partiallyFillable = b&0b10 != 0

	switch {
	case b&0x08 == 0:
		f.sellTokenBalance = auction.SellBalanceErc20
	case b&0x04 == 0:
		f.sellTokenBalance = auction.SellBalanceExternal
	default:
		f.sellTokenBalance = auction.SellBalanceInternal
	}

	if b&0x10 == 0 {
		f.buyTokenBalance = auction.BuyDestinationErc20
	} else {
		f.buyTokenBalance = auction.BuyDestinationInternal
	}

	switch (b >> 5) & 0b11 {
	case 0b00:
		f.scheme = auction.SchemeEip712
	case 0b01:
		f.scheme = auction.SchemeEthSign
	case 0b10:
		f.scheme = auction.SchemeEip1271
	default:
		f.scheme = auction.SchemePreSign
	}

	return f
}

func firstIndex(tokens []common.Address, token common.Address) int {
	for i, t := range tokens {
		if t == token {
			return i
		}
	}
	return -1 // unreachable: token came from the slice
}

func mustU256(b *big.Int) *eth.U256 {
	v, _ := uint256.FromBig(b)
	return v
}
