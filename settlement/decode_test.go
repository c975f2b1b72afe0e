package settlement

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	"arbiter/auction"
	"arbiter/cryptoutil"
	"arbiter/eth"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	testSeparator = eth.DomainSeparator(common.HexToHash("0xc078f884a2676e1345748b1feace7b0abee5d00ecadb6e574dcdd109a63e8943"))

	testWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testCOW  = common.HexToAddress("0xDEf1CA1fb7FBcDC777520aa7f396b4E015F497aB")
)

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := crypto.ToECDSA(common.FromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"))
	if err != nil {
		t.Fatal(err)
	}
	return key
}

type interactionData struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// packSettle builds settle calldata the way a solver would: the 4-byte
// selector, the abi-encoded arguments, and the auction id appended as
// 8 big-endian metadata bytes.
func packSettle(t *testing.T, auctionID int64, tokens []common.Address, prices []*big.Int, trades []tradeData) []byte {
	t.Helper()

	method := settleABI.Methods["settle"]

	var interactions [3][]interactionData
	args, err := method.Inputs.Pack(tokens, prices, trades, interactions)
	if err != nil {
		t.Fatalf("pack settle args: %v", err)
	}

	data := append([]byte{}, method.ID...)
	data = append(data, args...)

	var metadata [metadataLen]byte
	binary.BigEndian.PutUint64(metadata[:], uint64(auctionID))
	return append(data, metadata[:]...)
}

// signTrade produces the eip712 signature bytes for the trade's order.
func signTrade(t *testing.T, key *ecdsa.PrivateKey, order cryptoutil.GPv2Order) []byte {
	t.Helper()

	digest := cryptoutil.OrderDigest(testSeparator, order)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatal(err)
	}
	return sig
}

func TestDecodeDirectSwap(t *testing.T) {
	// A single fully-executed sell of WETH into COW at the observed
	// mainnet clearing prices.
	var (
		key   = testKey(t)
		owner = crypto.PubkeyToAddress(key.PublicKey)

		sellAmount = new(big.Int).SetUint64(133700000000000000)
		buyAmount  = new(big.Int).SetUint64(6000000000000000000)

		wethPrice, _ = new(big.Int).SetString("6043910341261930467761", 10)
		cowPrice     = new(big.Int).SetUint64(133700000000000000)

		order = cryptoutil.GPv2Order{
			SellToken:        testWETH,
			BuyToken:         testCOW,
			Receiver:         common.Address{},
			SellAmount:       uint256.MustFromBig(sellAmount),
			BuyAmount:        uint256.MustFromBig(buyAmount),
			ValidTo:          1693994400,
			AppData:          common.HexToHash("0x0ddeb6e4a814908832cc25d11311c514e7efe6af3c9bafeb0d241129cf7f4d83"),
			FeeAmount:        uint256.NewInt(0),
			Kind:             auction.SideSell,
			SellTokenBalance: auction.SellBalanceErc20,
			BuyTokenBalance:  auction.BuyDestinationErc20,
		}
	)

	input := packSettle(t, 1234, []common.Address{testWETH, testCOW}, []*big.Int{wethPrice, cowPrice}, []tradeData{{
		SellTokenIndex: big.NewInt(0),
		BuyTokenIndex:  big.NewInt(1),
		Receiver:       order.Receiver,
		SellAmount:     sellAmount,
		BuyAmount:      buyAmount,
		ValidTo:        order.ValidTo,
		AppData:        order.AppData,
		FeeAmount:      big.NewInt(0),
		Flags:          big.NewInt(0), // sell, fill-or-kill, erc20 balances, eip712
		ExecutedAmount: sellAmount,
		Signature:      signTrade(t, key, order),
	}})

	s, err := Decode(input, testSeparator)
	if err != nil {
		t.Fatal(err)
	}

	if want, have := int64(1234), s.AuctionID; want != have {
		t.Errorf("auction id: want %d, have %d", want, have)
	}
	if want, have := 1, len(s.Trades); want != have {
		t.Fatalf("trade count: want %d, have %d", want, have)
	}

	trade := s.Trades[0]

	if want, have := owner, trade.Owner; want != have {
		t.Errorf("owner: want %s, have %s", want, have)
	}
	if want, have := auction.SideSell, trade.Side; want != have {
		t.Errorf("side: want %s, have %s", want, have)
	}
	if want, have := auction.SchemeEip712, trade.Scheme; want != have {
		t.Errorf("scheme: want %s, have %s", want, have)
	}

	digest := cryptoutil.OrderDigest(testSeparator, order)
	if want, have := auction.MakeOrderUid(digest, owner, order.ValidTo), trade.OrderUid; want != have {
		t.Errorf("order uid: want %s, have %s", want, have)
	}

	if want, have := uint256.MustFromBig(wethPrice), trade.Prices.Uniform.Sell; !want.Eq(have) {
		t.Errorf("uniform sell price: want %s, have %s", want, have)
	}
	if want, have := uint256.MustFromBig(cowPrice), trade.Prices.Uniform.Buy; !want.Eq(have) {
		t.Errorf("uniform buy price: want %s, have %s", want, have)
	}

	// No duplicate token entries, so custom and uniform prices agree.
	if !trade.Prices.Custom.equal(trade.Prices.Uniform) {
		t.Errorf("custom prices %v should equal uniform prices %v", trade.Prices.Custom, trade.Prices.Uniform)
	}

	if want, have := uint256.MustFromBig(sellAmount), trade.Executed; !want.Eq(have) {
		t.Errorf("executed: want %s, have %s", want, have)
	}
}

func TestDecodeCustomPrices(t *testing.T) {
	// The tokens vector may list a token twice: the first occurrence
	// carries the uniform clearing price, the trade's own index points at
	// the fee-adjusted custom price.
	var (
		key   = testKey(t)
		order = cryptoutil.GPv2Order{
			SellToken:  testWETH,
			BuyToken:   testCOW,
			SellAmount: uint256.NewInt(1000),
			BuyAmount:  uint256.NewInt(2000),
			ValidTo:    1693994400,
			FeeAmount:  uint256.NewInt(0),
			Kind:       auction.SideSell,
		}

		tokens = []common.Address{testWETH, testCOW, testWETH}
		prices = []*big.Int{big.NewInt(200), big.NewInt(100), big.NewInt(190)}
	)

	input := packSettle(t, 1, tokens, prices, []tradeData{{
		SellTokenIndex: big.NewInt(2), // duplicate WETH entry
		BuyTokenIndex:  big.NewInt(1),
		SellAmount:     big.NewInt(1000),
		BuyAmount:      big.NewInt(2000),
		ValidTo:        order.ValidTo,
		FeeAmount:      big.NewInt(0),
		Flags:          big.NewInt(0),
		ExecutedAmount: big.NewInt(1000),
		Signature:      signTrade(t, key, order),
	}})

	s, err := Decode(input, testSeparator)
	if err != nil {
		t.Fatal(err)
	}

	trade := s.Trades[0]

	if want, have := uint256.NewInt(200), trade.Prices.Uniform.Sell; !want.Eq(have) {
		t.Errorf("uniform sell price: want %s, have %s", want, have)
	}
	if want, have := uint256.NewInt(190), trade.Prices.Custom.Sell; !want.Eq(have) {
		t.Errorf("custom sell price: want %s, have %s", want, have)
	}
	if want, have := uint256.NewInt(100), trade.Prices.Custom.Buy; !want.Eq(have) {
		t.Errorf("custom buy price: want %s, have %s", want, have)
	}
}

func TestDecodeWrongSelector(t *testing.T) {
	input := common.FromHex("0xdeadbeef000000000000000000000000")

	_, err := Decode(input, testSeparator)
	if err == nil {
		t.Fatal("decoding foreign calldata should fail")
	}
	if want, have := KindWrongEnvironment, ErrorKind(err); want != have {
		t.Errorf("error kind: want %s, have %s", want, have)
	}
}

func TestDecodeTruncatedCalldata(t *testing.T) {
	method := settleABI.Methods["settle"]

	_, err := Decode(method.ID, testSeparator)
	if err == nil {
		t.Fatal("decoding truncated calldata should fail")
	}
	if want, have := KindInconsistentData, ErrorKind(err); want != have {
		t.Errorf("error kind: want %s, have %s", want, have)
	}
}

func TestDecodeTokenIndexOutOfRange(t *testing.T) {
	input := packSettle(t, 1,
		[]common.Address{testWETH},
		[]*big.Int{big.NewInt(1)},
		[]tradeData{{
			SellTokenIndex: big.NewInt(5),
			BuyTokenIndex:  big.NewInt(0),
			SellAmount:     big.NewInt(1),
			BuyAmount:      big.NewInt(1),
			FeeAmount:      big.NewInt(0),
			Flags:          big.NewInt(0),
			ExecutedAmount: big.NewInt(1),
			Signature:      make([]byte, 65),
		}},
	)

	_, err := Decode(input, testSeparator)
	if err == nil {
		t.Fatal("out-of-range token index should fail")
	}
	if want, have := KindInconsistentData, ErrorKind(err); want != have {
		t.Errorf("error kind: want %s, have %s", want, have)
	}
}

func TestParseTradeFlags(t *testing.T) {
	for _, tc := range []struct {
		name  string
		flags int64
		want  tradeFlags
	}{
		{
			name:  "defaults",
			flags: 0b0000000,
			want:  tradeFlags{auction.SideSell, false, auction.SellBalanceErc20, auction.BuyDestinationErc20, auction.SchemeEip712},
		},
		{
			name:  "partially fillable buy",
			flags: 0b0000011,
			want:  tradeFlags{auction.SideBuy, true, auction.SellBalanceErc20, auction.BuyDestinationErc20, auction.SchemeEip712},
		},
		{
			name:  "external sell balance",
			flags: 0b0001000,
			want:  tradeFlags{auction.SideSell, false, auction.SellBalanceExternal, auction.BuyDestinationErc20, auction.SchemeEip712},
		},
		{
			name:  "internal sell balance",
			flags: 0b0001100,
			want:  tradeFlags{auction.SideSell, false, auction.SellBalanceInternal, auction.BuyDestinationErc20, auction.SchemeEip712},
		},
		{
			name:  "internal buy destination",
			flags: 0b0010000,
			want:  tradeFlags{auction.SideSell, false, auction.SellBalanceErc20, auction.BuyDestinationInternal, auction.SchemeEip712},
		},
		{
			name:  "ethsign",
			flags: 0b0100000,
			want:  tradeFlags{auction.SideSell, false, auction.SellBalanceErc20, auction.BuyDestinationErc20, auction.SchemeEthSign},
		},
		{
			name:  "eip1271",
			flags: 0b1000000,
			want:  tradeFlags{auction.SideSell, false, auction.SellBalanceErc20, auction.BuyDestinationErc20, auction.SchemeEip1271},
		},
		{
			name:  "presign",
			flags: 0b1100000,
			want:  tradeFlags{auction.SideSell, false, auction.SellBalanceErc20, auction.BuyDestinationErc20, auction.SchemePreSign},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			have := parseTradeFlags(big.NewInt(tc.flags))
			if tc.want != have {
				t.Errorf("flags %#b: want %+v, have %+v", tc.flags, tc.want, have)
			}
		})
	}
}

func TestDecodeEip1271Owner(t *testing.T) {
	owner := common.HexToAddress("0x7777777777777777777777777777777777777777")

	sig := append(owner.Bytes(), []byte("arbitrary contract signature data")...)

	input := packSettle(t, 1,
		[]common.Address{testWETH, testCOW},
		[]*big.Int{big.NewInt(2), big.NewInt(1)},
		[]tradeData{{
			SellTokenIndex: big.NewInt(0),
			BuyTokenIndex:  big.NewInt(1),
			SellAmount:     big.NewInt(100),
			BuyAmount:      big.NewInt(100),
			FeeAmount:      big.NewInt(0),
			Flags:          big.NewInt(0b1000000), // eip1271
			ExecutedAmount: big.NewInt(100),
			Signature:      sig,
		}},
	)

	s, err := Decode(input, testSeparator)
	if err != nil {
		t.Fatal(err)
	}

	if want, have := owner, s.Trades[0].Owner; want != have {
		t.Errorf("owner: want %s, have %s", want, have)
	}
}

func TestErrorKinds(t *testing.T) {
	infra := infraErr("boom: %w", errors.New("timeout"))
	if want, have := KindInfra, ErrorKind(infra); want != have {
		t.Errorf("infra: want %s, have %s", want, have)
	}

	// Unclassified errors default to infra: retrying is the safe choice.
	if want, have := KindInfra, ErrorKind(errors.New("anonymous")); want != have {
		t.Errorf("unclassified: want %s, have %s", want, have)
	}
}
