package auction_test

import (
	"testing"

	"arbiter/auction"

	"github.com/ethereum/go-ethereum/common"
)

func TestOrderUid(t *testing.T) {
	t.Parallel()

	var (
		digest  = common.HexToHash("0xaabbccddeeff00112233445566778899aabbccddeeff00112233445566778899")
		owner   = common.HexToAddress("0x0102030405060708090a0b0c0d0e0f1011121314")
		validTo = uint32(1234567890)
	)

	uid := auction.MakeOrderUid(digest, owner, validTo)

	if want, have := digest, uid.Digest(); want != have {
		t.Fatalf("digest: want %s, have %s", want, have)
	}
	if want, have := owner, uid.Owner(); want != have {
		t.Fatalf("owner: want %s, have %s", want, have)
	}
	if want, have := validTo, uid.ValidTo(); want != have {
		t.Fatalf("valid to: want %d, have %d", want, have)
	}

	parsed, err := auction.ParseOrderUid(uid.String())
	if err != nil {
		t.Fatalf("parse uid: %v", err)
	}
	if parsed != uid {
		t.Fatalf("round trip: want %s, have %s", uid, parsed)
	}

	if _, err := auction.ParseOrderUid("0xdeadbeef"); err == nil {
		t.Fatal("want error for short uid")
	}
}

func TestParseSide(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want auction.Side
	}{
		{"buy", auction.SideBuy},
		{"BUY", auction.SideBuy},
		{"sell", auction.SideSell},
		{"anything", auction.SideSell},
	} {
		if have := auction.ParseSide(tc.in); have != tc.want {
			t.Errorf("%q: want %s, have %s", tc.in, tc.want, have)
		}
	}
}
