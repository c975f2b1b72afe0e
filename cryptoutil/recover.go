package cryptoutil

import (
	"fmt"

	"arbiter/eth"

	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverSigner recovers the address that produced a 65-byte r‖s‖v
// signature over the given digest. Accepts both legacy (27/28) and
// normalized (0/1) recovery ids.
func RecoverSigner(digest eth.Hash, sig []byte) (eth.Address, error) {
	if len(sig) != 65 {
		return eth.Address{}, fmt.Errorf("signature: want 65 bytes, have %d", len(sig))
	}

	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return eth.Address{}, fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// EthSignDigest wraps a digest the way eth_sign does before signing.
func EthSignDigest(digest eth.Hash) eth.Hash {
	return crypto.Keccak256Hash(
		[]byte("\x19Ethereum Signed Message:\n32"),
		digest[:],
	)
}
