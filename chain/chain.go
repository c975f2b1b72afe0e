package chain

import (
	"context"
	"errors"

	"arbiter/eth"
)

var (
	ErrTxNotFound = errors.New("transaction not found")
)

// Chain is the read-only view of the settlement chain that the core
// needs: transactions by hash, the solver allow-list, and the settlement
// contract's domain separator.
type Chain interface {
	ID() string
	LatestBlock(ctx context.Context) (uint64, error)
	Transaction(ctx context.Context, hash eth.Hash) (*Transaction, error)
	IsSolver(ctx context.Context, addr eth.Address) (bool, error)
	DomainSeparator(ctx context.Context) (eth.DomainSeparator, error)
}

// Transaction is a mined transaction in the form the settlement decoder
// consumes. Constructed once by the Chain implementation, immutable after.
type Transaction struct {
	Hash              eth.Hash
	From              eth.Address
	Input             []byte
	BlockNumber       uint64
	Gas               uint64
	EffectiveGasPrice *eth.U256
}
