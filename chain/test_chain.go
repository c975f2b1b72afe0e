package chain

import (
	"context"

	"arbiter/eth"
)

// TestChain is an in-memory Chain for tests. Fixed fields cover the
// common cases; the optional Funcs override individual methods.
type TestChain struct {
	ChainID   string
	Block     uint64
	Txs       map[eth.Hash]*Transaction
	Solvers   map[eth.Address]bool
	Separator eth.DomainSeparator

	LatestBlockFunc     func(ctx context.Context) (uint64, error)
	TransactionFunc     func(ctx context.Context, hash eth.Hash) (*Transaction, error)
	IsSolverFunc        func(ctx context.Context, addr eth.Address) (bool, error)
	DomainSeparatorFunc func(ctx context.Context) (eth.DomainSeparator, error)
}

var _ Chain = (*TestChain)(nil)

func (c *TestChain) ID() string {
	return c.ChainID
}

func (c *TestChain) LatestBlock(ctx context.Context) (uint64, error) {
	if c.LatestBlockFunc != nil {
		return c.LatestBlockFunc(ctx)
	}
	return c.Block, nil
}

func (c *TestChain) Transaction(ctx context.Context, hash eth.Hash) (*Transaction, error) {
	if c.TransactionFunc != nil {
		return c.TransactionFunc(ctx, hash)
	}
	tx, ok := c.Txs[hash]
	if !ok {
		return nil, ErrTxNotFound
	}
	return tx, nil
}

func (c *TestChain) IsSolver(ctx context.Context, addr eth.Address) (bool, error) {
	if c.IsSolverFunc != nil {
		return c.IsSolverFunc(ctx, addr)
	}
	return c.Solvers[addr], nil
}

func (c *TestChain) DomainSeparator(ctx context.Context) (eth.DomainSeparator, error) {
	if c.DomainSeparatorFunc != nil {
		return c.DomainSeparatorFunc(ctx)
	}
	return c.Separator, nil
}
