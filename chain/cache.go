package chain

import (
	"context"
	"sync"

	"arbiter/eth"
)

// CachedChain fronts a Chain with caches for the calls that sit on hot
// paths: transaction lookups during settlement observation, and solver
// allow-list checks during solution submission. Mined transactions and
// allow-list membership are stable enough to cache; the domain separator
// is a contract constant and is fetched at most once.
type CachedChain struct {
	Chain

	txs     abstractCache[eth.Hash, *Transaction]
	solvers abstractCache[eth.Address, bool]

	mtx sync.Mutex
	sep *eth.DomainSeparator
}

func WithCaches(chain Chain) *CachedChain {
	return &CachedChain{
		Chain: chain,

		// Tx hashes arrive roughly once each and in order, so a ring is
		// enough. Solver checks repeat for the same few addresses and can
		// stampede, so they get the single-flight cache.
		txs:     newRingCache[eth.Hash, *Transaction](256),
		solvers: newCondCache[eth.Address, bool](256),
	}
}

func (c *CachedChain) Transaction(ctx context.Context, hash eth.Hash) (*Transaction, error) {
	return c.txs.Get(ctx, hash, c.Chain.Transaction)
}

func (c *CachedChain) IsSolver(ctx context.Context, addr eth.Address) (bool, error) {
	return c.solvers.Get(ctx, addr, c.Chain.IsSolver)
}

func (c *CachedChain) DomainSeparator(ctx context.Context) (eth.DomainSeparator, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.sep != nil {
		return *c.sep, nil
	}

	sep, err := c.Chain.DomainSeparator(ctx)
	if err != nil {
		return eth.DomainSeparator{}, err
	}

	c.sep = &sep
	return sep, nil
}

type abstractCache[K comparable, V any] interface {
	Len(ctx context.Context) (int, error)
	Get(ctx context.Context, key K, fill func(context.Context, K) (V, error)) (V, error)
}

var (
	_ abstractCache[eth.Hash, *Transaction] = (*ringCache[eth.Hash, *Transaction])(nil)
	_ abstractCache[eth.Address, bool]      = (*condCache[eth.Address, bool])(nil)
)
