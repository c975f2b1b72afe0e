package competition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbiter/chain"
	"arbiter/eth"
	"arbiter/metrics"
	"arbiter/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Guard gates solver participation. A solver may participate when it is
// not banned for recently winning auctions without settling them, and it
// is present in the on-chain allow-list. The ban cache refreshes when
// notified of new settlement outcomes, not on a timer.
type Guard struct {
	chain  chain.Chain
	store  store.Store
	logger log.Logger

	banTTL            time.Duration
	lastAuctionsCount uint32

	notifyc chan struct{}

	mu     sync.Mutex
	banned map[eth.Address]time.Time
}

func NewGuard(c chain.Chain, s store.Store, banTTL time.Duration, lastAuctionsCount uint32, logger log.Logger) *Guard {
	return &Guard{
		chain:             c,
		store:             s,
		logger:            logger,
		banTTL:            banTTL,
		lastAuctionsCount: lastAuctionsCount,
		notifyc:           make(chan struct{}, 1),
		banned:            map[eth.Address]time.Time{},
	}
}

// Notify signals that competition state changed and the ban list should
// be refreshed. Signals coalesce: while one is pending, further calls are
// no-ops, so notifiers never block.
func (g *Guard) Notify() {
	select {
	case g.notifyc <- struct{}{}:
	default:
	}
}

// CanParticipate reports whether the solver may submit solutions right
// now. The ban cache is consulted first and short-circuits the chain
// call. Errors are returned as errors: the caller decides the fallback,
// never this function.
func (g *Guard) CanParticipate(ctx context.Context, solver eth.Address) (bool, error) {
	if g.isBanned(solver) {
		metrics.GuardChecksTotal.WithLabelValues("banned").Inc()
		return false, nil
	}

	ok, err := g.chain.IsSolver(ctx, solver)
	if err != nil {
		metrics.GuardChecksTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("query allow-list for %s: %w", solver, err)
	}

	if !ok {
		metrics.GuardChecksTotal.WithLabelValues("denied").Inc()
		return false, nil
	}

	metrics.GuardChecksTotal.WithLabelValues("allowed").Inc()
	return true, nil
}

func (g *Guard) isBanned(solver eth.Address) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	bannedAt, ok := g.banned[solver]
	if !ok {
		return false
	}

	if time.Since(bannedAt) > g.banTTL {
		delete(g.banned, solver) // lazy expiry
		return false
	}

	return true
}

// Run refreshes the ban list on notifications until the context ends.
func (g *Guard) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.notifyc:
			if err := g.refresh(ctx); err != nil {
				metrics.GuardRefreshesTotal.WithLabelValues("error").Inc()
				level.Error(g.logger).Log("op", "refresh", "err", err)
				continue
			}
			metrics.GuardRefreshesTotal.WithLabelValues("success").Inc()
		}
	}
}

func (g *Guard) refresh(ctx context.Context) error {
	currentBlock, err := g.chain.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	solvers, err := g.store.ListNonSettlingSolvers(ctx, g.lastAuctionsCount, currentBlock)
	if err != nil {
		return fmt.Errorf("list non-settling solvers: %w", err)
	}

	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, solver := range solvers {
		if !common.IsHexAddress(solver) {
			level.Error(g.logger).Log("op", "refresh", "err", "stored solver is not an address", "solver", solver)
			continue
		}
		g.banned[common.HexToAddress(solver)] = now
	}

	level.Debug(g.logger).Log("op", "refresh", "current_block", currentBlock, "banned", len(g.banned))

	return nil
}

// CollectGarbage removes expired ban entries. Lazy expiry on lookup keeps
// answers correct; this keeps the map from growing without bound.
func (g *Guard) CollectGarbage() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for solver, bannedAt := range g.banned {
		if time.Since(bannedAt) > g.banTTL {
			delete(g.banned, solver)
		}
	}
}

func (g *Guard) banCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.banned)
}
