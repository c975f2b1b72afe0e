package competition

import (
	"context"
	"testing"
	"time"

	"arbiter/chain"
	"arbiter/eth"
	"arbiter/store/memstore"
	"arbiter/store/storetest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-kit/log"
)

func TestGuardCanParticipate(t *testing.T) {
	var (
		ctx    = context.Background()
		solver = common.HexToAddress("0x0000000000000000000000000000000000000001")
		other  = common.HexToAddress("0x0000000000000000000000000000000000000002")
		c      = &chain.TestChain{Solvers: map[eth.Address]bool{solver: true}}
		g      = NewGuard(c, memstore.NewStore(), time.Minute, 10, log.NewNopLogger())
	)

	ok, err := g.CanParticipate(ctx, solver)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("allow-listed solver should be able to participate")
	}

	ok, err = g.CanParticipate(ctx, other)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown solver should not be able to participate")
	}
}

func TestGuardBansNonSettlingWinners(t *testing.T) {
	var (
		ctx = context.Background()
		s   = memstore.NewStore()
		c   = &chain.TestChain{Block: 500, Solvers: map[eth.Address]bool{}}
		g   = NewGuard(c, s, time.Minute, 10, log.NewNopLogger())
	)

	// The winner of an expired competition never settled.
	comp := storetest.NewCompetition(t, s, 1, 100)
	winner := common.HexToAddress(comp.Winner)
	c.Solvers[winner] = true

	// Before the refresh the allow-list is the only gate.
	ok, err := g.CanParticipate(ctx, winner)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("winner should participate before any refresh")
	}

	if err := g.refresh(ctx); err != nil {
		t.Fatal(err)
	}

	ok, err = g.CanParticipate(ctx, winner)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("non-settling winner should be banned after refresh")
	}
}

func TestGuardBanExpiry(t *testing.T) {
	var (
		ctx = context.Background()
		s   = memstore.NewStore()
		c   = &chain.TestChain{Block: 500, Solvers: map[eth.Address]bool{}}
		g   = NewGuard(c, s, 10*time.Millisecond, 10, log.NewNopLogger())
	)

	comp := storetest.NewCompetition(t, s, 1, 100)
	winner := common.HexToAddress(comp.Winner)
	c.Solvers[winner] = true

	if err := g.refresh(ctx); err != nil {
		t.Fatal(err)
	}

	if ok, _ := g.CanParticipate(ctx, winner); ok {
		t.Fatal("winner should be banned right after refresh")
	}

	time.Sleep(20 * time.Millisecond)

	// The ban outlived its TTL: the lookup lazily evicts it.
	ok, err := g.CanParticipate(ctx, winner)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expired ban should not block participation")
	}
	if want, have := 0, g.banCount(); want != have {
		t.Errorf("ban count after lazy expiry: want %d, have %d", want, have)
	}
}

func TestGuardCollectGarbage(t *testing.T) {
	var (
		ctx = context.Background()
		s   = memstore.NewStore()
		c   = &chain.TestChain{Block: 500}
		g   = NewGuard(c, s, 10*time.Millisecond, 10, log.NewNopLogger())
	)

	storetest.NewCompetition(t, s, 1, 100)
	storetest.NewCompetition(t, s, 2, 100)

	if err := g.refresh(ctx); err != nil {
		t.Fatal(err)
	}

	if want, have := 2, g.banCount(); want != have {
		t.Fatalf("ban count after refresh: want %d, have %d", want, have)
	}

	time.Sleep(20 * time.Millisecond)
	g.CollectGarbage()

	if want, have := 0, g.banCount(); want != have {
		t.Errorf("ban count after sweep: want %d, have %d", want, have)
	}
}

func TestGuardNotifyCoalesces(t *testing.T) {
	g := NewGuard(&chain.TestChain{}, memstore.NewStore(), time.Minute, 10, log.NewNopLogger())

	g.Notify()
	g.Notify()
	g.Notify()

	if want, have := 1, len(g.notifyc); want != have {
		t.Errorf("pending notifications: want %d, have %d", want, have)
	}
}

func TestGuardChainErrorSurfaces(t *testing.T) {
	var (
		ctx     = context.Background()
		wantErr = context.DeadlineExceeded
		c       = &chain.TestChain{
			IsSolverFunc: func(ctx context.Context, addr eth.Address) (bool, error) {
				return false, wantErr
			},
		}
		g = NewGuard(c, memstore.NewStore(), time.Minute, 10, log.NewNopLogger())
	)

	_, err := g.CanParticipate(ctx, common.HexToAddress("0x01"))
	if err == nil {
		t.Fatal("chain errors must surface, not default to a decision")
	}
}
