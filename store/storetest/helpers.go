package storetest

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"arbiter/cryptoutil"
	"arbiter/store"
)

func NewCompetition(t *testing.T, s store.Store, auctionID int64, deadline uint64) *store.Competition {
	t.Helper()

	winner := GenHexAddr(t)
	c := &store.Competition{
		AuctionID:        auctionID,
		Winner:           winner,
		WinnerScore:      fmt.Sprintf("%d", rand.Intn(1_000_000)+1),
		Deadline:         deadline,
		PromisedCalldata: cryptoutil.RandomBytes(64),
		Prices: map[string]string{
			GenHexAddr(t): "6043910341261930467761",
			GenHexAddr(t): "133700000000000000",
		},
		FeePolicies: map[string][]store.FeePolicy{
			fmt.Sprintf("0x%x", cryptoutil.RandomBytes(56)): {
				{Kind: "surplus", Factor: 0.5, MaxVolumeFactor: 0.01},
			},
		},
		Participants:   []string{winner, GenHexAddr(t)},
		ReferenceScore: "42",
	}

	if err := s.UpsertCompetition(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	return c
}

func NewSettlementEvent(t *testing.T, s store.Store, blockNumber, logIndex uint64) *store.SettlementEvent {
	t.Helper()

	e := &store.SettlementEvent{
		BlockNumber: blockNumber,
		LogIndex:    logIndex,
		TxHash:      fmt.Sprintf("0x%x", cryptoutil.RandomBytes(32)),
	}

	if err := s.InsertSettlementEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	return e
}

func NewSettlementOutcome(t *testing.T, s store.Store, e *store.SettlementEvent, auctionID int64, solver string) *store.SettlementOutcome {
	t.Helper()

	o := &store.SettlementOutcome{
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
		AuctionID:   auctionID,
		Solver:      solver,
		Score:       fmt.Sprintf("%d", rand.Intn(1_000_000)),
		Violations:  []string{"deadline"},
	}

	if err := s.SaveSettlementOutcome(context.Background(), o); err != nil {
		t.Fatal(err)
	}

	return o
}

func GenHexAddr(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("0x%x", cryptoutil.RandomBytes(20))
}
