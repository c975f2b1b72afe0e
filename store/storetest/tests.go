package storetest

import (
	"context"
	"errors"
	"testing"

	"arbiter/store"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestStore(t *testing.T, makeStore func(*testing.T) store.Store) {
	ctx := context.Background()

	t.Run("NextUnprocessedSettlementEvent", func(t *testing.T) {
		s := makeStore(t)

		if _, err := s.NextUnprocessedSettlementEvent(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("empty store: want %v, have %v", store.ErrNotFound, err)
		}

		NewSettlementEvent(t, s, 200, 3)
		first := NewSettlementEvent(t, s, 100, 7)
		NewSettlementEvent(t, s, 100, 9)

		have, err := s.NextUnprocessedSettlementEvent(ctx)
		if err != nil {
			t.Fatal(err)
		}

		ignore := cmpopts.IgnoreFields(store.SettlementEvent{}, "CreatedAt", "UpdatedAt")
		if diff := cmp.Diff(have, first, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("UpdateSettlementEvent", func(t *testing.T) {
		s := makeStore(t)
		e := NewSettlementEvent(t, s, 100, 1)

		e.Processed = true
		e.AuctionID = 42
		if err := s.UpdateSettlementEvent(ctx, e); err != nil {
			t.Fatal(err)
		}

		if _, err := s.NextUnprocessedSettlementEvent(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("all processed: want %v, have %v", store.ErrNotFound, err)
		}

		bogus := &store.SettlementEvent{BlockNumber: 999, LogIndex: 999}
		if err := s.UpdateSettlementEvent(ctx, bogus); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("update bogus event: want %v, have %v", store.ErrNotFound, err)
		}
	})

	t.Run("InsertSettlementEventTwice", func(t *testing.T) {
		s := makeStore(t)
		e := NewSettlementEvent(t, s, 100, 1)

		e.Processed = true
		if err := s.UpdateSettlementEvent(ctx, e); err != nil {
			t.Fatal(err)
		}

		// Re-observing the same event must not reset its processed state.
		dup := &store.SettlementEvent{BlockNumber: 100, LogIndex: 1, TxHash: e.TxHash}
		if err := s.InsertSettlementEvent(ctx, dup); err != nil {
			t.Fatal(err)
		}

		if _, err := s.NextUnprocessedSettlementEvent(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("want %v, have %v", store.ErrNotFound, err)
		}
	})

	t.Run("SelectCompetition", func(t *testing.T) {
		s := makeStore(t)
		c := NewCompetition(t, s, 1, 500)

		have, err := s.SelectCompetition(ctx, c.AuctionID)
		if err != nil {
			t.Fatal(err)
		}

		ignore := cmpopts.IgnoreFields(store.Competition{}, "CreatedAt", "UpdatedAt")
		if diff := cmp.Diff(have, c, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}

		if _, err := s.SelectCompetition(ctx, 999); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("select bogus competition: want %v, have %v", store.ErrNotFound, err)
		}
	})

	t.Run("UpsertCompetition", func(t *testing.T) {
		s := makeStore(t)
		c := NewCompetition(t, s, 1, 500)

		c.Winner = GenHexAddr(t)
		c.ReferenceScore = "99"
		if err := s.UpsertCompetition(ctx, c); err != nil {
			t.Fatal(err)
		}

		have, err := s.SelectCompetition(ctx, c.AuctionID)
		if err != nil {
			t.Fatal(err)
		}

		ignore := cmpopts.IgnoreFields(store.Competition{}, "CreatedAt", "UpdatedAt")
		if diff := cmp.Diff(have, c, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("ListSettlementOutcomes", func(t *testing.T) {
		s := makeStore(t)
		c := NewCompetition(t, s, 7, 500)
		e1 := NewSettlementEvent(t, s, 100, 1)
		e2 := NewSettlementEvent(t, s, 101, 0)

		o1 := NewSettlementOutcome(t, s, e1, c.AuctionID, c.Winner)
		o2 := NewSettlementOutcome(t, s, e2, c.AuctionID, c.Winner)

		have, err := s.ListSettlementOutcomes(ctx, c.AuctionID)
		if err != nil {
			t.Fatal(err)
		}

		want := []*store.SettlementOutcome{o1, o2}
		ignore := cmpopts.IgnoreFields(store.SettlementOutcome{}, "CreatedAt")
		if diff := cmp.Diff(have, want, ignore); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("ListNonSettlingSolvers", func(t *testing.T) {
		s := makeStore(t)

		// Winner of competition 1 settled, winner of competition 2 did not,
		// competition 3 has not expired yet.
		c1 := NewCompetition(t, s, 1, 100)
		c2 := NewCompetition(t, s, 2, 110)
		NewCompetition(t, s, 3, 10_000)

		e := NewSettlementEvent(t, s, 90, 0)
		NewSettlementOutcome(t, s, e, c1.AuctionID, c1.Winner)

		have, err := s.ListNonSettlingSolvers(ctx, 10, 500)
		if err != nil {
			t.Fatal(err)
		}

		want := []string{c2.Winner}
		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("ListNonSettlingSolversWindow", func(t *testing.T) {
		s := makeStore(t)

		// Both winners failed to settle, but only the most recent auction
		// falls inside a window of one.
		NewCompetition(t, s, 1, 100)
		c2 := NewCompetition(t, s, 2, 110)

		have, err := s.ListNonSettlingSolvers(ctx, 1, 500)
		if err != nil {
			t.Fatal(err)
		}

		want := []string{c2.Winner}
		if diff := cmp.Diff(have, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})
}
