package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"arbiter/store"
)

type Store struct {
	mu           sync.Mutex
	events       map[eventKey]*store.SettlementEvent
	outcomes     map[eventKey]*store.SettlementOutcome
	competitions map[int64]*store.Competition
}

type eventKey struct {
	blockNumber uint64
	logIndex    uint64
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		events:       map[eventKey]*store.SettlementEvent{},
		outcomes:     map[eventKey]*store.SettlementOutcome{},
		competitions: map[int64]*store.Competition{},
	}
}

func (s *Store) Transact(ctx context.Context, tx func(store.Store) error) error {
	return tx(s)
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Cleanup(ctx context.Context) error {
	return nil
}

func (s *Store) InsertSettlementEvent(ctx context.Context, e *store.SettlementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventKey{e.BlockNumber, e.LogIndex}
	if _, ok := s.events[key]; ok {
		// Re-observed events are expected, the first write wins.
		return nil
	}

	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt

	newEvent := *e
	s.events[key] = &newEvent

	return nil
}

func (s *Store) UpdateSettlementEvent(ctx context.Context, e *store.SettlementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[eventKey{e.BlockNumber, e.LogIndex}]
	if !ok {
		return store.ErrNotFound
	}

	existing.Processed = e.Processed
	existing.AuctionID = e.AuctionID
	existing.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *Store) NextUnprocessedSettlementEvent(ctx context.Context) (*store.SettlementEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *store.SettlementEvent
	for _, e := range s.events {
		if e.Processed {
			continue
		}
		if next == nil || before(e, next) {
			next = e
		}
	}

	if next == nil {
		return nil, store.ErrNotFound
	}

	newEvent := *next
	return &newEvent, nil
}

func before(a, b *store.SettlementEvent) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	return a.LogIndex < b.LogIndex
}

func (s *Store) SaveSettlementOutcome(ctx context.Context, o *store.SettlementOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.CreatedAt = time.Now().UTC()

	newOutcome := *o
	s.outcomes[eventKey{o.BlockNumber, o.LogIndex}] = &newOutcome

	return nil
}

func (s *Store) ListSettlementOutcomes(ctx context.Context, auctionID int64) ([]*store.SettlementOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var os []*store.SettlementOutcome
	for _, o := range s.outcomes {
		if o.AuctionID == auctionID {
			os = append(os, o)
		}
	}

	sort.SliceStable(os, func(i, j int) bool {
		if os[i].BlockNumber != os[j].BlockNumber {
			return os[i].BlockNumber < os[j].BlockNumber
		}
		return os[i].LogIndex < os[j].LogIndex
	})

	return os, nil
}

func (s *Store) UpsertCompetition(ctx context.Context, c *store.Competition) error {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.competitions[c.AuctionID]; ok {
		// update
		*existing = *c
		existing.UpdatedAt = now
	} else {
		// create
		newCompetition := *c
		newCompetition.CreatedAt = now
		newCompetition.UpdatedAt = now
		s.competitions[c.AuctionID] = &newCompetition
	}

	return nil
}

func (s *Store) SelectCompetition(ctx context.Context, auctionID int64) (*store.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.competitions[auctionID]; ok {
		return c, nil
	}

	return nil, store.ErrNotFound
}

func (s *Store) ListNonSettlingSolvers(ctx context.Context, lastAuctionsCount uint32, currentBlock uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Competitions whose deadline has passed, newest first.
	var expired []*store.Competition
	for _, c := range s.competitions {
		if c.Deadline <= currentBlock {
			expired = append(expired, c)
		}
	}
	sort.SliceStable(expired, func(i, j int) bool {
		return expired[i].AuctionID > expired[j].AuctionID
	})
	if uint32(len(expired)) > lastAuctionsCount {
		expired = expired[:lastAuctionsCount]
	}

	settled := map[int64]map[string]bool{}
	for _, o := range s.outcomes {
		if settled[o.AuctionID] == nil {
			settled[o.AuctionID] = map[string]bool{}
		}
		settled[o.AuctionID][strings.ToLower(o.Solver)] = true
	}

	seen := map[string]bool{}
	var solvers []string
	for _, c := range expired {
		winner := strings.ToLower(c.Winner)
		if settled[c.AuctionID][winner] || seen[winner] {
			continue
		}
		seen[winner] = true
		solvers = append(solvers, winner)
	}

	sort.Strings(solvers)
	return solvers, nil
}
