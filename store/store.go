package store

import (
	"context"
)

type Store interface {
	Transact(context.Context, func(Store) error) error

	Ping(ctx context.Context) error
	Cleanup(ctx context.Context) error

	InsertSettlementEvent(ctx context.Context, e *SettlementEvent) error
	UpdateSettlementEvent(ctx context.Context, e *SettlementEvent) error
	NextUnprocessedSettlementEvent(ctx context.Context) (*SettlementEvent, error)

	SaveSettlementOutcome(ctx context.Context, o *SettlementOutcome) error
	ListSettlementOutcomes(ctx context.Context, auctionID int64) ([]*SettlementOutcome, error)

	UpsertCompetition(ctx context.Context, c *Competition) error
	SelectCompetition(ctx context.Context, auctionID int64) (*Competition, error)

	ListNonSettlingSolvers(ctx context.Context, lastAuctionsCount uint32, currentBlock uint64) ([]string, error)
}
