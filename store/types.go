package store

import (
	"errors"
	"time"
)

// SettlementEvent is an on-chain settlement observation, keyed by
// (block_number, log_index). Processed and AuctionID are the only fields
// that can be user-modified after creation.
type SettlementEvent struct {
	BlockNumber uint64
	LogIndex    uint64
	TxHash      string
	Processed   bool
	AuctionID   int64 // 0 until processing pairs the event with an auction
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Competition is the immutable record of one auction round: who won, what
// they promised, and the data needed to score the eventual settlement.
type Competition struct {
	AuctionID        int64
	Winner           string // hex address
	WinnerScore      string // decimal U256
	Deadline         uint64 // block number
	PromisedCalldata []byte
	Prices           map[string]string // token hex -> native price, decimal
	FeePolicies      map[string][]FeePolicy
	Participants     []string
	ReferenceScore   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FeePolicy is the stored form of a protocol fee policy, keyed by order
// uid inside Competition.FeePolicies.
type FeePolicy struct {
	Kind            string  `json:"kind"`
	Factor          float64 `json:"factor"`
	MaxVolumeFactor float64 `json:"max_volume_factor"`
	QuoteSellAmount string  `json:"quote_sell_amount,omitempty"`
	QuoteBuyAmount  string  `json:"quote_buy_amount,omitempty"`
	QuoteFee        string  `json:"quote_fee,omitempty"`
	QuoteSolver     string  `json:"quote_solver,omitempty"`
}

// SettlementOutcome is what reconciliation concluded about one settlement
// event.
type SettlementOutcome struct {
	BlockNumber uint64
	LogIndex    uint64
	AuctionID   int64
	Solver      string
	Score       string // decimal U256, empty when not computable
	Violations  []string
	CreatedAt   time.Time
}

var ErrNotFound = errors.New("not found")
