package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arbiter/auction"
	"arbiter/chain"
	"arbiter/eth"
	"arbiter/metrics"
	"arbiter/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/holiman/uint256"
)

// Notifier is told whenever a new settlement outcome lands, so interested
// parties (e.g. the participation guard) can refresh their state.
type Notifier interface {
	Notify()
}

// Observer drains unprocessed settlement events from the store, decodes
// and scores the corresponding on-chain transactions, and persists the
// outcome. One event is processed per store transaction: a crash never
// loses or double-counts an event.
type Observer struct {
	chain    chain.Chain
	store    store.Store
	notifier Notifier // may be nil
	logger   log.Logger
}

func NewObserver(c chain.Chain, s store.Store, n Notifier, logger log.Logger) *Observer {
	return &Observer{
		chain:    c,
		store:    s,
		notifier: n,
		logger:   logger,
	}
}

// Run processes events on the given interval until the context ends.
func (o *Observer) Run(ctx context.Context, interval time.Duration) error {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := o.ProcessAll(ctx); err != nil {
				metrics.ObserverPassesTotal.WithLabelValues("error").Inc()
				level.Error(o.logger).Log("op", "ProcessAll", "err", err)
				continue
			}
			metrics.ObserverPassesTotal.WithLabelValues("success").Inc()
		}
	}
}

// ProcessAll drains the unprocessed event queue. Events with broken data
// are marked processed and skipped; infrastructure errors abort the pass
// so the event is retried next time.
func (o *Observer) ProcessAll(ctx context.Context) error {
	for {
		event, err := o.store.NextUnprocessedSettlementEvent(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil
		case err != nil:
			return fmt.Errorf("next unprocessed settlement event: %w", err)
		}

		if err := o.processEvent(ctx, event); err != nil {
			return fmt.Errorf("process settlement event %d/%d: %w", event.BlockNumber, event.LogIndex, err)
		}

		metrics.LastObservedBlock.Set(float64(event.BlockNumber))
	}
}

func (o *Observer) processEvent(ctx context.Context, event *store.SettlementEvent) error {
	logger := log.With(o.logger,
		"block_number", event.BlockNumber,
		"log_index", event.LogIndex,
		"tx_hash", event.TxHash,
	)

	outcome, err := o.observe(ctx, event, logger)
	if err != nil {
		if ErrorKind(err) == KindInfra {
			metrics.SettlementEventsObservedTotal.WithLabelValues("infra_error").Inc()
			return err
		}

		// The event itself is broken: record that and move on, retrying
		// would reproduce the same failure forever.
		level.Info(logger).Log("msg", "settlement not observable", "err", err)
		metrics.SettlementEventsObservedTotal.WithLabelValues("bad_data").Inc()

		event.Processed = true
		if markErr := o.store.UpdateSettlementEvent(ctx, event); markErr != nil {
			return multierror.Append(err, markErr)
		}
		return nil
	}

	for _, kind := range outcome.Violations {
		metrics.SettlementViolationsTotal.WithLabelValues(kind).Inc()
	}

	if err := o.store.Transact(ctx, func(tx store.Store) error {
		if err := tx.SaveSettlementOutcome(ctx, outcome); err != nil {
			return fmt.Errorf("save settlement outcome: %w", err)
		}

		event.Processed = true
		event.AuctionID = outcome.AuctionID
		if err := tx.UpdateSettlementEvent(ctx, event); err != nil {
			return fmt.Errorf("mark settlement event processed: %w", err)
		}

		return nil
	}); err != nil {
		return err
	}

	metrics.SettlementEventsObservedTotal.WithLabelValues("success").Inc()

	if o.notifier != nil {
		o.notifier.Notify()
	}

	return nil
}

// observe turns one settlement event into an outcome. All failures are
// tagged with an error kind so processEvent can distinguish retryable
// infrastructure trouble from permanently broken data.
func (o *Observer) observe(ctx context.Context, event *store.SettlementEvent, logger log.Logger) (*store.SettlementOutcome, error) {
	tx, err := o.chain.Transaction(ctx, common.HexToHash(event.TxHash))
	switch {
	case errors.Is(err, chain.ErrTxNotFound):
		return nil, inconsistentErr("transaction %s: %w", event.TxHash, err)
	case err != nil:
		return nil, infraErr("fetch transaction %s: %w", event.TxHash, err)
	}

	sep, err := o.chain.DomainSeparator(ctx)
	if err != nil {
		return nil, infraErr("fetch domain separator: %w", err)
	}

	delivered, err := FromTransaction(tx, sep)
	if err != nil {
		metrics.SettlementsDecodedTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.SettlementsDecodedTotal.WithLabelValues("success").Inc()

	competition, err := o.store.SelectCompetition(ctx, delivered.AuctionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, inconsistentErr("no competition for auction %d", delivered.AuctionID)
	case err != nil:
		return nil, infraErr("select competition for auction %d: %w", delivered.AuctionID, err)
	}

	a, err := assembleAuction(delivered, competition, sep)
	if err != nil {
		return nil, err
	}

	violations := Violations(a)

	outcome := &store.SettlementOutcome{
		BlockNumber: event.BlockNumber,
		LogIndex:    event.LogIndex,
		AuctionID:   delivered.AuctionID,
		Solver:      delivered.Solver.Hex(),
	}
	for _, v := range violations {
		outcome.Violations = append(outcome.Violations, string(v.Kind))
	}

	// A non-computable score already surfaces as a violation, so it does
	// not block the outcome.
	if score, err := delivered.Score(a.Prices, a.FeePolicies); err == nil {
		outcome.Score = score.Dec()
	} else {
		level.Debug(logger).Log("msg", "score not computable", "err", err)
	}

	return outcome, nil
}

// assembleAuction converts the stored competition record into the typed
// form the violation rules operate on.
func assembleAuction(delivered *Settlement, c *store.Competition, sep eth.DomainSeparator) (*Auction, error) {
	prices := make(auction.Prices, len(c.Prices))
	for token, value := range c.Prices {
		if !common.IsHexAddress(token) {
			return nil, inconsistentErr("competition price token %q is not an address", token)
		}
		amount, err := uint256.FromDecimal(value)
		if err != nil {
			return nil, inconsistentErr("competition price for %s: %w", token, err)
		}
		price, err := eth.NewPrice(amount)
		if err != nil {
			return nil, inconsistentErr("competition price for %s: %w", token, err)
		}
		prices[common.HexToAddress(token)] = price
	}

	policies := make(map[auction.OrderUid][]auction.Policy, len(c.FeePolicies))
	for uid, stored := range c.FeePolicies {
		parsed, err := auction.ParseOrderUid(uid)
		if err != nil {
			return nil, inconsistentErr("competition fee policy order uid %q: %w", uid, err)
		}
		for _, p := range stored {
			policies[parsed] = append(policies[parsed], auction.Policy{
				Kind:            auction.ParsePolicyKind(p.Kind),
				Factor:          p.Factor,
				MaxVolumeFactor: p.MaxVolumeFactor,
			})
		}
	}

	if !common.IsHexAddress(c.Winner) {
		return nil, inconsistentErr("competition winner %q is not an address", c.Winner)
	}

	return &Auction{
		Delivered:        delivered,
		Winner:           common.HexToAddress(c.Winner),
		Deadline:         c.Deadline,
		PromisedCalldata: c.PromisedCalldata,
		DomainSeparator:  sep,
		Prices:           prices,
		FeePolicies:      policies,
	}, nil
}
