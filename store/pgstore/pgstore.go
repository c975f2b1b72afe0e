package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arbiter/metrics"
	"arbiter/store"
	"arbiter/store/pgstore/migrations"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/tern/migrate"
	"github.com/prometheus/client_golang/prometheus"
)

type Store struct {
	db     connOrTx
	logger log.Logger
}

var _ store.Store = (*Store)(nil)

type connOrTx interface {
	Query(ctx context.Context, q string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, q string, args ...any) pgx.Row
	Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error)
}

func NewStore(ctx context.Context, connStr string, logger log.Logger) (_ *Store, err error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if config.MaxConnIdleTime == 0 {
		config.MaxConnIdleTime = 5 * time.Minute
	}

	if config.MaxConns == 0 {
		config.MaxConns = 4
	}

	if config.MinConns == 0 {
		config.MinConns = 1
	}

	if config.ConnConfig.ConnectTimeout == 0 {
		config.ConnConfig.ConnectTimeout = 5 * time.Second
	}

	config.ConnConfig.Logger = &pgDebugLogAdapter{
		Logger: log.With(logger, "submodule", "postgres"),
	}

	config.AfterConnect = func(ctx context.Context, c *pgx.Conn) error {
		level.Debug(logger).Log("event", "new db connection")

		for _, q := range []string{
			`set timezone='UTC'`,
			`set lock_timeout='5s'`,
			`set statement_timeout='5s'`,
		} {
			if _, err := c.Exec(ctx, q); err != nil {
				return fmt.Errorf("db connection setup query %q: %w", q, err)
			}
		}

		return nil
	}

	level.Debug(logger).Log("msg", "connecting")

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	{
		var (
			user = config.ConnConfig.User
			host = config.ConnConfig.Host
			name = config.ConnConfig.Database
			fn   = func() stat { return pool.Stat() }
			pc   = newPoolCollector(user, host, name, fn)
		)
		if err := prometheus.Register(pc); err != nil {
			return nil, fmt.Errorf("metrics registration failed: %w", err)
		}
	}

	defer func() {
		if err != nil {
			pool.Close()
		}
	}()

	if err = pool.AcquireFunc(ctx, func(c *pgxpool.Conn) error {
		return migrateDB(ctx, c.Conn(), logger)
	}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Store{db: pool, logger: logger}, nil
}

func (s *Store) Close() error {
	switch x := s.db.(type) {
	case *pgx.Conn:
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return x.Close(ctx)
	case *pgxpool.Pool:
		x.Close()
		return nil
	case pgx.Tx:
		return nil
	default:
		return fmt.Errorf("close with unknown DB type %T", s.db)
	}
}

func migrateDB(ctx context.Context, conn *pgx.Conn, logger log.Logger) error {
	level.Debug(logger).Log("msg", "NewMigratorEx")

	m, err := migrate.NewMigratorEx(ctx, conn, "public.schema_version", &migrate.MigratorOptions{
		MigratorFS: migrations.FS,
	})
	if err != nil {
		return fmt.Errorf("new migrator: %w", err)
	}

	level.Debug(logger).Log("msg", "LoadMigrations")

	if err = m.LoadMigrations("."); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	level.Debug(logger).Log("msg", "Migrate")

	if err = m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	level.Debug(logger).Log("msg", "done")

	return nil
}

func (s *Store) Transact(ctx context.Context, f func(store.Store) error) error {
	defer func(begin time.Time) {
		level.Debug(s.logger).Log("op", "Transact", "took", time.Since(begin))
	}(time.Now())

	retryable := func(err error) bool {
		if pgerr := &(pgconn.PgError{}); errors.As(err, &pgerr) {
			if pgerr.Code == "40001" { // concurrent updates
				return true
			}
		}
		return false
	}

	var err error
	for try, max := 1, 3; try <= max; try++ {
		err = s.transactDirect(ctx, f)
		switch {
		case err == nil:
			return nil
		case retryable(err):
			level.Debug(s.logger).Log("op", "Transact", "err", err, "retryable", true, "attempt", fmt.Sprintf("%d/%d", try, max))
		default:
			return err
		}
	}

	return err
}

func (s *Store) transactDirect(ctx context.Context, f func(store.Store) error) error {
	var entered time.Time
	defer func(begin time.Time) {
		if !entered.IsZero() {
			metrics.OpWait("pgstore_transactdirect", entered.Sub(begin))
		}
	}(time.Now())

	switch x := s.db.(type) {
	case *pgx.Conn:
		return x.BeginTxFunc(ctx, pgx.TxOptions{
			IsoLevel: pgx.Serializable,
		}, func(tx pgx.Tx) error {
			entered = time.Now()
			return f(&Store{
				db:     tx,
				logger: s.logger,
			})
		})

	case *pgxpool.Pool:
		return x.BeginTxFunc(ctx, pgx.TxOptions{
			IsoLevel: pgx.Serializable,
		}, func(tx pgx.Tx) error {
			entered = time.Now()
			return f(&Store{
				db:     tx,
				logger: s.logger,
			})
		})

	case pgx.Tx:
		return x.BeginFunc(ctx, func(tx pgx.Tx) error {
			entered = time.Now()
			return f(&Store{
				db:     tx,
				logger: s.logger,
			})
		})

	default:
		return fmt.Errorf("unknown DB type %T", s.db)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRow(ctx, `select 1`).Scan(&n)
}

const cleanupEventsQuery = `
delete from settlement_events
where
  processed
  and created_at <= now() - '90 days'::interval
`

func (s *Store) Cleanup(ctx context.Context) error {
	status, err := s.db.Exec(ctx, cleanupEventsQuery)
	if err != nil {
		return fmt.Errorf("cleanup settlement events: %w", err)
	}

	level.Debug(s.logger).Log("op", "Cleanup", "deleted_events", status.RowsAffected())

	return nil
}

//
// settlement events
//

const insertSettlementEventQuery = `
insert into settlement_events
(
	block_number,
	log_index,
	tx_hash
)
values ($1, $2, $3)
on conflict (block_number, log_index) do nothing
`

func (s *Store) InsertSettlementEvent(ctx context.Context, e *store.SettlementEvent) error {
	if _, err := s.db.Exec(ctx, insertSettlementEventQuery,
		e.BlockNumber,
		e.LogIndex,
		e.TxHash,
	); err != nil {
		return fmt.Errorf("insert settlement event: %w", err)
	}

	return nil
}

const updateSettlementEventQuery = `
update settlement_events
set
	processed  = $3,
	auction_id = $4,
	updated_at = now()
where
	block_number = $1
	and log_index = $2
`

func (s *Store) UpdateSettlementEvent(ctx context.Context, e *store.SettlementEvent) error {
	result, err := s.db.Exec(ctx, updateSettlementEventQuery,
		e.BlockNumber,
		e.LogIndex,
		e.Processed,
		e.AuctionID,
	)
	if err != nil {
		return fmt.Errorf("update settlement event: %w", err)
	}

	if result.RowsAffected() != 1 {
		return store.ErrNotFound
	}

	return nil
}

const nextUnprocessedSettlementEventQuery = `
select
	block_number,
	log_index,
	tx_hash,
	processed,
	auction_id,
	created_at,
	updated_at
from
	settlement_events
where
	not processed
order by
	(block_number, log_index) asc
limit 1
`

func (s *Store) NextUnprocessedSettlementEvent(ctx context.Context) (*store.SettlementEvent, error) {
	var e store.SettlementEvent
	err := s.db.QueryRow(ctx, nextUnprocessedSettlementEventQuery).Scan(
		&e.BlockNumber,
		&e.LogIndex,
		&e.TxHash,
		&e.Processed,
		&e.AuctionID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, convertError(err)
	}
	return &e, nil
}

//
// settlement outcomes
//

const saveSettlementOutcomeQuery = `
insert into settlement_outcomes
(
	block_number,
	log_index,
	auction_id,
	solver,
	score,
	violations
)
values ($1, $2, $3, $4, $5, $6)
on conflict (block_number, log_index) do update
set
	auction_id = excluded.auction_id,
	solver     = excluded.solver,
	score      = excluded.score,
	violations = excluded.violations
returning
	created_at
`

func (s *Store) SaveSettlementOutcome(ctx context.Context, o *store.SettlementOutcome) error {
	return s.db.QueryRow(ctx, saveSettlementOutcomeQuery,
		o.BlockNumber,
		o.LogIndex,
		o.AuctionID,
		o.Solver,
		nullStr(o.Score),
		o.Violations,
	).Scan(&o.CreatedAt)
}

const listSettlementOutcomesQuery = `
select
	block_number,
	log_index,
	auction_id,
	solver,
	coalesce(score, ''),
	violations,
	created_at
from
	settlement_outcomes
where
	auction_id = $1
order by
	(block_number, log_index) asc
`

func (s *Store) ListSettlementOutcomes(ctx context.Context, auctionID int64) ([]*store.SettlementOutcome, error) {
	rows, err := s.db.Query(ctx, listSettlementOutcomesQuery, auctionID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var os []*store.SettlementOutcome
	for rows.Next() {
		var o store.SettlementOutcome
		if err = rows.Scan(
			&o.BlockNumber,
			&o.LogIndex,
			&o.AuctionID,
			&o.Solver,
			&o.Score,
			&o.Violations,
			&o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		os = append(os, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan err: %w", err)
	}

	return os, nil
}

//
// competitions
//

const upsertCompetitionQuery = `
insert into competitions
(
	auction_id,
	winner,
	winner_score,
	deadline,
	promised_calldata,
	prices,
	fee_policies,
	participants,
	reference_score
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
on conflict (auction_id) do update
set
	winner            = excluded.winner,
	winner_score      = excluded.winner_score,
	deadline          = excluded.deadline,
	promised_calldata = excluded.promised_calldata,
	prices            = excluded.prices,
	fee_policies      = excluded.fee_policies,
	participants      = excluded.participants,
	reference_score   = excluded.reference_score,
	updated_at        = now()
returning
	created_at,
	updated_at
`

func (s *Store) UpsertCompetition(ctx context.Context, c *store.Competition) error {
	return s.db.QueryRow(ctx, upsertCompetitionQuery,
		c.AuctionID,
		c.Winner,
		c.WinnerScore,
		c.Deadline,
		c.PromisedCalldata,
		c.Prices,
		c.FeePolicies,
		c.Participants,
		c.ReferenceScore,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

const selectCompetitionQuery = `
select
	auction_id,
	winner,
	winner_score,
	deadline,
	promised_calldata,
	prices,
	fee_policies,
	participants,
	reference_score,
	created_at,
	updated_at
from
	competitions
where
	auction_id = $1
`

func (s *Store) SelectCompetition(ctx context.Context, auctionID int64) (*store.Competition, error) {
	var c store.Competition
	err := s.db.QueryRow(ctx, selectCompetitionQuery, auctionID).Scan(
		&c.AuctionID,
		&c.Winner,
		&c.WinnerScore,
		&c.Deadline,
		&c.PromisedCalldata,
		&c.Prices,
		&c.FeePolicies,
		&c.Participants,
		&c.ReferenceScore,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, convertError(err)
	}
	return &c, nil
}

const listNonSettlingSolversQuery = `
with expired as (
	select auction_id, lower(winner) as winner
	from competitions
	where deadline <= $2
	order by auction_id desc
	limit $1
)
select distinct e.winner
from expired e
where not exists (
	select 1
	from settlement_outcomes o
	where
		o.auction_id = e.auction_id
		and lower(o.solver) = e.winner
)
order by e.winner asc
`

func (s *Store) ListNonSettlingSolvers(ctx context.Context, lastAuctionsCount uint32, currentBlock uint64) ([]string, error) {
	rows, err := s.db.Query(ctx, listNonSettlingSolversQuery, lastAuctionsCount, currentBlock)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var solvers []string
	for rows.Next() {
		var solver string
		if err = rows.Scan(&solver); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		solvers = append(solvers, solver)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan err: %w", err)
	}

	return solvers, nil
}

//
//
//

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func convertError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

//
//
//

type pgDebugLogAdapter struct{ log.Logger }

func (a *pgDebugLogAdapter) Log(ctx context.Context, pgxlevel pgx.LogLevel, msg string, data map[string]interface{}) {
	keyvals := []interface{}{
		"pgxlevel", pgxlevel.String(),
		"msg", msg,
	}
	for k, v := range data {
		keyvals = append(keyvals, k, fmt.Sprintf("%v", v))
	}
	level.Debug(a.Logger).Log(keyvals...)
}
