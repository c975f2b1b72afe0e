package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"arbiter/api"
	"arbiter/build"
	"arbiter/chain"
	"arbiter/competition"
	"arbiter/debug"
	"arbiter/settlement"
	"arbiter/store"
	"arbiter/store/memstore"
	"arbiter/store/pgstore"
	"arbiter/zeth"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v3"
)

const (
	defaultSettlementAddr    = "0x9008D19f58AAbD9eD0D60971565AA8510560ab41"
	defaultAuthenticatorAddr = "0x2c4c28DDBdAc9C5E7055b4C863b72eA0149D8aFE"
)

func main() {
	err := runMain(context.Background(), os.Args[1:])
	switch {
	case err == nil:
		os.Exit(0)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	case isSignalError(err):
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runMain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("arbiter", flag.ContinueOnError)
	var (
		apiAddr              = fs.String("api-addr", ":4417", "public API HTTP server address")
		debugAddr            = fs.String("debug-addr", ":4418", "private debug HTTP server address")
		ethRPCAddr           = fs.String("eth-rpc-addr", "", "Ethereum JSON-RPC address (required)")
		settlementAddr       = fs.String("settlement-addr", defaultSettlementAddr, "settlement contract address")
		authenticatorAddr    = fs.String("authenticator-addr", defaultAuthenticatorAddr, "solver authenticator contract address")
		storeConnStr         = fs.String("store-conn-str", "mem://store", "store connection string")
		storeCleanupInterval = fs.Duration("store-cleanup-interval", time.Minute, "how often to clean up the store")
		storeMetricsInterval = fs.Duration("store-metrics-interval", 10*time.Second, "how often to update store metrics")
		observerInterval     = fs.Duration("observer-interval", 10*time.Second, "how often to process pending settlement events")
		banTTL               = fs.Duration("ban-ttl", time.Hour, "how long non-settling solvers stay banned")
		banGCInterval        = fs.Duration("ban-gc-interval", 10*time.Minute, "how often to sweep expired bans")
		nonSettlingWindow    = fs.Uint("non-settling-window", 100, "how many recent auctions to inspect for non-settling winners")
		version              = fs.Bool("version", false, "print version information and exit")
		logLevel             = fs.String("log-level", "info", "debug, info, warn, error")
		_                    = fs.String("config", "", "config file")
	)
	if err := ff.Parse(fs, args,
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("ARBITER"),
	); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *version {
		fmt.Fprintf(os.Stdout, "arbiter version %s date %s\n", build.Version, build.Date)
		return nil
	}

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = level.NewFilter(logger, level.Allow(level.ParseDefault(*logLevel, level.InfoValue())))
	}

	level.Info(logger).Log("program", "arbiter", "build_version", build.Version, "build_date", build.Date)

	if *ethRPCAddr == "" {
		return fmt.Errorf("missing -eth-rpc-addr")
	}
	if !common.IsHexAddress(*settlementAddr) {
		return fmt.Errorf("invalid -settlement-addr %q", *settlementAddr)
	}
	if !common.IsHexAddress(*authenticatorAddr) {
		return fmt.Errorf("invalid -authenticator-addr %q", *authenticatorAddr)
	}

	var st store.Store
	{
		switch {
		case strings.HasPrefix(*storeConnStr, "postgres"):
			level.Info(logger).Log("store", "postgres")
			s, err := pgstore.NewStore(ctx, *storeConnStr, log.With(logger, "module", "store"))
			if err != nil {
				return fmt.Errorf("create Postgres store: %w", err)
			}
			defer func() {
				level.Debug(logger).Log("msg", "closing Postgres store")
				if err := s.Close(); err != nil {
					level.Error(logger).Log("msg", "close Postgres store failed", "err", err)
				}
			}()
			st = s

		default:
			level.Warn(logger).Log("store", "in-memory")
			st = memstore.NewStore()
		}
	}

	var settlementChain chain.Chain
	{
		c, err := zeth.Dial(ctx, *ethRPCAddr, common.HexToAddress(*settlementAddr), common.HexToAddress(*authenticatorAddr))
		if err != nil {
			return fmt.Errorf("dial chain: %w", err)
		}
		defer c.Close()

		level.Info(logger).Log("chain_id", c.ID(), "settlement", *settlementAddr, "authenticator", *authenticatorAddr)

		settlementChain = chain.WithCaches(c)
	}

	var (
		guard    = competition.NewGuard(settlementChain, st, *banTTL, uint32(*nonSettlingWindow), log.With(logger, "module", "guard"))
		observer = settlement.NewObserver(settlementChain, st, guard, log.With(logger, "module", "observer"))
	)

	var g run.Group

	{
		logger := log.With(logger, "module", "api")
		handler := api.NewHandler(st, guard, logger)
		server := &http.Server{Handler: handler, Addr: *apiAddr}
		g.Add(func() error {
			level.Info(logger).Log("api_addr", *apiAddr)
			return server.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		logger := log.With(logger, "module", "debug")
		server := &http.Server{Handler: debug.NewHandler(), Addr: *debugAddr}
		g.Add(func() error {
			level.Info(logger).Log("debug_addr", *debugAddr)
			return server.ListenAndServe()
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(log.With(logger, "module", "observer")).Log("interval", *observerInterval)
			return observer.Run(ctx, *observerInterval)
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return guard.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	{
		logger := log.With(logger, "module", "store_cleanup")
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(logger).Log("interval", *storeCleanupInterval)
			ticker := time.NewTicker(*storeCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := st.Cleanup(ctx); err != nil {
						level.Error(logger).Log("err", err)
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	{
		logger := log.With(logger, "module", "store_metrics")
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Info(logger).Log("interval", *storeMetricsInterval)
			ticker := time.NewTicker(*storeMetricsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					currentBlock, err := settlementChain.LatestBlock(ctx)
					if err != nil {
						level.Error(logger).Log("err", err)
						continue
					}
					if err := store.UpdateMetrics(ctx, st, uint32(*nonSettlingWindow), currentBlock); err != nil {
						level.Error(logger).Log("err", err)
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			ticker := time.NewTicker(*banGCInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					guard.CollectGarbage()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))
	}

	level.Debug(logger).Log("msg", "running")

	return g.Run()
}

func isSignalError(err error) bool {
	var (
		sigErrVal run.SignalError
		sigErrPtr *run.SignalError
	)
	return errors.As(err, &sigErrVal) || errors.As(err, &sigErrPtr)
}
