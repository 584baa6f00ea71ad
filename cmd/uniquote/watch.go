package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uniquote/internal/chain"
	"uniquote/internal/config"
	"uniquote/internal/dex"
	"uniquote/internal/quote"
	"uniquote/internal/scan"
	"uniquote/internal/storage"
	"uniquote/internal/storage/postgres"
	"uniquote/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-quote pools on every new block",
		RunE:  runWatch,
	}
	cmd.Flags().String("rpc", "", "RPC URL (ws(s) for head subscriptions)")
	cmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	cmd.Flags().String("out", "./data/quotes.jsonl", "output JSONL path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; when set quotes go to Postgres instead of JSONL")
	cmd.Flags().Int("digits", config.DefaultDigits, "significant digits")
	cmd.Flags().Int("concurrency", 4, "pools quoted concurrently per block")
	addPollFlag(cmd)
	addRetryFlags(cmd)
	addLogLevelFlag(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pools, err := scan.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("pool list is required")
	}

	ctx, stop := signalContext()
	defer stop()

	client, chainID, err := connect(ctx, cfg.RPCURL, chain.Options{MaxRetries: cfg.MaxRetries, RetryBackoff: cfg.RetryBackoff, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	sink, closeSink, err := openQuoteSink(ctx, cfg.PGDSN, cfg.Out)
	if err != nil {
		return err
	}
	defer closeSink()

	source := dex.NewChainSource(client, nil, nil, logger)
	svc := quote.NewService(quote.Config{ChainID: chainID, Digits: cfg.Digits}, source, nil, nil, logger)

	watcher := watch.NewWatcher(watch.Config{
		Pools:        pools,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PollInterval: cfg.PollInterval,
		Concurrency:  cfg.Concurrency,
	}, client, svc, nil, logger, sink)

	logger.Info("watch start",
		zap.Uint64("chain_id", chainID),
		zap.Int("pools", len(pools)),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", config.RedactDSN(cfg.PGDSN)),
	)

	return ignoreCanceled(watcher.Run(ctx))
}

// openQuoteSink returns Postgres when dsn is set and a JSONL file otherwise.
func openQuoteSink(ctx context.Context, dsn, out string) (storage.Storage, func(), error) {
	if dsn == "" {
		if out == "" {
			return nil, nil, fmt.Errorf("out path or pg dsn is required")
		}
		return storage.NewJsonlStorage(out), func() {}, nil
	}
	store, err := openStore(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func openStore(ctx context.Context, dsn string) (*postgres.Store, error) {
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func addressOrZero(input string) (common.Address, error) {
	if input == "" {
		return common.Address{}, nil
	}
	return scan.ParseAddress(input)
}
