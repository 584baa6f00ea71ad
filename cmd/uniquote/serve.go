package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"uniquote/internal/chain"
	"uniquote/internal/config"
	"uniquote/internal/dex"
	"uniquote/internal/observability"
	"uniquote/internal/quote"
	"uniquote/internal/server"
	redisstore "uniquote/internal/storage/redis"
	"uniquote/internal/watch"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pool quotes over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("listen", config.DefaultListen, "HTTP listen address")
	cmd.Flags().String("pool", "", "pool served on /uniswap3")
	cmd.Flags().String("base", "", "token whose unit price /uniswap3 reports; empty reports both directions")
	cmd.Flags().Int("digits", config.DefaultDigits, "significant digits")
	cmd.Flags().Duration("request-timeout", 0, "per-request quote timeout (default 10s)")
	cmd.Flags().String("redis-addr", "", "Redis address for the quote cache; empty disables caching")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL, "quote cache TTL")
	cmd.Flags().Bool("watch", false, "refresh the cache on every new block (requires redis-addr and pool)")
	addPollFlag(cmd)
	addRetryFlags(cmd)
	addLogLevelFlag(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := addressOrZero(cfg.Pool)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	base, err := addressOrZero(cfg.Base)
	if err != nil {
		return fmt.Errorf("base: %w", err)
	}
	if cfg.Watch && (cfg.RedisAddr == "" || pool == (common.Address{})) {
		return fmt.Errorf("watch requires redis-addr and pool")
	}

	ctx, stop := signalContext()
	defer stop()

	metrics := observability.NewMetrics("uniquote")
	client, chainID, err := connect(ctx, cfg.RPCURL, chain.Options{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	source := dex.NewChainSource(client, nil, nil, logger)
	svc := quote.NewService(quote.Config{ChainID: chainID, Digits: cfg.Digits}, source, nil, metrics, logger)

	var cache server.QuoteCache
	if cfg.RedisAddr != "" {
		rdb, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		cache = redisstore.NewQuoteCache(rdb, cfg.CacheTTL)
	}

	srv := server.NewServer(server.Config{
		Pool:           pool,
		Base:           base,
		RequestTimeout: cfg.RequestTimeout,
	}, svc, cache, metrics, logger)

	logger.Info("serve start",
		zap.Uint64("chain_id", chainID),
		zap.String("listen", cfg.Listen),
		zap.String("pool", cfg.Pool),
		zap.Bool("cache", cache != nil),
		zap.Bool("watch", cfg.Watch),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Listen)
	})
	if cfg.Watch {
		watcher := watch.NewWatcher(watch.Config{
			Pools:        []common.Address{pool},
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			PollInterval: cfg.PollInterval,
			Concurrency:  1,
		}, client, svc, metrics, logger, server.NewCacheSink(cache))
		g.Go(func() error {
			return ignoreCanceled(watcher.Run(ctx))
		})
	}

	return ignoreCanceled(g.Wait())
}
