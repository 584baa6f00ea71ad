package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uniquote/internal/chain"
	"uniquote/internal/config"
	"uniquote/internal/dex"
	"uniquote/internal/scan"
	"uniquote/internal/storage"
	"uniquote/internal/storage/postgres"
)

// The public Uniswap V3 subgraph indexes mainnet.
const mainnetChainID = 1

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover pools from factory PoolCreated logs or a subgraph",
		RunE:  runDiscover,
	}
	cmd.Flags().String("factory", config.DefaultFactory, "factory address")
	cmd.Flags().Bool("fetch-tokens", true, "read token symbol and decimals for discovered pools")
	cmd.Flags().Bool("subgraph", false, "list pools from the subgraph instead of scanning logs")
	cmd.Flags().String("subgraph-url", config.DefaultSubgraphURL, "subgraph GraphQL endpoint")
	cmd.Flags().Int("subgraph-limit", 1000, "maximum pools to fetch from the subgraph")
	addScanFlags(cmd, "./data/pools.jsonl", "./data/discover_checkpoint.json")
	return cmd
}

func addScanFlags(cmd *cobra.Command, out, checkpoint string) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", config.DefaultBatchSize, "blocks per batch")
	cmd.Flags().String("out", out, "output JSONL path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; when set results and checkpoints go to Postgres")
	cmd.Flags().String("checkpoint", checkpoint, "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	addRetryFlags(cmd)
	addLogLevelFlag(cmd)
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDiscover(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	sink, store, closeSink, err := openScanSink(ctx, cfg.ScanConfig)
	if err != nil {
		return err
	}
	defer closeSink()

	if cfg.Subgraph {
		return ignoreCanceled(discoverFromSubgraph(ctx, cfg, sink, logger))
	}

	client, chainID, err := connect(ctx, cfg.RPCURL, chain.Options{MaxRetries: cfg.MaxRetries, RetryBackoff: cfg.RetryBackoff, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	factory, err := scan.ParseAddress(cfg.Factory)
	if err != nil {
		return fmt.Errorf("factory: %w", err)
	}
	topic, err := dex.PoolCreatedTopic()
	if err != nil {
		return err
	}

	var tokens scan.TokenResolver
	if cfg.FetchTokens {
		tokens = dex.NewChainSource(client, nil, nil, logger)
	}
	discoverer := scan.NewPoolDiscoverer(chainID, scan.NewRegistry(), tokens, sink, logger)

	name := "discover:" + strings.ToLower(factory.Hex())
	runner := scan.NewRunner(scan.RunConfig{
		Name:         "discover",
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		Addresses:    []common.Address{factory},
		Topic0:       []common.Hash{topic},
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, discoverer.HandleLogs, checkpointFor(cfg.ScanConfig, store, name), logger)

	logger.Info("discover start",
		zap.Uint64("chain_id", chainID),
		zap.String("factory", factory.Hex()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", config.RedactDSN(cfg.PGDSN)),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	if err := runner.Run(ctx); err != nil {
		return ignoreCanceled(err)
	}
	logger.Info("discover complete",
		zap.Int("pools", discoverer.Registry().Len()),
		zap.Int("tokens", discoverer.Registry().Tokens()),
	)
	return nil
}

func discoverFromSubgraph(ctx context.Context, cfg config.DiscoverConfig, sink scan.PoolSink, logger *zap.Logger) error {
	chainID := uint64(mainnetChainID)
	if cfg.RPCURL != "" {
		client, id, err := connect(ctx, cfg.RPCURL, chain.Options{Logger: logger})
		if err != nil {
			return err
		}
		client.Close()
		chainID = id
	}

	client := scan.NewSubgraphClient(cfg.SubgraphURL, nil, logger)
	pools, err := client.FetchPools(ctx, chainID, cfg.SubgraphLimit)
	if err != nil {
		return err
	}

	registry := scan.NewRegistry()
	for _, pool := range pools {
		registry.AddPool(pool)
	}
	if err := sink.PutPools(ctx, registry.Pools()); err != nil {
		return fmt.Errorf("store pools: %w", err)
	}

	logger.Info("subgraph pools stored",
		zap.String("url", cfg.SubgraphURL),
		zap.Int("pools", registry.Len()),
	)
	return nil
}

// openScanSink returns the result sink for a scan. store is non-nil when
// results go to Postgres, so checkpoints can live there too.
func openScanSink(ctx context.Context, cfg config.ScanConfig) (storage.Storage, *postgres.Store, func(), error) {
	if cfg.PGDSN == "" {
		if cfg.Out == "" {
			return nil, nil, nil, fmt.Errorf("out path or pg dsn is required")
		}
		return storage.NewJsonlStorage(cfg.Out), nil, func() {}, nil
	}
	store, err := openStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, store, store.Close, nil
}

func checkpointFor(cfg config.ScanConfig, store *postgres.Store, name string) scan.Checkpointer {
	if !cfg.CheckpointEnabled {
		return nil
	}
	if store != nil {
		return scan.NewDBCheckpoint(store, name)
	}
	return scan.NewFileCheckpoint(cfg.Checkpoint, name, true)
}
