package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"uniquote/internal/chain"
	"uniquote/internal/config"
	"uniquote/internal/dex"
	"uniquote/internal/scan"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Price every Swap of a pool over a block range",
		RunE:  runHistory,
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Int("digits", config.DefaultDigits, "significant digits")
	addScanFlags(cmd, "./data/price_points.jsonl", "./data/history_checkpoint.json")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadHistory(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Pool == "" {
		return fmt.Errorf("pool is required")
	}
	pool, err := scan.ParseAddress(cfg.Pool)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	client, chainID, err := connect(ctx, cfg.RPCURL, chain.Options{MaxRetries: cfg.MaxRetries, RetryBackoff: cfg.RetryBackoff, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	sink, store, closeSink, err := openScanSink(ctx, cfg.ScanConfig)
	if err != nil {
		return err
	}
	defer closeSink()

	source := dex.NewChainSource(client, nil, nil, logger)
	token0, token1, err := source.PoolTokens(ctx, pool)
	if err != nil {
		return err
	}
	if token0.Decimals == nil || token1.Decimals == nil {
		logger.Warn("token decimals missing, swaps will be skipped",
			zap.String("token0", token0.Address),
			zap.String("token1", token1.Address),
		)
	}

	topic, err := dex.SwapTopic()
	if err != nil {
		return err
	}

	history := scan.NewSwapHistory(token0, token1, cfg.Digits, sink, logger).WithBlockTimes(client)
	name := "history:" + strings.ToLower(pool.Hex())
	runner := scan.NewRunner(scan.RunConfig{
		Name:         "history",
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		Addresses:    []common.Address{pool},
		Topic0:       []common.Hash{topic},
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, history.HandleLogs, checkpointFor(cfg.ScanConfig, store, name), logger)

	logger.Info("history start",
		zap.Uint64("chain_id", chainID),
		zap.String("pool", pool.Hex()),
		zap.String("token0", token0.DisplayName()),
		zap.String("token1", token1.DisplayName()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", config.RedactDSN(cfg.PGDSN)),
	)

	return ignoreCanceled(runner.Run(ctx))
}
