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
	"uniquote/internal/model"
	"uniquote/internal/quote"
	"uniquote/internal/scan"
)

type quoteOutput struct {
	Quote model.Quote      `json:"quote"`
	Swap  *model.SwapQuote `json:"swap,omitempty"`
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price one pool from its slot0, optionally simulating a swap",
		RunE:  runQuote,
	}
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("factory", config.DefaultFactory, "factory used to resolve the pool from token-in/token-out/fee")
	cmd.Flags().String("token-in", "", "input token address")
	cmd.Flags().String("token-out", "", "output token address")
	cmd.Flags().Uint32("fee", config.DefaultFee, "pool fee tier in hundredths of a bip")
	cmd.Flags().String("amount", "", "readable input amount to simulate with the quoter (e.g. 1.5)")
	cmd.Flags().String("quoter", config.DefaultQuoter, "quoter contract address")
	cmd.Flags().Uint64("block", 0, "block number to read at, 0 means latest")
	cmd.Flags().Int("digits", config.DefaultDigits, "significant digits")
	addLogLevelFlag(cmd)
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
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

	client, chainID, err := connect(ctx, cfg.RPCURL, chain.Options{
		MaxRetries:   config.DefaultMaxRetries,
		RetryBackoff: config.DefaultRetryBackoff,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	quoterAddr, err := scan.ParseAddress(cfg.Quoter)
	if err != nil {
		return fmt.Errorf("quoter: %w", err)
	}

	source := dex.NewChainSource(client, nil, nil, logger)
	svc := quote.NewService(quote.Config{ChainID: chainID, Digits: cfg.Digits}, source, dex.NewQuoter(client, quoterAddr), nil, logger)

	pool, tokenIn, tokenOut, fee, err := resolvePool(ctx, cfg, client, source)
	if err != nil {
		return err
	}

	logger.Debug("quote start",
		zap.Uint64("chain_id", chainID),
		zap.String("pool", pool.Hex()),
		zap.Uint64("block", cfg.Block),
	)

	var out quoteOutput
	if cfg.Block > 0 {
		out.Quote, err = svc.QuoteAtBlock(ctx, pool, cfg.Block)
	} else {
		out.Quote, err = svc.Quote(ctx, pool)
	}
	if err != nil {
		return err
	}

	if cfg.Amount != "" {
		swap, err := svc.QuoteSwap(ctx, tokenIn, tokenOut, fee, cfg.Amount)
		if err != nil {
			return err
		}
		out.Swap = &swap
	}

	return writeJSON(cmd, out)
}

// resolvePool returns the pool to quote and the swap direction. An explicit
// pool swaps token0 for token1 unless token-in says otherwise; without one
// the pool is looked up on the factory.
func resolvePool(ctx context.Context, cfg config.QuoteConfig, caller dex.Caller, source *dex.ChainSource) (pool, tokenIn, tokenOut common.Address, fee uint32, err error) {
	if cfg.Pool != "" {
		pool, err = scan.ParseAddress(cfg.Pool)
		if err != nil {
			return pool, tokenIn, tokenOut, 0, fmt.Errorf("pool: %w", err)
		}
		meta, err := source.PoolMeta(ctx, pool)
		if err != nil {
			return pool, tokenIn, tokenOut, 0, err
		}
		tokenIn, tokenOut = common.HexToAddress(meta.Token0), common.HexToAddress(meta.Token1)
		if cfg.TokenIn != "" {
			in, err := scan.ParseAddress(cfg.TokenIn)
			if err != nil {
				return pool, tokenIn, tokenOut, 0, fmt.Errorf("token-in: %w", err)
			}
			if in == tokenOut {
				tokenIn, tokenOut = tokenOut, tokenIn
			}
		}
		return pool, tokenIn, tokenOut, meta.Fee, nil
	}

	if cfg.TokenIn == "" || cfg.TokenOut == "" {
		return pool, tokenIn, tokenOut, 0, fmt.Errorf("pool or token-in and token-out are required")
	}
	if tokenIn, err = scan.ParseAddress(cfg.TokenIn); err != nil {
		return pool, tokenIn, tokenOut, 0, fmt.Errorf("token-in: %w", err)
	}
	if tokenOut, err = scan.ParseAddress(cfg.TokenOut); err != nil {
		return pool, tokenIn, tokenOut, 0, fmt.Errorf("token-out: %w", err)
	}
	factory, err := scan.ParseAddress(cfg.Factory)
	if err != nil {
		return pool, tokenIn, tokenOut, 0, fmt.Errorf("factory: %w", err)
	}
	pool, err = dex.GetPool(ctx, caller, factory, tokenIn, tokenOut, cfg.Fee)
	if err != nil {
		return pool, tokenIn, tokenOut, 0, err
	}
	return pool, tokenIn, tokenOut, cfg.Fee, nil
}
