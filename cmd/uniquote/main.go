package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"uniquote/internal/chain"
	"uniquote/internal/config"
)

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "uniquote",
		Short:        "Uniswap V3 spot prices and quotes",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newPriceCmd(),
		newQuoteCmd(),
		newWatchCmd(),
		newServeCmd(),
		newDiscoverCmd(),
		newHistoryCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// connect dials the RPC endpoint and reads its chain ID.
func connect(ctx context.Context, rpcURL string, opts chain.Options) (*chain.Client, uint64, error) {
	if rpcURL == "" {
		return nil, 0, fmt.Errorf("rpc url is required")
	}
	client, err := chain.NewClient(ctx, rpcURL, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("connect rpc: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, 0, err
	}
	return client, chainID, nil
}

// ignoreCanceled treats shutdown by signal as success.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func addRetryFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-retries", config.DefaultMaxRetries, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", config.DefaultRetryBackoff, "initial retry backoff")
}

func addLogLevelFlag(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addPollFlag(cmd *cobra.Command) {
	cmd.Flags().Duration("poll-interval", 12*time.Second, "block poll interval when subscriptions are unsupported")
}
