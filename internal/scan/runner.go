package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"uniquote/internal/observability"
)

// LogSource is the part of the chain client a Runner needs.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Handler consumes the deduplicated logs of one block range. The range is
// checkpointed only after the handler returns nil.
type Handler func(ctx context.Context, blockRange BlockRange, logs []types.Log) error

// RunConfig holds runtime settings for a log scan.
type RunConfig struct {
	// Name labels logs and metrics, e.g. "discover" or "history".
	Name         string
	FromBlock    uint64
	ToBlock      uint64
	Addresses    []common.Address
	Topic0       []common.Hash
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner streams logs from the chain in batches and hands them to a Handler.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	handler    Handler
	checkpoint Checkpointer
	logger     *zap.Logger
	metrics    *observability.Metrics
	seen       map[string]struct{}
}

// NewRunner builds a Runner. A nil checkpoint disables resume.
func NewRunner(cfg RunConfig, source LogSource, handler Handler, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "scan"
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		handler:    handler,
		checkpoint: checkpoint,
		logger:     logger.With(zap.String("scanner", cfg.Name)),
		seen:       make(map[string]struct{}),
	}
}

// WithMetrics attaches Prometheus collectors.
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// Run executes the scan loop until the target block is reached.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.handler == nil {
		return fmt.Errorf("log handler is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := withRetry(ctx, r, "latest_block", func() (uint64, error) {
			return r.source.LatestBlockNumber(ctx)
		})
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		fresh := make([]types.Log, 0, len(logs))
		for _, log := range logs {
			if log.Removed || r.isDuplicate(log) {
				continue
			}
			fresh = append(fresh, log)
		}

		if err := r.handler(ctx, blockRange, fresh); err != nil {
			return fmt.Errorf("handle logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return err
			}
		}

		if r.metrics != nil {
			r.metrics.LogsScanned.WithLabelValues(r.cfg.Name).Add(float64(len(fresh)))
			r.metrics.ScanLastBlock.WithLabelValues(r.cfg.Name).Set(float64(blockRange.To))
		}
		r.logger.Info("batch complete", zap.Int("logs", len(fresh)), zap.Uint64("blocks", blockRange.Blocks()), zap.Uint64("to", blockRange.To))
	}

	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, blockRange BlockRange) ([]types.Log, error) {
	return withRetry(ctx, r, "filter_logs", func() ([]types.Log, error) {
		logs, err := r.source.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return logs, err
	})
}

func withRetry[T any](ctx context.Context, r *Runner, operation string, fn func() (T, error)) (T, error) {
	attempts := uint(1)
	if r.cfg.MaxRetries > 0 {
		attempts += uint(r.cfg.MaxRetries)
	}
	return retry.DoWithData(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(r.cfg.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(uint, error) {
			if r.metrics != nil {
				r.metrics.RPCRetries.WithLabelValues(operation).Inc()
			}
		}),
	)
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
