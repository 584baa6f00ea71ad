package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"uniquote/internal/model"
	"uniquote/internal/observability"
	"uniquote/internal/price"
)

// HeadSource delivers new block headers. *chain.Client satisfies it.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// BlockQuoter prices a pool as of a block. *quote.Service satisfies it.
type BlockQuoter interface {
	QuoteAtBlock(ctx context.Context, pool common.Address, block uint64) (model.Quote, error)
}

// QuoteSink receives the quotes produced for each block.
type QuoteSink interface {
	PutQuotes(ctx context.Context, quotes []model.Quote) error
}

// Config holds watcher settings.
type Config struct {
	Pools        []common.Address
	MaxRetries   int
	RetryBackoff time.Duration
	// PollInterval is used when the node does not support subscriptions.
	PollInterval time.Duration
	// Concurrency bounds the number of pools quoted at once.
	Concurrency int
}

// Watcher re-quotes a set of pools on every new block.
type Watcher struct {
	cfg     Config
	heads   HeadSource
	quoter  BlockQuoter
	sinks   []QuoteSink
	metrics *observability.Metrics
	logger  *zap.Logger
	last    uint64
}

func NewWatcher(cfg Config, heads HeadSource, quoter BlockQuoter, metrics *observability.Metrics, logger *zap.Logger, sinks ...QuoteSink) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{cfg: cfg, heads: heads, quoter: quoter, sinks: sinks, metrics: metrics, logger: logger}
}

// Run follows new heads until ctx is cancelled. A dropped subscription is
// re-established with backoff; nodes without subscription support are polled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.heads == nil {
		return fmt.Errorf("chain client is nil")
	}
	if len(w.cfg.Pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}

	for {
		sub, headers, err := w.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, rpc.ErrNotificationsUnsupported) {
				w.logger.Info("subscriptions unsupported, polling", zap.Duration("interval", w.cfg.PollInterval))
				return w.poll(ctx)
			}
			return fmt.Errorf("subscribe new heads: %w", err)
		}

		err = w.consume(ctx, sub, headers)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("head subscription dropped, resubscribing", zap.Error(err))
	}
}

func (w *Watcher) subscribe(ctx context.Context) (ethereum.Subscription, chan *types.Header, error) {
	headers := make(chan *types.Header, 16)
	attempts := uint(1)
	if w.cfg.MaxRetries > 0 {
		attempts += uint(w.cfg.MaxRetries)
	}
	sub, err := retry.DoWithData(
		func() (ethereum.Subscription, error) {
			sub, err := w.heads.SubscribeNewHead(ctx, headers)
			if errors.Is(err, rpc.ErrNotificationsUnsupported) {
				return nil, retry.Unrecoverable(err)
			}
			return sub, err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(w.cfg.RetryBackoff),
		retry.MaxDelay(time.Minute),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(_ uint, err error) {
			w.logger.Warn("subscribe new heads failed", zap.Error(err))
			if w.metrics != nil {
				w.metrics.RPCRetries.WithLabelValues("subscribe_new_head").Inc()
			}
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	w.logger.Info("subscribed to new heads", zap.Int("pools", len(w.cfg.Pools)))
	return sub, headers, nil
}

func (w *Watcher) consume(ctx context.Context, sub ethereum.Subscription, headers <-chan *types.Header) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case header := <-headers:
			if header == nil || header.Number == nil {
				continue
			}
			w.HandleBlock(ctx, header.Number.Uint64())
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		latest, err := w.heads.LatestBlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("poll latest block failed", zap.Error(err))
		} else {
			w.HandleBlock(ctx, latest)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// HandleBlock quotes every pool at block and hands the results to the sinks.
// Blocks at or below the last handled one are ignored. Pools whose state
// cannot be priced are logged and skipped for this block.
func (w *Watcher) HandleBlock(ctx context.Context, block uint64) {
	if block <= w.last {
		w.logger.Debug("skip stale head", zap.Uint64("block_number", block), zap.Uint64("last", w.last))
		return
	}
	w.last = block
	if w.metrics != nil {
		w.metrics.LastBlock.Set(float64(block))
	}

	results := make([]*model.Quote, len(w.cfg.Pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for i, pool := range w.cfg.Pools {
		i, pool := i, pool
		g.Go(func() error {
			q, err := w.quoter.QuoteAtBlock(gctx, pool, block)
			if err != nil {
				fields := []zap.Field{zap.Uint64("block_number", block), zap.String("pool", pool.Hex()), zap.Error(err)}
				if errors.Is(err, price.ErrInvalidPriceState) {
					w.logger.Warn("skip block: invalid price state", fields...)
				} else {
					w.logger.Error("quote failed", fields...)
				}
				return nil
			}
			results[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	quotes := make([]model.Quote, 0, len(results))
	for _, q := range results {
		if q == nil {
			continue
		}
		quotes = append(quotes, *q)
		w.logger.Info("quote",
			zap.Uint64("block_number", block),
			zap.String("pool", q.Pool),
			zap.String(q.Label0To1(), q.Price0To1),
			zap.String(q.Label1To0(), q.Price1To0),
		)
	}
	if len(quotes) == 0 {
		return
	}
	for _, sink := range w.sinks {
		if err := sink.PutQuotes(ctx, quotes); err != nil {
			w.logger.Error("store quotes failed", zap.Uint64("block_number", block), zap.Error(err))
		}
	}
}
