package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"uniquote/internal/dex"
	"uniquote/internal/model"
	"uniquote/internal/price"
)

// PricePointSink receives swap-derived price points.
type PricePointSink interface {
	PutPricePoints(ctx context.Context, points []model.PricePoint) error
}

// BlockTimer resolves block timestamps. chain.Client satisfies it.
type BlockTimer interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// SwapHistory prices every Swap log of a pool using the post-swap sqrtPriceX96.
type SwapHistory struct {
	token0 model.TokenMeta
	token1 model.TokenMeta
	digits int
	sink   PricePointSink
	times  BlockTimer
	logger *zap.Logger
}

func NewSwapHistory(token0, token1 model.TokenMeta, digits int, sink PricePointSink, logger *zap.Logger) *SwapHistory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if digits <= 0 {
		digits = price.DefaultDigits
	}
	return &SwapHistory{token0: token0, token1: token1, digits: digits, sink: sink, logger: logger}
}

// WithBlockTimes stamps each price point with its block time.
func (h *SwapHistory) WithBlockTimes(times BlockTimer) *SwapHistory {
	h.times = times
	return h
}

// HandleLogs is a Handler for pool Swap logs. Swaps that cannot be priced
// are logged and skipped.
func (h *SwapHistory) HandleLogs(ctx context.Context, _ BlockRange, logs []types.Log) error {
	points := make([]model.PricePoint, 0, len(logs))
	for _, log := range logs {
		point, err := h.pricePoint(log)
		if err != nil {
			level := h.logger.Warn
			if errors.Is(err, price.ErrInvalidPriceState) {
				level = h.logger.Info
			}
			level("skip swap",
				zap.Uint64("block_number", log.BlockNumber),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			continue
		}
		if h.times != nil {
			ts, err := h.times.BlockTimestamp(ctx, point.BlockNumber)
			if err != nil {
				return fmt.Errorf("block %d timestamp: %w", point.BlockNumber, err)
			}
			point.BlockTime = ts
		}
		points = append(points, point)
	}

	if len(points) > 0 && h.sink != nil {
		if err := h.sink.PutPricePoints(ctx, points); err != nil {
			return fmt.Errorf("store price points: %w", err)
		}
	}
	return nil
}

func (h *SwapHistory) pricePoint(log types.Log) (model.PricePoint, error) {
	swap, err := dex.DecodeSwap(log)
	if err != nil {
		return model.PricePoint{}, err
	}
	p, err := price.ComputePrice(price.PoolPriceState{
		Pool:         swap.Pool,
		SqrtPriceX96: swap.SqrtPriceX96,
		Tick:         swap.Tick,
		BlockNumber:  swap.BlockNumber,
		Decimals0:    h.token0.Decimals,
		Decimals1:    h.token1.Decimals,
	})
	if err != nil {
		return model.PricePoint{}, err
	}
	p0, p1 := p.Format(h.digits)
	return model.PricePoint{
		Pool:         swap.Pool.Hex(),
		BlockNumber:  swap.BlockNumber,
		TxHash:       swap.TxHash.Hex(),
		LogIndex:     uint64(swap.LogIndex),
		SqrtPriceX96: swap.SqrtPriceX96.String(),
		Tick:         swap.Tick,
		Amount0:      swap.Amount0.String(),
		Amount1:      swap.Amount1.String(),
		Price0To1:    p0,
		Price1To0:    p1,
	}, nil
}
