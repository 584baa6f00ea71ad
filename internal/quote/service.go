package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"uniquote/internal/dex"
	"uniquote/internal/model"
	"uniquote/internal/observability"
	"uniquote/internal/price"
)

// PoolSource reads pool state and token metadata. dex.ChainSource satisfies it.
type PoolSource interface {
	dex.PoolStateSource
	PoolTokens(ctx context.Context, pool common.Address) (model.TokenMeta, model.TokenMeta, error)
	Token(ctx context.Context, token common.Address) model.TokenMeta
}

// SwapQuoter simulates exact-input swaps. dex.Quoter satisfies it.
type SwapQuoter interface {
	Address() common.Address
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)
}

// Config holds quoting settings.
type Config struct {
	ChainID uint64
	// Digits is the number of significant digits in formatted prices.
	Digits int
}

// Service prices pools by reading their state and running it through the
// spot price calculator.
type Service struct {
	cfg     Config
	source  PoolSource
	quoter  SwapQuoter
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService builds a Service. quoter and metrics may be nil.
func NewService(cfg Config, source PoolSource, quoter SwapQuoter, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if cfg.Digits <= 0 {
		cfg.Digits = price.DefaultDigits
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:     cfg,
		source:  source,
		quoter:  quoter,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) ChainID() uint64 {
	return s.cfg.ChainID
}

// Quote prices a pool at the latest block.
func (s *Service) Quote(ctx context.Context, pool common.Address) (model.Quote, error) {
	return s.quote(ctx, s.source, pool, 0)
}

// QuoteAtBlock prices a pool as of a block. Sources that cannot pin a block
// are read at latest and the quote is labelled with the given block.
func (s *Service) QuoteAtBlock(ctx context.Context, pool common.Address, block uint64) (model.Quote, error) {
	var source dex.PoolStateSource = s.source
	if pinner, ok := s.source.(dex.BlockPinner); ok {
		source = pinner.PinBlock(block)
	}
	return s.quote(ctx, source, pool, block)
}

func (s *Service) quote(ctx context.Context, source dex.PoolStateSource, pool common.Address, block uint64) (model.Quote, error) {
	start := time.Now()
	q, err := s.compute(ctx, source, pool, block)
	if s.metrics != nil {
		s.metrics.QuoteLatency.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			s.metrics.QuotesTotal.WithLabelValues(observability.ResultOK).Inc()
		case errors.Is(err, price.ErrInvalidPriceState):
			s.metrics.QuotesTotal.WithLabelValues(observability.ResultInvalid).Inc()
		default:
			s.metrics.QuotesTotal.WithLabelValues(observability.ResultError).Inc()
		}
	}
	return q, err
}

func (s *Service) compute(ctx context.Context, source dex.PoolStateSource, pool common.Address, block uint64) (model.Quote, error) {
	state, err := source.Slot0(ctx, pool)
	if err != nil {
		return model.Quote{}, fmt.Errorf("read pool %s: %w", pool.Hex(), err)
	}
	if state.BlockNumber == 0 {
		state.BlockNumber = block
	}

	p, err := price.ComputePrice(state)
	if err != nil {
		return model.Quote{}, fmt.Errorf("price pool %s: %w", pool.Hex(), err)
	}

	token0, token1, err := s.source.PoolTokens(ctx, pool)
	if err != nil {
		return model.Quote{}, fmt.Errorf("pool tokens %s: %w", pool.Hex(), err)
	}

	p0, p1 := p.Format(s.cfg.Digits)
	if s.metrics != nil {
		f0, _ := p.Token0ToToken1.Float64()
		f1, _ := p.Token1ToToken0.Float64()
		s.metrics.PoolPrice.WithLabelValues(pool.Hex(), "0to1").Set(f0)
		s.metrics.PoolPrice.WithLabelValues(pool.Hex(), "1to0").Set(f1)
	}

	return model.Quote{
		ChainID:      s.cfg.ChainID,
		Pool:         pool.Hex(),
		BlockNumber:  state.BlockNumber,
		Token0:       token0,
		Token1:       token1,
		SqrtPriceX96: state.SqrtPriceX96.String(),
		Tick:         state.Tick,
		Price0To1:    p0,
		Price1To0:    p1,
		Digits:       s.cfg.Digits,
		QuotedAt:     s.now().UTC().Format(time.RFC3339Nano),
	}, nil
}
