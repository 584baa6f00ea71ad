package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"uniquote/internal/model"
	"uniquote/internal/price"
)

// PoolStateSource reads the current priceable state of a pool.
type PoolStateSource interface {
	Slot0(ctx context.Context, pool common.Address) (price.PoolPriceState, error)
}

// BlockPinner is implemented by sources that can read state as of a past block.
type BlockPinner interface {
	PinBlock(number uint64) PoolStateSource
}

// ChainSource reads pool state with eth_call through a Caller. Pool and
// token metadata is cached; slot0 is read on every call.
type ChainSource struct {
	caller Caller
	pools  *PoolMetaCache
	tokens *TokenMetaCache
	logger *zap.Logger
	block  *big.Int
}

// NewChainSource builds a ChainSource. Nil caches are replaced with fresh ones.
func NewChainSource(caller Caller, pools *PoolMetaCache, tokens *TokenMetaCache, logger *zap.Logger) *ChainSource {
	if pools == nil {
		pools = NewPoolMetaCache()
	}
	if tokens == nil {
		tokens = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSource{caller: caller, pools: pools, tokens: tokens, logger: logger}
}

// AtBlock returns a copy of the source pinned to a block number. Metadata
// caches are shared.
func (s *ChainSource) AtBlock(number uint64) *ChainSource {
	pinned := *s
	pinned.block = new(big.Int).SetUint64(number)
	return &pinned
}

// PinBlock implements BlockPinner.
func (s *ChainSource) PinBlock(number uint64) PoolStateSource {
	return s.AtBlock(number)
}

// Slot0 reads slot0 and both token decimals for a pool.
// Tokens whose decimals() reverted are reported with nil decimals.
func (s *ChainSource) Slot0(ctx context.Context, pool common.Address) (price.PoolPriceState, error) {
	token0, token1, err := s.PoolTokens(ctx, pool)
	if err != nil {
		return price.PoolPriceState{}, err
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return price.PoolPriceState{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, s.caller, pool, poolABI, "slot0", s.block)
	if err != nil {
		return price.PoolPriceState{}, err
	}
	if len(values) < 2 {
		return price.PoolPriceState{}, fmt.Errorf("unexpected slot0 values: %d", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return price.PoolPriceState{}, fmt.Errorf("slot0 sqrtPriceX96: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return price.PoolPriceState{}, fmt.Errorf("slot0 tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return price.PoolPriceState{}, fmt.Errorf("slot0 tick: %w", err)
	}

	state := price.PoolPriceState{
		Pool:         pool,
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Decimals0:    token0.Decimals,
		Decimals1:    token1.Decimals,
	}
	if s.block != nil {
		state.BlockNumber = s.block.Uint64()
	}
	return state, nil
}

// PoolTokens returns the metadata of both pool tokens.
func (s *ChainSource) PoolTokens(ctx context.Context, pool common.Address) (model.TokenMeta, model.TokenMeta, error) {
	meta, err := s.PoolMeta(ctx, pool)
	if err != nil {
		return model.TokenMeta{}, model.TokenMeta{}, err
	}
	token0, err := s.token(ctx, common.HexToAddress(meta.Token0))
	if err != nil {
		return model.TokenMeta{}, model.TokenMeta{}, err
	}
	token1, err := s.token(ctx, common.HexToAddress(meta.Token1))
	if err != nil {
		return model.TokenMeta{}, model.TokenMeta{}, err
	}
	return token0, token1, nil
}

// PoolMeta returns cached pool metadata, fetching it on first use.
func (s *ChainSource) PoolMeta(ctx context.Context, pool common.Address) (model.PoolMeta, error) {
	if meta, ok := s.pools.Get(pool); ok {
		return meta, nil
	}
	meta, err := FetchPoolMeta(ctx, s.caller, pool)
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("pool %s: %w", pool.Hex(), err)
	}
	s.pools.Set(pool, meta)
	return meta, nil
}

// Token returns cached token metadata. A lookup the node answered with an
// error, such as a revert of decimals(), is cached with nil decimals. Transport
// failures are logged and retried on the next call.
func (s *ChainSource) Token(ctx context.Context, token common.Address) model.TokenMeta {
	meta, err := s.token(ctx, token)
	if err != nil {
		s.logger.Warn("token metadata unavailable", zap.String("token", token.Hex()), zap.Error(err))
	}
	return meta
}

// token is Token that reports transport failures instead of hiding them.
func (s *ChainSource) token(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	if meta, ok := s.tokens.Get(token); ok {
		return meta, nil
	}
	meta, err := FetchTokenMeta(ctx, s.caller, token, s.logger)
	if err != nil {
		if !answeredByNode(err) {
			return meta, fmt.Errorf("token %s: %w", token.Hex(), err)
		}
		s.logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	s.tokens.Set(token, meta)
	return meta, nil
}
