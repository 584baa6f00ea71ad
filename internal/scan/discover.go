package scan

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"uniquote/internal/dex"
	"uniquote/internal/model"
)

// TokenResolver returns token metadata. dex.ChainSource satisfies it.
type TokenResolver interface {
	Token(ctx context.Context, token common.Address) model.TokenMeta
}

// PoolSink receives newly discovered pools.
type PoolSink interface {
	PutPools(ctx context.Context, pools []model.Pool) error
}

// PoolDiscoverer turns factory PoolCreated logs into registered pools.
type PoolDiscoverer struct {
	chainID  uint64
	registry *Registry
	tokens   TokenResolver
	sink     PoolSink
	logger   *zap.Logger
}

// NewPoolDiscoverer builds a discoverer. tokens may be nil to skip metadata lookups.
func NewPoolDiscoverer(chainID uint64, registry *Registry, tokens TokenResolver, sink PoolSink, logger *zap.Logger) *PoolDiscoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &PoolDiscoverer{chainID: chainID, registry: registry, tokens: tokens, sink: sink, logger: logger}
}

// Registry returns the registry pools are recorded in.
func (d *PoolDiscoverer) Registry() *Registry {
	return d.registry
}

// HandleLogs is a Handler for PoolCreated logs.
func (d *PoolDiscoverer) HandleLogs(ctx context.Context, blockRange BlockRange, logs []types.Log) error {
	pools := make([]model.Pool, 0, len(logs))
	for _, log := range logs {
		pool, err := dex.DecodePoolCreated(log)
		if err != nil {
			d.logger.Warn("skip undecodable log",
				zap.Uint64("block_number", log.BlockNumber),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			continue
		}
		pool.ChainID = d.chainID
		d.enrich(ctx, &pool)
		if d.registry.AddPool(pool) {
			pools = append(pools, pool)
		}
	}

	if len(pools) > 0 && d.sink != nil {
		if err := d.sink.PutPools(ctx, pools); err != nil {
			return fmt.Errorf("store pools: %w", err)
		}
	}
	d.logger.Debug("pools discovered", zap.Int("new", len(pools)), zap.Int("total", d.registry.Len()), zap.Uint64("to", blockRange.To))
	return nil
}

func (d *PoolDiscoverer) enrich(ctx context.Context, pool *model.Pool) {
	token0 := d.token(ctx, common.HexToAddress(pool.Token0))
	token1 := d.token(ctx, common.HexToAddress(pool.Token1))
	pool.Symbol0, pool.Decimals0 = token0.Symbol, token0.Decimals
	pool.Symbol1, pool.Decimals1 = token1.Symbol, token1.Decimals
}

func (d *PoolDiscoverer) token(ctx context.Context, address common.Address) model.TokenMeta {
	if token, ok := d.registry.Token(address); ok {
		return token
	}
	token := model.TokenMeta{Address: address.Hex()}
	if d.tokens != nil {
		token = d.tokens.Token(ctx, address)
	}
	d.registry.AddToken(token)
	return token
}
