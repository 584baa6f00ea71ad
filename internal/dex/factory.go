package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"uniquote/internal/model"
)

// ErrPoolNotFound is returned when the factory has no pool for a pair and fee.
var ErrPoolNotFound = errors.New("pool not found")

// GetPool resolves a pool address through the factory. Token order does not matter.
func GetPool(ctx context.Context, caller Caller, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := callMethod(ctx, caller, factory, factoryABI, "getPool", nil, tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	pool, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("getPool: %w", err)
	}
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s/%s fee %d", ErrPoolNotFound, tokenA.Hex(), tokenB.Hex(), fee)
	}
	return pool, nil
}

// PoolCreatedTopic returns topic0 of the factory PoolCreated event.
func PoolCreatedTopic() (common.Hash, error) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		return common.Hash{}, err
	}
	return factoryABI.Events["PoolCreated"].ID, nil
}

// DecodePoolCreated converts a factory PoolCreated log into a Pool record.
func DecodePoolCreated(log types.Log) (model.Pool, error) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		return model.Pool{}, fmt.Errorf("parse factory abi: %w", err)
	}
	event := factoryABI.Events["PoolCreated"]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return model.Pool{}, fmt.Errorf("not a PoolCreated log")
	}
	indexedArgs := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexedArgs)+1 {
		return model.Pool{}, fmt.Errorf("expected %d topics, got %d", len(indexedArgs)+1, len(log.Topics))
	}

	var indexed struct {
		Token0 common.Address
		Token1 common.Address
		Fee    *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArgs, log.Topics[1:]); err != nil {
		return model.Pool{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.Pool{}, fmt.Errorf("unpack PoolCreated: %w", err)
	}
	if len(values) != 2 {
		return model.Pool{}, fmt.Errorf("unexpected PoolCreated values: %d", len(values))
	}
	tickSpacingInt, err := asBigInt(values[0])
	if err != nil {
		return model.Pool{}, err
	}
	tickSpacing, err := int24FromBig(tickSpacingInt)
	if err != nil {
		return model.Pool{}, err
	}
	pool, err := asAddress(values[1])
	if err != nil {
		return model.Pool{}, err
	}

	return model.Pool{
		Address:        pool.Hex(),
		Token0:         indexed.Token0.Hex(),
		Token1:         indexed.Token1.Hex(),
		Fee:            uint32(indexed.Fee.Uint64()),
		TickSpacing:    tickSpacing,
		FirstSeenBlock: log.BlockNumber,
		Source:         model.PoolSourceFactory,
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
