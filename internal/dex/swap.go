package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SwapEvent is a decoded pool Swap log.
type SwapEvent struct {
	Pool         common.Address
	BlockNumber  uint64
	TxHash       common.Hash
	LogIndex     uint
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

// SwapTopic returns topic0 of the pool Swap event.
func SwapTopic() (common.Hash, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return common.Hash{}, err
	}
	return poolABI.Events["Swap"].ID, nil
}

// DecodeSwap decodes the non-indexed fields of a Swap log. The post-swap
// sqrtPriceX96 it carries is the pool price after that trade.
func DecodeSwap(log types.Log) (SwapEvent, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return SwapEvent{}, fmt.Errorf("parse pool abi: %w", err)
	}
	event := poolABI.Events["Swap"]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return SwapEvent{}, fmt.Errorf("not a Swap log")
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return SwapEvent{}, fmt.Errorf("unpack Swap: %w", err)
	}
	if len(values) != 5 {
		return SwapEvent{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	ints := make([]*big.Int, len(values))
	for i, v := range values {
		ints[i], err = asBigInt(v)
		if err != nil {
			return SwapEvent{}, err
		}
	}
	tick, err := int24FromBig(ints[4])
	if err != nil {
		return SwapEvent{}, err
	}

	return SwapEvent{
		Pool:         log.Address,
		BlockNumber:  log.BlockNumber,
		TxHash:       log.TxHash,
		LogIndex:     log.Index,
		Amount0:      ints[0],
		Amount1:      ints[1],
		SqrtPriceX96: ints[2],
		Liquidity:    ints[3],
		Tick:         tick,
	}, nil
}
