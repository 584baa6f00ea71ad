package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Quoter simulates swaps against the Uniswap V3 Quoter lens contract.
type Quoter struct {
	caller  Caller
	address common.Address
}

func NewQuoter(caller Caller, address common.Address) *Quoter {
	return &Quoter{caller: caller, address: address}
}

// Address returns the quoter contract address.
func (q *Quoter) Address() common.Address {
	return q.address
}

// QuoteExactInputSingle returns the amount of tokenOut received for amountIn
// of tokenIn through the pool with the given fee tier, without a price limit.
func (q *Quoter) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	if q.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}
	quoterABI, err := V3QuoterABI()
	if err != nil {
		return nil, fmt.Errorf("parse quoter abi: %w", err)
	}
	values, err := callMethod(ctx, q.caller, q.address, quoterABI, "quoteExactInputSingle", nil,
		tokenIn, tokenOut, new(big.Int).SetUint64(uint64(fee)), amountIn, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	amountOut, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("amount out: %w", err)
	}
	return amountOut, nil
}
