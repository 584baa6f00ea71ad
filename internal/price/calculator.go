package price

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidPriceState is returned when a pool state cannot be priced:
// an uninitialised pool (zero sqrtPriceX96), an out of range value, or
// missing token decimals.
var ErrInvalidPriceState = errors.New("invalid price state")

const sqrtPriceBits = 160

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// PoolPriceState is a snapshot of the values needed to price a pool.
type PoolPriceState struct {
	Pool         common.Address
	SqrtPriceX96 *big.Int
	Tick         int32
	BlockNumber  uint64

	// Nil means the token's decimals() could not be read.
	Decimals0 *uint8
	Decimals1 *uint8
}

// NewPoolPriceState builds a state with both decimals known.
func NewPoolPriceState(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) PoolPriceState {
	return PoolPriceState{
		SqrtPriceX96: sqrtPriceX96,
		Decimals0:    &decimals0,
		Decimals1:    &decimals1,
	}
}

// Validate checks the state against the calculator's input constraints.
func (s PoolPriceState) Validate() error {
	if s.SqrtPriceX96 == nil || s.SqrtPriceX96.Sign() == 0 {
		return fmt.Errorf("%w: sqrtPriceX96 is zero (pool not initialized)", ErrInvalidPriceState)
	}
	if s.SqrtPriceX96.Sign() < 0 {
		return fmt.Errorf("%w: negative sqrtPriceX96 %s", ErrInvalidPriceState, s.SqrtPriceX96)
	}
	if s.SqrtPriceX96.BitLen() > sqrtPriceBits {
		return fmt.Errorf("%w: sqrtPriceX96 exceeds uint160", ErrInvalidPriceState)
	}
	if s.Decimals0 == nil {
		return fmt.Errorf("%w: token0 decimals missing", ErrInvalidPriceState)
	}
	if s.Decimals1 == nil {
		return fmt.Errorf("%w: token1 decimals missing", ErrInvalidPriceState)
	}
	return nil
}

// Price holds the exchange rate of a pool in both directions, decimal adjusted.
// Values are exact; round them with Format.
type Price struct {
	// Token0ToToken1 is the amount of token1 received for one whole token0.
	Token0ToToken1 *big.Rat
	// Token1ToToken0 is the amount of token0 received for one whole token1.
	Token1ToToken0 *big.Rat
}

// ComputePrice converts a pool's sqrtPriceX96 and token decimals into
// human readable rates. All arithmetic is exact.
func ComputePrice(state PoolPriceState) (Price, error) {
	if err := state.Validate(); err != nil {
		return Price{}, err
	}

	ratio := new(big.Int).Mul(state.SqrtPriceX96, state.SqrtPriceX96)
	raw := new(big.Rat).SetFrac(ratio, q192)

	shift := int(*state.Decimals0) - int(*state.Decimals1)
	adjusted := new(big.Rat).Set(raw)
	switch {
	case shift > 0:
		adjusted.Mul(adjusted, new(big.Rat).SetInt(pow10(shift)))
	case shift < 0:
		adjusted.Quo(adjusted, new(big.Rat).SetInt(pow10(-shift)))
	}

	return Price{
		Token0ToToken1: adjusted,
		Token1ToToken0: new(big.Rat).Inv(adjusted),
	}, nil
}

// Format rounds both rates to the given number of significant digits.
func (p Price) Format(digits int) (string, string) {
	return FormatSignificant(p.Token0ToToken1, digits), FormatSignificant(p.Token1ToToken0, digits)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
