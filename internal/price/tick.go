package price

import (
	"errors"
	"math/big"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is SqrtPriceX96AtTick(MinTick).
	MinSqrtRatio = big.NewInt(4295128739)
	// MaxSqrtRatio is SqrtPriceX96AtTick(MaxTick).
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342")

	ErrTickOutOfRange      = errors.New("tick out of range")
	ErrSqrtRatioOutOfRange = errors.New("sqrt ratio out of range")
)

var (
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	q32Mask    = big.NewInt(1<<32 - 1)

	// sqrt(1.0001^-(2^i)) as Q128.128, for bit i of |tick|.
	tickFactors = []*big.Int{
		mustBig("0xfffcb933bd6fad37aa2d162d1a594001"),
		mustBig("0xfff97272373d413259a46990580e213a"),
		mustBig("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		mustBig("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		mustBig("0xffcb9843d60f6159c9db58835c926644"),
		mustBig("0xff973b41fa98c081472e6896dfb254c0"),
		mustBig("0xff2ea16466c96a3843ec78b326b52861"),
		mustBig("0xfe5dee046a99a2a811c461f1969c3053"),
		mustBig("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		mustBig("0xf987a7253ac413176f2b074cf7815e54"),
		mustBig("0xf3392b0822b70005940c7a398e4b70f3"),
		mustBig("0xe7159475a2c29b7443b29c7fa6e889d9"),
		mustBig("0xd097f3bdfd2022b8845ad8f792aa5825"),
		mustBig("0xa9f746462d870fdf8a65dc1f90e061e5"),
		mustBig("0x70d869a156d2a1b890bb3df62baf32f7"),
		mustBig("0x31be135f97d08fd981231505542fcfa6"),
		mustBig("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		mustBig("0x5d6af8dedb81196699c329225ee604"),
		mustBig("0x2216e584f5fa1ea926041bedfe98"),
		mustBig("0x48a170391f7dc42444e8fa2"),
	}
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		panic("price: bad constant " + s)
	}
	return v
}

// SqrtPriceX96AtTick returns sqrt(1.0001^tick) * 2^96, rounded up, matching
// the on-chain TickMath library.
func SqrtPriceX96AtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfRange
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	if absTick&1 != 0 {
		ratio.Set(tickFactors[0])
	}
	for i := 1; i < len(tickFactors); i++ {
		if absTick&(1<<i) != 0 {
			ratio.Mul(ratio, tickFactors[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	sqrtPrice := new(big.Int).Rsh(ratio, 32)
	if new(big.Int).And(ratio, q32Mask).Sign() != 0 {
		sqrtPrice.Add(sqrtPrice, big.NewInt(1))
	}
	return sqrtPrice, nil
}

// TickAtSqrtPriceX96 returns the greatest tick whose sqrt ratio is less than
// or equal to sqrtPriceX96.
func TickAtSqrtPriceX96(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtRatioOutOfRange
	}

	lo, hi := MinTick, MaxTick
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ratio, err := SqrtPriceX96AtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, nil
}

// PriceAtTick prices a pool sitting exactly on the given tick.
func PriceAtTick(tick int32, decimals0, decimals1 uint8) (Price, error) {
	sqrtPrice, err := SqrtPriceX96AtTick(tick)
	if err != nil {
		return Price{}, err
	}
	state := NewPoolPriceState(sqrtPrice, decimals0, decimals1)
	state.Tick = tick
	return ComputePrice(state)
}
